package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"

	"snapgram/internal/httpmw"
)

// HitCounter records one attempt for key and reports whether it is still
// within budget.
type HitCounter interface {
	Hit(ctx context.Context, key string, now time.Time) (allowed bool, retryAfter time.Duration, err error)
}

// LoginRateLimiter throttles credential endpoints per client IP.
type LoginRateLimiter struct {
	counter HitCounter
	now     func() time.Time
}

func NewLoginRateLimiter(maxHits int, window time.Duration) *LoginRateLimiter {
	return &LoginRateLimiter{counter: NewMemoryHitCounter(maxHits, window), now: time.Now}
}

func NewRedisLoginRateLimiter(client redis.Scripter, maxHits int, window time.Duration) *LoginRateLimiter {
	return &LoginRateLimiter{counter: NewRedisHitCounter(client, maxHits, window), now: time.Now}
}

func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path + "|" + httpmw.ClientIP(r)

		allowed, retryAfter, err := l.counter.Hit(r.Context(), key, l.now().UTC())
		if err != nil {
			// The limiter backend being down must not lock everyone out.
			sentry.CaptureException(err)
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			writeJSON(w, http.StatusTooManyRequests, errorBody{
				Error:   "TooManyRequests",
				Message: "Too many authentication attempts, please try again later.",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// MemoryHitCounter is a sliding window held in process.
type MemoryHitCounter struct {
	mu        sync.Mutex
	maxHits   int
	window    time.Duration
	hitByKey  map[string][]time.Time
	maxMemory int
}

func NewMemoryHitCounter(maxHits int, window time.Duration) *MemoryHitCounter {
	maxHits, window = limiterDefaults(maxHits, window)
	return &MemoryHitCounter{
		maxHits:   maxHits,
		window:    window,
		hitByKey:  make(map[string][]time.Time),
		maxMemory: 5000,
	}
}

func (c *MemoryHitCounter) Hit(_ context.Context, key string, now time.Time) (bool, time.Duration, error) {
	threshold := now.Add(-c.window)

	c.mu.Lock()
	defer c.mu.Unlock()

	hits := c.hitByKey[key]
	filtered := make([]time.Time, 0, len(hits)+1)
	for _, hit := range hits {
		if hit.After(threshold) {
			filtered = append(filtered, hit)
		}
	}

	if len(filtered) >= c.maxHits {
		retryAfter := filtered[0].Add(c.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		c.hitByKey[key] = filtered
		return false, retryAfter, nil
	}

	filtered = append(filtered, now)
	c.hitByKey[key] = filtered

	if len(c.hitByKey) > c.maxMemory {
		for k, value := range c.hitByKey {
			if len(value) == 0 || value[len(value)-1].Before(threshold) {
				delete(c.hitByKey, k)
			}
		}
	}

	return true, 0, nil
}

// hitScript increments a fixed-window counter and starts its expiry on the
// first hit, atomically.
var hitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`)

// RedisHitCounter shares a fixed window across instances.
type RedisHitCounter struct {
	client  redis.Scripter
	maxHits int
	window  time.Duration
	prefix  string
}

func NewRedisHitCounter(client redis.Scripter, maxHits int, window time.Duration) *RedisHitCounter {
	maxHits, window = limiterDefaults(maxHits, window)
	return &RedisHitCounter{client: client, maxHits: maxHits, window: window, prefix: "snapgram:auth-limit:"}
}

func (c *RedisHitCounter) Hit(ctx context.Context, key string, _ time.Time) (bool, time.Duration, error) {
	values, err := hitScript.Run(ctx, c.client, []string{c.prefix + key}, c.window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("auth rate limit: %w", err)
	}
	if len(values) != 2 {
		return false, 0, fmt.Errorf("auth rate limit: unexpected reply %v", values)
	}

	if values[0] > int64(c.maxHits) {
		retryAfter := time.Duration(values[1]) * time.Millisecond
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return false, retryAfter, nil
	}
	return true, 0, nil
}

func limiterDefaults(maxHits int, window time.Duration) (int, time.Duration) {
	if maxHits <= 0 {
		maxHits = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return maxHits, window
}
