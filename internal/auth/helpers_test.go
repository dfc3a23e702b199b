package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type capturedReset struct {
	account   PublicAccount
	token     string
	expiresAt time.Time
}

type recordingNotifier struct {
	mu    sync.Mutex
	sends []capturedReset
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, account PublicAccount, rawToken string, expiresAt time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, capturedReset{account: account, token: rawToken, expiresAt: expiresAt})
	return nil
}

func (n *recordingNotifier) last(t *testing.T) capturedReset {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sends)
	return n.sends[len(n.sends)-1]
}

type testEnv struct {
	service  *Service
	store    *MemoryStore
	issuer   *TokenIssuer
	clock    *fakeClock
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T, security SecurityConfig) testEnv {
	t.Helper()

	clock := newFakeClock()
	store := NewMemoryStore()
	issuer := NewTokenIssuer("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour).WithClock(clock.Now)
	notifier := &recordingNotifier{}
	service := NewService(store, issuer, NewBcryptHasher(bcrypt.MinCost), security).
		WithClock(clock.Now).
		WithResetNotifier(notifier)

	return testEnv{service: service, store: store, issuer: issuer, clock: clock, notifier: notifier}
}

func aliceInput() RegisterInput {
	return RegisterInput{
		Email:           "alice@example.com",
		FullName:        "Alice Liddell",
		Username:        "alice",
		Password:        "Secret123",
		ConfirmPassword: "Secret123",
	}
}

func registerAlice(t *testing.T, env testEnv) AuthResult {
	t.Helper()
	result, err := env.service.Register(context.Background(), aliceInput())
	require.NoError(t, err)
	return result
}
