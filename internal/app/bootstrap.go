package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"snapgram/internal/auth"
	"snapgram/internal/config"
	"snapgram/internal/httpmw"
	"snapgram/internal/maintenance"
	"snapgram/internal/media"
	"snapgram/internal/notification"
	"snapgram/internal/observability"
	"snapgram/internal/post"
	"snapgram/internal/profile"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Config  config.Config
	Logger  *observability.Logger
	// Worker prunes expired auth data; only long-running servers start it.
	Worker *maintenance.Worker
	Close  func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := openStores(ctx, cfg, options.RunMigrations || cfg.RunMigrations)
	if err != nil {
		return nil, err
	}
	closers := []func() error{st.close}

	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authService := auth.NewService(st.accounts, issuer, auth.NewBcryptHasher(cfg.BcryptCost), auth.SecurityConfig{
		MaxLoginAttempts:    cfg.LoginMaxAttempts,
		LockDuration:        cfg.LoginLockDuration,
		PasswordResetTTL:    cfg.PasswordResetTTL,
		MaxActiveSessions:   cfg.MaxActiveSessions,
		RotateRefreshTokens: cfg.RefreshTokenRotate,
	}).WithResetNotifier(auth.NewLogResetNotifier(logger, cfg.RevealResetTokens))
	gate := auth.NewGate(authService)

	loginLimiter := auth.NewLoginRateLimiter(cfg.AuthRateLimitMax, cfg.AuthRateLimitWindow)
	if cfg.RedisURL != "" {
		redisOptions, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = closeAll(closers)
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		redisClient := redis.NewClient(redisOptions)
		closers = append(closers, redisClient.Close)
		loginLimiter = auth.NewRedisLoginRateLimiter(redisClient, cfg.AuthRateLimitMax, cfg.AuthRateLimitWindow)
	}

	hub := notification.NewHub()
	notificationService := notification.NewService(st.notifications, authService, hub)
	postService := post.NewService(st.posts, authService, notificationService, logger)
	profileService := profile.NewService(st.follows, authService, postService, notificationService, logger)

	var uploader media.Uploader
	if cfg.CloudinaryURL != "" {
		cloudinaryClient, err := media.NewCloudinary(cfg.CloudinaryURL)
		if err != nil {
			_ = closeAll(closers)
			return nil, fmt.Errorf("init cloudinary: %w", err)
		}
		uploader = cloudinaryClient
	} else {
		logger.Warn("media_uploads_disabled", map[string]any{"reason": "CLOUDINARY_URL not set"})
	}

	mux := http.NewServeMux()
	auth.NewHandler(authService).Mount(mux, gate, loginLimiter.Middleware)
	post.NewHandler(postService).Mount(mux, gate)
	profile.NewHandler(profileService).Mount(mux, gate)
	notification.NewHandler(notificationService, hub, logger, originChecker(cfg.AllowedOrigins)).Mount(mux, gate)
	media.NewUploadHandler(uploader, logger).Mount(mux, gate)
	maintenance.NewCleanupHandler(authService, logger, cfg.CronSecret, cfg.CleanupBatchSize).Mount(mux)
	mux.HandleFunc("GET /api/health", healthHandler(authService))

	middlewares := []func(http.Handler) http.Handler{
		httpmw.RequestID,
		func(next http.Handler) http.Handler { return observability.RecoverMiddleware(logger, next) },
		func(next http.Handler) http.Handler { return observability.RequestLoggingMiddleware(logger, next) },
		httpmw.CORS(cfg.AllowedOrigins),
		httpmw.SecurityHeaders,
	}
	if cfg.APIRateLimitPerMin > 0 {
		middlewares = append(middlewares, httpmw.NewRateLimiter(cfg.APIRateLimitPerMin).Middleware)
	}

	return &Runtime{
		Handler: httpmw.Chain(middlewares...)(mux),
		Config:  cfg,
		Logger:  logger,
		Worker:  maintenance.NewWorker(authService, logger, cfg.CleanupInterval, cfg.CleanupBatchSize),
		Close: func() error {
			observability.FlushSentry()
			return closeAll(closers)
		},
	}, nil
}

func closeAll(closers []func() error) error {
	var firstErr error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type pinger interface {
	Ping(ctx context.Context) error
}

func healthHandler(store pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := store.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

// originChecker gates WebSocket upgrades with the CORS allow-list. Clients
// that send no Origin (mobile apps, curl) are let through.
func originChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	allowAll := len(allowedOrigins) == 0
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
