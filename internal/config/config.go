package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	AppEnv    string
	Port      string
	DataStore string

	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	RunMigrations     bool

	JWTSecret        string
	JWTRefreshSecret string

	LoginMaxAttempts    int
	LoginLockDuration   time.Duration
	AccessTokenTTL      time.Duration
	RefreshTokenTTL     time.Duration
	PasswordResetTTL    time.Duration
	MaxActiveSessions   int
	RefreshTokenRotate  bool
	BcryptCost          int
	RevealResetTokens   bool
	AllowedOrigins      []string
	AuthRateLimitMax    int
	AuthRateLimitWindow time.Duration
	APIRateLimitPerMin  int
	RedisURL            string

	CronSecret       string
	CleanupBatchSize int
	CleanupInterval  time.Duration

	CloudinaryURL string
	SentryDSN     string
}

// Load reads CONFIG_FILE (if set), overlays the environment and validates.
func Load() (Config, error) {
	src, err := newSource(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}
	return load(src)
}

func load(src source) (Config, error) {
	appEnv := src.stringOrDefault("APP_ENV", "development")
	production := strings.EqualFold(appEnv, "production")

	cfg := Config{
		AppEnv:    appEnv,
		Port:      src.stringOrDefault("PORT", "8080"),
		DataStore: strings.ToLower(src.stringOrDefault("DATA_STORE", StorePostgres)),

		DatabaseURL:       src.lookup("DATABASE_URL"),
		DBMaxOpenConns:    src.intOrDefault("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:    src.intOrDefault("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: src.minutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		DBConnMaxIdleTime: src.minutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
		RunMigrations:     src.boolOrDefault("RUN_MIGRATIONS_ON_STARTUP", false),

		JWTSecret:        src.lookup("JWT_SECRET"),
		JWTRefreshSecret: src.lookup("JWT_REFRESH_SECRET"),

		LoginMaxAttempts:    src.intOrDefault("LOGIN_MAX_ATTEMPTS", 5),
		LoginLockDuration:   src.minutesOrDefault("LOGIN_LOCK_MINUTES", 120),
		AccessTokenTTL:      src.minutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 7*24*60),
		RefreshTokenTTL:     src.hoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 168),
		PasswordResetTTL:    src.minutesOrDefault("PASSWORD_RESET_TTL_MINUTES", 10),
		MaxActiveSessions:   src.nonNegativeIntOrDefault("MAX_ACTIVE_SESSIONS", 10),
		RefreshTokenRotate:  src.boolOrDefault("REFRESH_TOKEN_ROTATION", false),
		BcryptCost:          src.intOrDefault("BCRYPT_COST", bcrypt.DefaultCost),
		RevealResetTokens:   src.boolOrDefault("REVEAL_RESET_TOKENS", !production),
		AllowedOrigins:      src.listOrDefault("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		AuthRateLimitMax:    src.intOrDefault("AUTH_RATE_LIMIT_MAX", 5),
		AuthRateLimitWindow: src.secondsOrDefault("AUTH_RATE_LIMIT_WINDOW_SECONDS", 900),
		APIRateLimitPerMin:  src.nonNegativeIntOrDefault("API_RATE_LIMIT_PER_MINUTE", 300),
		RedisURL:            src.lookup("REDIS_URL"),

		CronSecret:       src.lookup("CRON_SECRET"),
		CleanupBatchSize: src.intOrDefault("AUTH_CLEANUP_BATCH_SIZE", 500),
		CleanupInterval:  src.minutesOrDefault("AUTH_CLEANUP_INTERVAL_MINUTES", 60),

		CloudinaryURL: src.lookup("CLOUDINARY_URL"),
		SentryDSN:     src.lookup("SENTRY_DSN"),
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("missing required env: JWT_SECRET"))
	}
	if c.JWTRefreshSecret == "" {
		errs = append(errs, errors.New("missing required env: JWT_REFRESH_SECRET"))
	}
	if c.JWTSecret != "" && c.JWTSecret == c.JWTRefreshSecret {
		errs = append(errs, errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ"))
	}

	switch c.DataStore {
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("missing required env: DATABASE_URL"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unsupported DATA_STORE %q", c.DataStore))
	}

	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	return errors.Join(errs...)
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}
