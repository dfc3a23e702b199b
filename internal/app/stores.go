package app

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"snapgram/internal/auth"
	"snapgram/internal/config"
	"snapgram/internal/db"
	"snapgram/internal/notification"
	"snapgram/internal/post"
	"snapgram/internal/profile"
)

type stores struct {
	accounts      auth.Store
	posts         post.Store
	notifications notification.Store
	follows       profile.Store
	close         func() error
}

func openStores(ctx context.Context, cfg config.Config, runMigrations bool) (stores, error) {
	if cfg.DataStore == config.StoreMemory {
		return stores{
			accounts:      auth.NewMemoryStore(),
			posts:         post.NewMemoryStore(),
			notifications: notification.NewMemoryStore(),
			follows:       profile.NewMemoryStore(),
			close:         func() error { return nil },
		}, nil
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return stores{}, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return stores{}, fmt.Errorf("ping database: %w", err)
	}

	if runMigrations {
		if err := db.RunMigrations(ctx, database); err != nil {
			_ = database.Close()
			return stores{}, fmt.Errorf("run migrations: %w", err)
		}
	}

	return stores{
		accounts:      auth.NewRepository(database),
		posts:         post.NewRepository(database),
		notifications: notification.NewRepository(database),
		follows:       profile.NewRepository(database),
		close:         database.Close,
	}, nil
}
