package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/target/bizdesk/config"
	"github.com/target/bizdesk/internal/migrate"
)

const connectTimeout = 5 * time.Second

// ConnectDB opens the Postgres credential database and verifies it answers.
func ConnectDB(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*sql.DB, error) {
	connCfg, err := pgx.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config %s: %w", cfg, err)
	}
	db := stdlib.OpenDB(*connCfg)

	// Credential lookups are small and short-lived.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		return nil, errors.Join(fmt.Errorf("ping database %s: %w", cfg, pingErr), db.Close())
	}

	if logger != nil {
		logger.InfoContext(ctx, "database connected", "database", cfg.String())
	}
	return db, nil
}

// RunMigrations applies the credentials schema.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := migrate.Run(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed")
	}
	return nil
}

// ConnectRedis opens the Redis deployment behind the shared credential store.
//
//nolint:ireturn // the universal client picks single, failover or cluster from the options.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (redis.UniversalClient, error) {
	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewUniversalClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
		return nil, errors.Join(fmt.Errorf("ping redis: %w", pingErr), client.Close())
	}

	if logger != nil {
		logger.InfoContext(ctx, "redis connected",
			"addrs", strings.Join(opts.Addrs, ","), "db", opts.DB, "master", opts.MasterName)
	}
	return client, nil
}

// redisOptions turns RedisConfig into universal client options. A URL carries its own
// credentials and DB index; a bare address list uses the configured ones.
func redisOptions(cfg config.RedisConfig) (*redis.UniversalOptions, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, errors.New("redis URI is required for the redis credential store")
	}

	if strings.HasPrefix(uri, "redis://") || strings.HasPrefix(uri, "rediss://") {
		opt, err := redis.ParseURL(uri)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		password := opt.Password
		if password == "" {
			password = cfg.Password
		}
		return &redis.UniversalOptions{
			Addrs:      []string{opt.Addr},
			Username:   opt.Username,
			Password:   password,
			DB:         opt.DB,
			MasterName: cfg.MasterName,
			TLSConfig:  opt.TLSConfig,
		}, nil
	}

	var addrs []string
	for _, a := range strings.Split(uri, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("redis URI %q has no addresses", cfg.URI)
	}
	if len(addrs) > 1 && cfg.MasterName == "" && cfg.DB != 0 {
		return nil, errors.New("redis cluster does not support a DB index")
	}
	return &redis.UniversalOptions{
		Addrs:      addrs,
		Password:   cfg.Password,
		DB:         cfg.DB,
		MasterName: cfg.MasterName,
	}, nil
}
