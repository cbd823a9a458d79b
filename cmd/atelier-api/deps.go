package main

import (
	"context"
	"database/sql"

	"github.com/atelier-ai/atelier/internal/cache"
	"github.com/atelier-ai/atelier/internal/config"
	"github.com/atelier-ai/atelier/internal/storage"
)

// openDatabase connects to the configured database and runs migrations.
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	return storage.Open(ctx, storage.Options{
		Driver:          cfg.Database.Driver,
		SQLitePath:      cfg.Database.SQLite.Path,
		JournalMode:     cfg.Database.SQLite.JournalMode,
		MaxOpenConns:    maxOpenConns(cfg),
		PostgresDSN:     cfg.Database.Postgres.DSN,
		MaxIdleConns:    cfg.Database.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.Postgres.ConnMaxLifetime,
	})
}

func maxOpenConns(cfg *config.Config) int {
	if cfg.Database.Driver == "sqlite" {
		return cfg.Database.SQLite.MaxOpenConns
	}
	return cfg.Database.Postgres.MaxOpenConns
}

// openCache builds the cache client and the event fan-out for the
// configured driver. The redis client serves both roles; the memory
// client does the same in-process.
func openCache(cfg *config.Config) (cache.Client, cache.PubSub, error) {
	switch cfg.Cache.Driver {
	case "redis":
		client, err := cache.NewRedisClient(cache.RedisOptions{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	default:
		client := cache.NewMemoryClient(cfg.Cache.MaxEntries)
		return client, client, nil
	}
}
