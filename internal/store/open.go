package store

import (
	"context"
	"fmt"
	"path/filepath"
)

// Backend kinds accepted by OpenBackend
const (
	KindMemory   = "memory"
	KindFile     = "file"
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
	KindRedis    = "redis"
)

// BackendConfig selects and configures a backend
type BackendConfig struct {
	Kind          string
	Dir           string
	SQLitePath    string
	PostgresDSN   string
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// OpenBackend constructs the backend named by cfg.Kind
func OpenBackend(ctx context.Context, cfg BackendConfig) (Backend, error) {
	switch cfg.Kind {
	case KindMemory:
		return NewMemoryBackend(), nil
	case KindFile, "":
		return NewFileBackend(cfg.Dir)
	case KindSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.Dir, "records.db")
		}
		return NewSQLiteBackend(ctx, path)
	case KindPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres backend requires a DSN")
		}
		return NewPostgresBackend(ctx, cfg.PostgresDSN)
	case KindRedis:
		return NewRedisBackend(ctx, RedisOptions{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Kind)
	}
}
