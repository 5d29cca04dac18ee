package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/store"
)

// Config holds all configuration for the evaluation engine
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Catalog  CatalogConfig
	Identity IdentityConfig
	Monitor  MonitorConfig
	Export   ExportConfig
	LogLevel slog.Level
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// StoreConfig selects the record store backend
type StoreConfig struct {
	Backend    string
	Dir        string
	SQLitePath string
	Namespace  string
	QuotaBytes int64
}

// DatabaseConfig holds PostgreSQL configuration. DSN enables remote
// persistence of evaluations; StoreDSN backs the postgres record store.
type DatabaseConfig struct {
	DSN      string
	StoreDSN string
	Migrate  bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// CatalogConfig points at extra preloaded template files
type CatalogConfig struct {
	Dir string
}

// IdentityConfig holds the user id used when a request carries none
type IdentityConfig struct {
	DefaultUserID string
}

// MonitorConfig holds quota monitor configuration
type MonitorConfig struct {
	Interval  time.Duration
	WarnRatio float64
}

// ExportConfig holds file export configuration
type ExportConfig struct {
	Dir  string
	Gzip bool
}

// LoadDotEnv reads a .env file into the environment when one exists.
// Variables already set take precedence.
func LoadDotEnv(paths ...string) {
	_ = godotenv.Load(paths...)
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	quota, err := getEnvAsBytes("STORE_QUOTA", 5*1024*1024)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			CORSOrigins:  getEnvAsList("CORS_ORIGINS", []string{"*"}),
		},
		Store: StoreConfig{
			Backend:    getEnv("STORE_BACKEND", store.KindFile),
			Dir:        getEnv("STORE_DIR", "./data"),
			SQLitePath: getEnv("STORE_SQLITE_PATH", ""),
			Namespace:  getEnv("STORE_NAMESPACE", store.DefaultNamespace),
			QuotaBytes: quota,
		},
		Database: DatabaseConfig{
			DSN:      getEnv("DATABASE_URL", ""),
			StoreDSN: getEnv("STORE_DATABASE_URL", ""),
			Migrate:  getEnvAsBool("DATABASE_MIGRATE", true),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "bdguide:"),
		},
		Catalog: CatalogConfig{
			Dir: getEnv("CATALOG_DIR", ""),
		},
		Identity: IdentityConfig{
			DefaultUserID: getEnv("DEFAULT_USER_ID", "local"),
		},
		Monitor: MonitorConfig{
			Interval:  getEnvAsDuration("MONITOR_INTERVAL", 5*time.Minute),
			WarnRatio: getEnvAsFloat("MONITOR_WARN_RATIO", 0.8),
		},
		Export: ExportConfig{
			Dir:  getEnv("EXPORT_DIR", "./exports"),
			Gzip: getEnvAsBool("EXPORT_GZIP", false),
		},
		LogLevel: getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),
	}

	if cfg.Database.StoreDSN == "" {
		cfg.Database.StoreDSN = cfg.Database.DSN
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Store.Backend {
	case store.KindMemory, store.KindRedis:
	case store.KindFile, store.KindSQLite:
		if c.Store.Dir == "" && c.Store.SQLitePath == "" {
			return fmt.Errorf("store directory is required for the %s backend", c.Store.Backend)
		}
	case store.KindPostgres:
		if c.Database.StoreDSN == "" {
			return fmt.Errorf("STORE_DATABASE_URL or DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend: %q", c.Store.Backend)
	}

	if c.Store.QuotaBytes < 0 {
		return fmt.Errorf("invalid store quota: %d", c.Store.QuotaBytes)
	}

	if c.Monitor.WarnRatio <= 0 || c.Monitor.WarnRatio > 1 {
		return fmt.Errorf("invalid monitor warn ratio: %v", c.Monitor.WarnRatio)
	}

	if c.Identity.DefaultUserID == "" {
		return fmt.Errorf("default user id is required")
	}

	return nil
}

// BackendConfig maps the store section onto the record store opener
func (c *Config) BackendConfig() store.BackendConfig {
	return store.BackendConfig{
		Kind:          c.Store.Backend,
		Dir:           c.Store.Dir,
		SQLitePath:    c.Store.SQLitePath,
		PostgresDSN:   c.Database.StoreDSN,
		RedisAddress:  c.Redis.Address,
		RedisPassword: c.Redis.Password,
		RedisDB:       c.Redis.DB,
		RedisPrefix:   c.Redis.Prefix,
	}
}

// Address returns the HTTP listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvAsBytes accepts plain byte counts or sizes such as "5MB"; "0" disables the quota
func getEnvAsBytes(key string, defaultValue int64) (int64, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return int64(n), nil
}

func getEnvAsLevel(key string, defaultValue slog.Level) slog.Level {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return defaultValue
	}
	return level
}
