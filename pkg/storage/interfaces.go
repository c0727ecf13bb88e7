package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by KV.Get when a key has never been written or was deleted
var ErrNotFound = errors.New("storage: key not found")

// KV is an opaque key-value store holding serialized analytics records.
// Implementations must be safe for concurrent use.
type KV interface {
	// Get returns the value stored under key or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Close releases any resources held by the backend
	Close() error
}

// HealthChecker is implemented by backends that can report connectivity
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Backend types
const (
	TypeMemory     = "memory"
	TypeFilesystem = "filesystem"
	TypeRedis      = "redis"
	TypeSQL        = "sql"
	TypeBadger     = "badger"
	TypeS3         = "s3"
)

// Config for storage backend
type Config struct {
	Type string `env:"TYPE" envDefault:"filesystem"` // "memory", "filesystem", "redis", "sql", "badger", "s3"

	// KeyPrefix namespaces every key written by the backend
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"ppac:"`

	// Filesystem config
	FilesystemRoot string `env:"FILESYSTEM_ROOT" envDefault:"/var/lib/ppac"`

	// Redis config
	RedisURL        string `env:"REDIS_URL"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	RedisDB         int    `env:"REDIS_DB" envDefault:"0"`
	RedisMaxRetries int    `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	RedisPoolSize   int    `env:"REDIS_POOL_SIZE" envDefault:"10"`

	// SQL config
	SQLDriver  string        `env:"SQL_DRIVER" envDefault:"sqlite3"` // "sqlite3" or "postgres"
	SQLDSN     string        `env:"SQL_DSN"`
	SQLTimeout time.Duration `env:"SQL_TIMEOUT" envDefault:"10s"`

	// Badger config. An empty path keeps the database in memory.
	BadgerPath string `env:"BADGER_PATH"`

	// S3 config
	S3Endpoint     string `env:"S3_ENDPOINT"`
	S3Region       string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Bucket       string `env:"S3_BUCKET"`
	S3AccessKey    string `env:"S3_ACCESS_KEY"`
	S3SecretKey    string `env:"S3_SECRET_KEY"`
	S3UsePathStyle bool   `env:"S3_USE_PATH_STYLE" envDefault:"false"`

	// Read cache in front of the backend. Zero entries disables it.
	CacheSize int           `env:"CACHE_SIZE" envDefault:"0"`
	CacheTTL  time.Duration `env:"CACHE_TTL" envDefault:"5m"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:            TypeFilesystem,
		KeyPrefix:       "ppac:",
		FilesystemRoot:  "/var/lib/ppac",
		RedisDB:         0,
		RedisMaxRetries: 3,
		RedisPoolSize:   10,
		SQLDriver:       "sqlite3",
		SQLTimeout:      10 * time.Second,
		S3Region:        "us-east-1",
		CacheTTL:        5 * time.Minute,
	}
}

// Validate checks the backend specific settings
func (c Config) Validate() error {
	switch c.Type {
	case TypeMemory:
	case TypeFilesystem:
		if c.FilesystemRoot == "" {
			return fmt.Errorf("filesystem root is required for filesystem storage")
		}
	case TypeRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis storage")
		}
	case TypeSQL:
		if c.SQLDSN == "" {
			return fmt.Errorf("SQL DSN is required for sql storage")
		}
		if c.SQLDriver != "sqlite3" && c.SQLDriver != "postgres" {
			return fmt.Errorf("invalid SQL driver: %s (must be sqlite3 or postgres)", c.SQLDriver)
		}
	case TypeBadger:
	case TypeS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory, filesystem, redis, sql, badger, or s3)", c.Type)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size must not be negative")
	}
	return nil
}

// Open creates the backend selected by cfg.Type, wrapped in a read cache
// when cfg.CacheSize is set
func Open(ctx context.Context, cfg Config) (KV, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	kv, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		return NewCachedStore(kv, cfg.CacheSize, cfg.CacheTTL), nil
	}
	return kv, nil
}

func openBackend(ctx context.Context, cfg Config) (KV, error) {
	switch cfg.Type {
	case TypeMemory:
		return NewMemoryStore(), nil
	case TypeFilesystem:
		return NewFileSystemStore(cfg.FilesystemRoot)
	case TypeRedis:
		return NewRedisStore(ctx, cfg)
	case TypeSQL:
		return OpenSQLStore(ctx, cfg)
	case TypeBadger:
		return NewBadgerStore(cfg.BadgerPath, cfg.KeyPrefix)
	case TypeS3:
		return NewS3Store(ctx, cfg)
	}
	return nil, fmt.Errorf("invalid storage type: %s", cfg.Type)
}
