// Package storage provides pluggable key-value backends for locally buffered analytics records.
//
// # Overview
//
// The analytics pipeline treats persistence as an opaque key-value store: records are
// serialized by pkg/analytics and handed to a KV as bytes. This package defines the KV
// interface and ships several backends so an agent can pick the one matching its
// deployment.
//
//	type KV interface {
//		Get(ctx context.Context, key string) ([]byte, error)
//		Set(ctx context.Context, key string, value []byte) error
//		Delete(ctx context.Context, keys ...string) error
//		Close() error
//	}
//
// Get returns ErrNotFound for keys that were never written.
//
// # Backend Implementations
//
// MemoryStore: map guarded by a RWMutex. Tests and ephemeral agents.
//
// FileSystemStore: one file per key, written atomically via rename.
//
//	kv, err := storage.NewFileSystemStore("/var/lib/ppac")
//
// RedisStore: shared Redis instance, keys namespaced by Config.KeyPrefix.
//
// SQLStore: single analytics_kv table on SQLite or PostgreSQL.
//
// BadgerStore: embedded Badger database, on disk or in memory.
//
// S3Store: one object per key in an S3 or MinIO bucket.
//
// CachedStore wraps any backend with an expiring LRU read cache; Open adds it
// when Config.CacheSize is set.
//
// Open selects a backend from Config:
//
//	kv, err := storage.Open(ctx, storage.Config{Type: storage.TypeRedis, RedisURL: "redis://localhost:6379"})
//
// # Related Packages
//
//   - pkg/analytics: typed records on top of KV
//   - pkg/config: environment configuration for Config
package storage
