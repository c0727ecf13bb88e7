package storage

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedStore is a read-through LRU cache in front of another KV. Writes go
// to the backend first and update the cache only when they succeed.
type CachedStore struct {
	next  KV
	cache *lru.LRU[string, []byte]
}

// NewCachedStore wraps next with a cache of at most size entries. A zero ttl
// keeps entries until they are evicted.
func NewCachedStore(next KV, size int, ttl time.Duration) *CachedStore {
	if size <= 0 {
		size = 64
	}
	return &CachedStore{
		next:  next,
		cache: lru.NewLRU[string, []byte](size, nil, ttl),
	}
}

// Get implements KV.Get
func (s *CachedStore) Get(ctx context.Context, key string) ([]byte, error) {
	if value, ok := s.cache.Get(key); ok {
		return clone(value), nil
	}
	value, err := s.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, clone(value))
	return value, nil
}

// Set implements KV.Set
func (s *CachedStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.next.Set(ctx, key, value); err != nil {
		s.cache.Remove(key)
		return err
	}
	s.cache.Add(key, clone(value))
	return nil
}

// Delete implements KV.Delete. Cached entries are dropped even when the
// backend fails, so the next read goes to the backend.
func (s *CachedStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		s.cache.Remove(key)
	}
	return s.next.Delete(ctx, keys...)
}

// HealthCheck forwards to the backend when it supports health checks
func (s *CachedStore) HealthCheck(ctx context.Context) error {
	if hc, ok := s.next.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// Close purges the cache and closes the backend
func (s *CachedStore) Close() error {
	s.cache.Purge()
	return s.next.Close()
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
