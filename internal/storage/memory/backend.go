// Package storagememory is the origin-local persistence strategy: a process
// wide store with per-entry expiry, shared by all sessions through
// storage.Scoped.
package storagememory

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/openkcm/age-gate/internal/serviceerr"
	"github.com/openkcm/age-gate/internal/storage"
)

type Backend struct {
	// mu makes Take atomic; go-cache only locks single operations.
	mu    sync.Mutex
	cache *cache.Cache
}

var (
	_ = storage.Backend(&Backend{})
	_ = storage.Taker(&Backend{})
)

// NewBackend returns a Backend whose entries live defaultTTL unless written
// with their own ttl. Expired entries are evicted every cleanupInterval.
func NewBackend(defaultTTL, cleanupInterval time.Duration) *Backend {
	return &Backend{
		cache: cache.New(defaultTTL, cleanupInterval),
	}
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := b.cache.Get(key)
	if !ok {
		return nil, serviceerr.ErrNotFound
	}

	//nolint:forcetypeassert
	return v.([]byte), nil
}

func (b *Backend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.DefaultExpiration
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.cache.Set(key, value, ttl)

	return nil
}

func (b *Backend) Remove(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cache.Delete(key)

	return nil
}

func (b *Backend) Take(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, ok := b.cache.Get(key)
	if !ok {
		return nil, serviceerr.ErrNotFound
	}
	b.cache.Delete(key)

	//nolint:forcetypeassert
	return v.([]byte), nil
}

// Len reports the number of entries, including expired ones not yet evicted.
func (b *Backend) Len() int {
	return b.cache.ItemCount()
}
