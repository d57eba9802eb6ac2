// Package storageredis keeps gate records in any server speaking the Redis
// protocol through go-redis.
package storageredis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openkcm/age-gate/internal/serviceerr"
	"github.com/openkcm/age-gate/internal/storage"
)

type Backend struct {
	rdb    redis.UniversalClient
	prefix string
}

var (
	_ = storage.Backend(&Backend{})
	_ = storage.Taker(&Backend{})
)

func NewBackend(rdb redis.UniversalClient, prefix string) *Backend {
	return &Backend{rdb: rdb, prefix: prefix}
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := b.rdb.Get(ctx, b.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, serviceerr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	return res, nil
}

// Set writes value with ttl. A ttl of zero keeps the key without expiry.
func (b *Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := b.rdb.Set(ctx, b.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

func (b *Backend) Remove(ctx context.Context, key string) error {
	if err := b.rdb.Del(ctx, b.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

func (b *Backend) Take(ctx context.Context, key string) ([]byte, error) {
	res, err := b.rdb.GetDel(ctx, b.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, serviceerr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis getdel: %w", err)
	}

	return res, nil
}
