package storage

import (
	"context"
	"time"
)

// Backend is the key-value capability behind every persistence strategy.
// Get returns serviceerr.ErrNotFound for absent keys. A ttl of zero means
// the backend's default lifetime.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
}

// Taker is implemented by backends able to read and delete a key in one
// atomic step. Take returns serviceerr.ErrNotFound for absent keys.
type Taker interface {
	Take(ctx context.Context, key string) ([]byte, error)
}
