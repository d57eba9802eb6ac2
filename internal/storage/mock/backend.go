package storagemock

import (
	"context"
	"sync"
	"time"

	"github.com/openkcm/age-gate/internal/serviceerr"
	"github.com/openkcm/age-gate/internal/storage"
)

type BackendOption func(*Backend)

// Backend is an in-memory storage.Backend with fault injection. It does not
// implement storage.Taker.
type Backend struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration

	getErr, setErr, removeErr error

	gets, sets, removes int
}

func WithEntry(key string, value []byte) BackendOption {
	return func(b *Backend) { b.entries[key] = value }
}
func WithGetError(err error) BackendOption {
	return func(b *Backend) { b.getErr = err }
}
func WithSetError(err error) BackendOption {
	return func(b *Backend) { b.setErr = err }
}
func WithRemoveError(err error) BackendOption {
	return func(b *Backend) { b.removeErr = err }
}

var _ = storage.Backend(&Backend{})

func NewInMemBackend(opts ...BackendOption) *Backend {
	b := &Backend{
		entries: make(map[string][]byte),
		ttls:    make(map[string]time.Duration),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.gets++
	if b.getErr != nil {
		return nil, b.getErr
	}
	v, ok := b.entries[key]
	if !ok {
		return nil, serviceerr.ErrNotFound
	}
	return v, nil
}

func (b *Backend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sets++
	if b.setErr != nil {
		return b.setErr
	}
	b.entries[key] = value
	b.ttls[key] = ttl
	return nil
}

func (b *Backend) Remove(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.removes++
	if b.removeErr != nil {
		return b.removeErr
	}
	delete(b.entries, key)
	delete(b.ttls, key)
	return nil
}

// TGet returns the raw entry stored under key.
func (b *Backend) TGet(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, ok := b.entries[key]
	return v, ok
}

// TTTL returns the ttl key was last written with.
func (b *Backend) TTTL(key string) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.ttls[key]
}

func (b *Backend) TLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.entries)
}

func (b *Backend) TSets() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.sets
}
