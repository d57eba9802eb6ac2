package storagevalkey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/age-gate/internal/serviceerr"
	"github.com/openkcm/age-gate/internal/storage"
)

var (
	ErrGet    = errors.New("getting entry from store")
	ErrSet    = errors.New("setting entry into store")
	ErrRemove = errors.New("removing entry from store")
	ErrTake   = errors.New("taking entry from store")
)

// Backend keeps entries in ValKey under "<prefix>:<key>". Expiry is left to
// the server.
type Backend struct {
	valkey valkey.Client
	prefix string
}

var (
	_ = storage.Backend(&Backend{})
	_ = storage.Taker(&Backend{})
)

func NewBackend(valkeyClient valkey.Client, prefix string) *Backend {
	return &Backend{
		valkey: valkeyClient,
		prefix: strings.TrimSuffix(prefix, ":"),
	}
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	bytes, err := b.valkey.Do(ctx, b.valkey.B().Get().Key(b.key(key)).Build()).AsBytes()
	if err != nil {
		return nil, errors.Join(ErrGet, mapErr(err))
	}

	return bytes, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	set := b.valkey.B().Set().Key(b.key(key)).Value(valkey.BinaryString(value))

	var err error
	if ttl > 0 {
		err = b.valkey.Do(ctx, set.ExSeconds(seconds(ttl)).Build()).Error()
	} else {
		err = b.valkey.Do(ctx, set.Build()).Error()
	}
	if err != nil {
		return errors.Join(ErrSet, fmt.Errorf("executing set command: %w", err))
	}

	return nil
}

func (b *Backend) Remove(ctx context.Context, key string) error {
	if err := b.valkey.Do(ctx, b.valkey.B().Del().Key(b.key(key)).Build()).Error(); err != nil {
		return errors.Join(ErrRemove, fmt.Errorf("executing del command: %w", err))
	}

	return nil
}

// Take uses GETDEL, so two callers never receive the same entry.
func (b *Backend) Take(ctx context.Context, key string) ([]byte, error) {
	bytes, err := b.valkey.Do(ctx, b.valkey.B().Getdel().Key(b.key(key)).Build()).AsBytes()
	if err != nil {
		return nil, errors.Join(ErrTake, mapErr(err))
	}

	return bytes, nil
}

func (b *Backend) key(key string) string {
	if b.prefix == "" {
		return key
	}

	return b.prefix + ":" + key
}

func mapErr(err error) error {
	valkeyErr, ok := valkey.IsValkeyErr(err)
	if ok && valkeyErr.IsNil() {
		return serviceerr.ErrNotFound
	}

	return err
}

// seconds rounds ttl up, so that sub-second lifetimes do not become permanent.
func seconds(ttl time.Duration) int64 {
	return int64((ttl + time.Second - 1) / time.Second)
}
