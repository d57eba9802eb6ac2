package storagevalkey

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/age-gate/internal/dbtest/valkeytest"
	"github.com/openkcm/age-gate/internal/serviceerr"
	"github.com/openkcm/age-gate/internal/storage"
)

func TestBackendKey(t *testing.T) {
	tests := []struct {
		prefix   string
		key      string
		expected string
	}{
		{"age-gate", "aw_s1_verified", "age-gate:aw_s1_verified"},
		{"age-gate:", "aw_s1_oidc_state", "age-gate:aw_s1_oidc_state"},
		{"a:b:", "k", "a:b:k"},
		{"", "k", "k"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			b := NewBackend(nil, tt.prefix)
			assert.Equal(t, tt.expected, b.key(tt.key))
		})
	}
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, int64(1), seconds(10*time.Millisecond))
	assert.Equal(t, int64(600), seconds(10*time.Minute))
	assert.Equal(t, int64(2), seconds(1500*time.Millisecond))
}

func TestBackend(t *testing.T) {
	ctx := t.Context()
	valkeyClient, _, terminate := valkeytest.Start(ctx)
	defer terminate(ctx)

	b := NewBackend(valkeyClient, "test")

	t.Run("set get remove", func(t *testing.T) {
		require.NoError(t, b.Set(ctx, "k1", []byte(`{"access_token":"tok"}`), time.Minute))

		v, err := b.Get(ctx, "k1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"access_token":"tok"}`, string(v))

		ttl, err := valkeyClient.Do(ctx, valkeyClient.B().Ttl().Key("test:k1").Build()).AsInt64()
		require.NoError(t, err)
		assert.InDelta(t, 60, ttl, 2)

		require.NoError(t, b.Remove(ctx, "k1"))
		_, err = b.Get(ctx, "k1")
		require.ErrorIs(t, err, serviceerr.ErrNotFound)
		assert.ErrorIs(t, err, ErrGet)
	})

	t.Run("entries expire", func(t *testing.T) {
		require.NoError(t, b.Set(ctx, "short", []byte("v"), time.Second))
		time.Sleep(1500 * time.Millisecond)

		_, err := b.Get(ctx, "short")
		assert.ErrorIs(t, err, serviceerr.ErrNotFound)
	})

	t.Run("take is one-time", func(t *testing.T) {
		require.NoError(t, b.Set(ctx, "state", []byte("v"), time.Minute))

		var (
			wg   sync.WaitGroup
			hits atomic.Int32
		)
		for range 8 {
			wg.Go(func() {
				if _, err := b.Take(ctx, "state"); err == nil {
					hits.Add(1)
				}
			})
		}
		wg.Wait()

		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("storage over valkey", func(t *testing.T) {
		s := storage.New(b, storage.WithKeyPrefix("aw_session1_"))

		require.NoError(t, s.SetOIDCState(ctx, storage.OIDCState{State: "st", Expiry: time.Now().Add(time.Minute)}))
		got, err := s.TakeOIDCState(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "st", got.State)

		got, err = s.TakeOIDCState(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
