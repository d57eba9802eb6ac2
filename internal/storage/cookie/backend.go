// Package storagecookie persists gate records in browser cookies. Values are
// authenticated and optionally encrypted with gorilla/securecookie.
package storagecookie

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/openkcm/age-gate/internal/config"
	"github.com/openkcm/age-gate/internal/serviceerr"
	"github.com/openkcm/age-gate/internal/storage"
)

// Codec holds the keys and cookie attributes shared by all requests.
type Codec struct {
	sc       *securecookie.SecureCookie
	template config.CookieTemplate
}

// NewCodec returns a Codec signing with hashKey and, when blockKey is not
// empty, encrypting with AES. Empty template attributes default to
// path=/, SameSite=Lax and Secure.
func NewCodec(hashKey, blockKey []byte, template config.CookieTemplate) *Codec {
	if len(blockKey) == 0 {
		blockKey = nil
	}

	sc := securecookie.New(hashKey, blockKey)
	sc.SetSerializer(securecookie.NopEncoder{})
	// records carry their own expiry
	sc.MaxAge(0)

	return &Codec{sc: sc, template: template.WithDefaults("")}
}

// Jar is the cookie backend of a single request. Writes are sent as
// Set-Cookie headers and are visible to later reads of the same Jar.
type Jar struct {
	codec *Codec
	r     *http.Request
	w     http.ResponseWriter

	mu      sync.Mutex
	pending map[string][]byte
}

var _ = storage.Backend(&Jar{})

func (c *Codec) Jar(w http.ResponseWriter, r *http.Request) *Jar {
	return &Jar{
		codec:   c,
		r:       r,
		w:       w,
		pending: make(map[string][]byte),
	}
}

func (j *Jar) Get(_ context.Context, key string) ([]byte, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if v, ok := j.pending[key]; ok {
		if v == nil {
			return nil, serviceerr.ErrNotFound
		}
		return v, nil
	}

	c, err := j.r.Cookie(key)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, serviceerr.ErrNotFound
		}
		return nil, err
	}

	var value []byte
	if err := j.codec.sc.Decode(key, c.Value, &value); err != nil {
		return nil, errors.Join(serviceerr.ErrStorageCorrupted, err)
	}

	return value, nil
}

// Set writes the cookie with a max-age of ttl, or the template max-age when
// ttl is zero.
func (j *Jar) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	encoded, err := j.codec.sc.Encode(key, value)
	if err != nil {
		return err
	}

	c := j.codec.template.ToCookie(encoded)
	c.Name = key
	if ttl > 0 {
		c.MaxAge = int((ttl + time.Second - 1) / time.Second)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	http.SetCookie(j.w, c)
	j.pending[key] = value

	return nil
}

func (j *Jar) Remove(_ context.Context, key string) error {
	c := j.codec.template.Expire()
	c.Name = key

	j.mu.Lock()
	defer j.mu.Unlock()

	http.SetCookie(j.w, c)
	j.pending[key] = nil

	return nil
}
