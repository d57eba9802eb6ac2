package storagesql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openkcm/age-gate/internal/serviceerr"
	"github.com/openkcm/age-gate/internal/storage"
)

// Backend keeps entries in the age_gate_kv table. Expired rows are invisible
// to reads and removed by PurgeExpired.
type Backend struct {
	db  *pgxpool.Pool
	now func() time.Time
}

var (
	_ = storage.Backend(&Backend{})
	_ = storage.Taker(&Backend{})
)

func NewBackend(db *pgxpool.Pool) *Backend {
	return &Backend{
		db:  db,
		now: time.Now,
	}
}

func (b *Backend) Get(ctx context.Context, key string) (value []byte, _ error) {
	if err := b.db.QueryRow(ctx, `SELECT value
FROM age_gate_kv
WHERE key = $1
	AND (expiry IS NULL OR expiry > $2);`,
		key, b.now(),
	).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, serviceerr.ErrNotFound
		}

		return nil, fmt.Errorf("selecting from age_gate_kv: %w", err)
	}

	return value, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiry *time.Time
	if ttl > 0 {
		t := b.now().Add(ttl)
		expiry = &t
	}

	if _, err := b.db.Exec(ctx, `INSERT INTO age_gate_kv (key, value, expiry)
	VALUES ($1, $2, $3)
	ON CONFLICT (key)
	DO UPDATE SET (value, expiry) = (EXCLUDED.value, EXCLUDED.expiry);`,
		key, value, expiry,
	); err != nil {
		if err, ok := handlePgError(err); ok {
			return err
		}

		return fmt.Errorf("inserting into age_gate_kv: %w", err)
	}

	return nil
}

func (b *Backend) Remove(ctx context.Context, key string) error {
	if _, err := b.db.Exec(ctx, `DELETE FROM age_gate_kv WHERE key = $1;`, key); err != nil {
		return fmt.Errorf("deleting from age_gate_kv: %w", err)
	}

	return nil
}

// Take deletes the row and returns its value in one statement.
func (b *Backend) Take(ctx context.Context, key string) (value []byte, _ error) {
	var expiry *time.Time
	if err := b.db.QueryRow(ctx, `DELETE FROM age_gate_kv
WHERE key = $1
RETURNING value, expiry;`,
		key,
	).Scan(&value, &expiry); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, serviceerr.ErrNotFound
		}

		return nil, fmt.Errorf("deleting from age_gate_kv: %w", err)
	}

	if expiry != nil && !expiry.After(b.now()) {
		return nil, serviceerr.ErrNotFound
	}

	return value, nil
}

// PurgeExpired deletes all expired rows and reports how many were removed.
func (b *Backend) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := b.db.Exec(ctx, `DELETE FROM age_gate_kv WHERE expiry IS NOT NULL AND expiry <= $1;`, b.now())
	if err != nil {
		return 0, fmt.Errorf("purging age_gate_kv: %w", err)
	}

	return tag.RowsAffected(), nil
}
