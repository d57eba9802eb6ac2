package business

import (
	"context"
	"fmt"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/age-gate/internal/config"
	storagesql "github.com/openkcm/age-gate/internal/storage/sql"
)

// HousekeeperMain periodically purges expired records of the sql storage.
// The other backends expire records on their own.
func HousekeeperMain(ctx context.Context, cfg *config.Config) error {
	if cfg.Storage.Type != config.StorageTypeSQL {
		slogctx.Info(ctx, "Nothing to clean up", "storage", cfg.Storage.Type)
		return nil
	}

	db, err := dbPoolFromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialise the database: %w", err)
	}
	defer db.Close()

	return purgeLoop(ctx, storagesql.NewBackend(db), cfg.Housekeeper.Interval)
}

type purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

func purgeLoop(ctx context.Context, p purger, interval time.Duration) error {
	c := time.Tick(interval)
	for {
		n, err := p.PurgeExpired(ctx)
		if err != nil {
			slogctx.Error(ctx, "Error during storage housekeeping", "error", err)
		} else {
			slogctx.Info(ctx, "Purged expired records", "count", n)
		}

		select {
		case <-c:
			continue
		case <-ctx.Done():
			return nil
		}
	}
}
