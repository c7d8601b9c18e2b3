package business

import (
	"context"
	"fmt"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-keeper/internal/config"
	"github.com/openkcm/session-keeper/internal/serviceerr"
	sessionsql "github.com/openkcm/session-keeper/pkg/session/sql"
)

// Purger removes expired entries and reports how many were deleted.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// HousekeeperMain periodically purges revocations whose tokens have expired
// from the database.
func HousekeeperMain(ctx context.Context, cfg *config.Config) error {
	if !databaseConfigured(cfg.Database) {
		return serviceerr.ErrConfig.WithDescription("housekeeping requires a database")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	engines, err := newEngines(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialise the database: %w", err)
	}
	defer engines.Close()

	runHousekeeping(ctx, sessionsql.NewRevocationList(engines), cfg.Housekeeper.PurgeInterval)

	return nil
}

func runHousekeeping(ctx context.Context, purger Purger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		purged, err := purger.Purge(ctx)
		if err != nil {
			slogctx.Error(ctx, "Error during revocation housekeeping", "error", err)
		} else {
			slogctx.Info(ctx, "Purged expired revocations", "count", purged)
		}

		select {
		case <-ticker.C:
			continue
		case <-ctx.Done():
			return
		}
	}
}
