package business

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/XSAM/otelsql"
	"github.com/pressly/goose/v3"
	"github.com/samber/oops"

	// Register pgx driver
	_ "github.com/jackc/pgx/v5/stdlib"

	slogctx "github.com/veqryn/slog-context"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/openkcm/session-keeper/internal/config"
	migrations "github.com/openkcm/session-keeper/sql"
)

const migrationDriver = "pgx"

// schemaMigrator applies the embedded schema to one database handle.
type schemaMigrator struct {
	db       *sql.DB
	stats    interface{ Unregister() error }
	provider *goose.Provider
}

func openSchemaMigrator(dbCfg config.Database) (*schemaMigrator, error) {
	connStr, err := config.MakeConnStr(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("making connection string from config: %w", err)
	}

	attrs := otelsql.WithAttributes(semconv.DBSystemNamePostgreSQL)

	db, err := otelsql.Open(migrationDriver, connStr, attrs)
	if err != nil {
		return nil, oops.In("migrate").Wrapf(err, "opening DB connection")
	}

	stats, err := otelsql.RegisterDBStatsMetrics(db, attrs)
	if err != nil {
		_ = db.Close()
		return nil, oops.In("migrate").Wrapf(err, "registering db stats metrics")
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		_ = stats.Unregister()
		_ = db.Close()
		return nil, oops.In("migrate").Wrapf(err, "loading embedded migrations")
	}

	return &schemaMigrator{db: db, stats: stats, provider: provider}, nil
}

// up applies every pending migration and returns the resulting schema version.
func (m *schemaMigrator) up(ctx context.Context) (int64, error) {
	results, err := m.provider.Up(ctx)
	for _, r := range results {
		if r.Error != nil {
			continue
		}
		slogctx.Info(ctx, "Applied migration", "version", r.Source.Version, "file", r.Source.Path, "duration", r.Duration)
	}
	if err != nil {
		return 0, oops.In("migrate").Wrapf(err, "applying migrations")
	}

	version, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, oops.In("migrate").Wrapf(err, "reading schema version")
	}

	return version, nil
}

func (m *schemaMigrator) close() error {
	return errors.Join(m.stats.Unregister(), m.db.Close())
}

// MigrateMain applies the schema migrations to the configured database.
func MigrateMain(ctx context.Context, cfg *config.Config) error {
	m, err := openSchemaMigrator(cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.close(); err != nil {
			slogctx.Error(ctx, "failed to release migration connection", "error", err)
		}
	}()

	version, err := m.up(ctx)
	if err != nil {
		return err
	}

	slogctx.Info(ctx, "Database schema is up to date", "version", version)

	return nil
}
