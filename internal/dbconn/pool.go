package dbconn

import (
	"context"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultConnectTimeout = 3 * time.Second
	prePingTimeout        = time.Second
)

var _ Engine = (*pgxpool.Pool)(nil)

// NewPool builds a pgx pool bounded by cfg.MaxConns whose connections are
// recycled after cfg.RecycleAfter and pinged before every checkout.
func NewPool(ctx context.Context, cfg Config) (Engine, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}

	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.RecycleAfter > 0 {
		pcfg.MaxConnLifetime = cfg.RecycleAfter
	}

	pcfg.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		ctx, cancel := context.WithTimeout(ctx, prePingTimeout)
		defer cancel()

		return conn.Ping(ctx) == nil
	}
	pcfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	if err := ping(ctx, pool, timeout); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// ping checks that a connection can be acquired within timeout.
func ping(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	conn.Release()

	return nil
}
