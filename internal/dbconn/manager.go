// Package dbconn builds the database connection pool lazily, on first use,
// so that process startup and liveness never depend on database reachability.
package dbconn

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-keeper/internal/serviceerr"
)

// Engine is a pooled database handle. Connections are leased per call and
// returned to the pool when the call completes. *pgxpool.Pool implements it.
type Engine interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type Config struct {
	URL            string
	MaxConns       int32
	RecycleAfter   time.Duration
	ConnectTimeout time.Duration
}

// Builder constructs an Engine. Callers of Get that arrive while a
// construction is running share its outcome instead of calling it again.
type Builder func(ctx context.Context, cfg Config) (Engine, error)

// slot lets an interface value live behind an atomic.Pointer.
type slot struct {
	engine Engine
}

// attempt is one running construction. engine and err are set before done
// is closed.
type attempt struct {
	done   chan struct{}
	engine Engine
	err    error
}

type Manager struct {
	cfg   Config
	build Builder

	current  atomic.Pointer[slot]
	mu       sync.Mutex
	building *attempt

	constructions metric.Int64Counter
}

type Option func(*Manager)

// WithBuilder replaces the pgx pool builder, e.g. with a fake in tests.
func WithBuilder(build Builder) Option {
	return func(m *Manager) { m.build = build }
}

func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:   cfg,
		build: NewPool,
	}
	for _, opt := range opts {
		opt(m)
	}

	counter, err := otel.Meter("session-keeper/dbconn").Int64Counter(
		"db.engine.constructions",
		metric.WithDescription("Attempts to construct the database engine"),
		metric.WithUnit("attempt"),
	)
	if err == nil {
		m.constructions = counter
	}

	return m
}

// Get returns the engine, constructing it on the first call. Once built, Get
// is a lock-free read. Concurrent callers share one construction, which runs
// detached from the caller's cancellation; a caller whose ctx ends first gets
// ErrConnectionUnavailable without waiting further. A failed construction is
// reported to everyone who waited for it and not remembered, so the next call
// tries again.
func (m *Manager) Get(ctx context.Context) (Engine, error) {
	if s := m.current.Load(); s != nil {
		return s.engine, nil
	}

	m.mu.Lock()
	// Another caller may have finished construction while we waited.
	if s := m.current.Load(); s != nil {
		m.mu.Unlock()
		return s.engine, nil
	}

	a := m.building
	if a == nil {
		a = &attempt{done: make(chan struct{})}
		m.building = a
		go m.run(context.WithoutCancel(ctx), a)
	}
	m.mu.Unlock()

	select {
	case <-a.done:
		if a.err != nil {
			return nil, serviceerr.ErrConnectionUnavailable.Wrap(a.err)
		}
		return a.engine, nil
	case <-ctx.Done():
		return nil, serviceerr.ErrConnectionUnavailable.Wrap(ctx.Err())
	}
}

func (m *Manager) run(ctx context.Context, a *attempt) {
	engine, err := m.construct(ctx)

	m.mu.Lock()
	if err == nil {
		m.current.Store(&slot{engine: engine})
	}
	m.building = nil
	m.mu.Unlock()

	a.engine, a.err = engine, err
	close(a.done)

	if err != nil {
		slogctx.Error(ctx, "Failed to construct the database engine", "error", err)
		return
	}
	slogctx.Info(ctx, "Database engine constructed", "max_conns", m.cfg.MaxConns, "recycle_after", m.cfg.RecycleAfter)
}

// Ready reports whether an engine has been constructed, without building one.
func (m *Manager) Ready() bool {
	return m.current.Load() != nil
}

// Close tears the pool down and empties the slot, so that a later Get
// rebuilds it. Calling Close on an empty manager does nothing.
func (m *Manager) Close() {
	m.mu.Lock()
	a := m.building
	m.mu.Unlock()

	// A running construction is awaited so its pool is not leaked.
	if a != nil {
		<-a.done
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.current.Swap(nil)
	if s == nil {
		return
	}

	s.engine.Close()
}

func (m *Manager) construct(ctx context.Context) (engine Engine, err error) {
	defer func() {
		if m.constructions == nil {
			return
		}

		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		m.constructions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}()

	if m.cfg.URL == "" {
		return nil, serviceerr.ErrConfig.WithDescription("database URL is not configured")
	}

	return m.build(ctx, m.cfg)
}
