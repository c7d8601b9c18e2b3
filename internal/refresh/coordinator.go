// Package refresh collapses concurrent token refresh attempts into a single
// network call and fans the outcome out to every waiter.
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-keeper/internal/serviceerr"
)

const (
	DefaultTimeout    = 5 * time.Second
	DefaultMaxRetries = 2
)

// Result is the outcome of a successful refresh. RefreshToken is empty when
// the endpoint did not rotate the refresh token.
type Result struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Refresher performs exactly one call to the refresh endpoint.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Result, error)
}

// State is the coordinator state: Idle, or Refreshing with a pending result.
type State int

const (
	StateIdle State = iota
	StateRefreshing
)

func (s State) String() string {
	if s == StateRefreshing {
		return "refreshing"
	}

	return "idle"
}

// pending is the shared result of one in-flight refresh. result and err are
// written once before done is closed.
type pending struct {
	done    chan struct{}
	waiters int
	result  Result
	err     error
}

type Coordinator struct {
	refresher Refresher

	timeout     time.Duration
	maxRetries  int
	newBackOff  func() backoff.BackOff
	onRefreshed func(context.Context, Result)
	onFailed    func(context.Context, error)

	calls metric.Int64Counter

	mu       sync.Mutex
	inflight *pending // nil while Idle
}

type Option func(*Coordinator)

// WithTimeout bounds every individual refresh network call.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxRetries sets how many additional attempts follow a network error or timeout.
func WithMaxRetries(n int) Option {
	return func(c *Coordinator) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Coordinator) { c.newBackOff = newBackOff }
}

// WithOnRefreshed registers a hook that runs once per successful refresh,
// before any waiter is released.
func WithOnRefreshed(fn func(context.Context, Result)) Option {
	return func(c *Coordinator) { c.onRefreshed = fn }
}

// WithOnFailed registers a hook that runs once per failed refresh, after
// retries are exhausted and before any waiter is released.
func WithOnFailed(fn func(context.Context, error)) Option {
	return func(c *Coordinator) { c.onFailed = fn }
}

func NewCoordinator(refresher Refresher, opts ...Option) *Coordinator {
	c := &Coordinator{
		refresher:  refresher,
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	counter, err := otel.Meter("session-keeper/refresh").Int64Counter(
		"refresh.network_calls",
		metric.WithDescription("Calls made to the refresh endpoint"),
		metric.WithUnit("call"),
	)
	if err == nil {
		c.calls = counter
	}

	return c
}

// State reports whether a refresh is currently in flight.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight != nil {
		return StateRefreshing
	}

	return StateIdle
}

// Refresh returns a fresh token set. When the coordinator is Idle, the caller
// triggers the one network refresh of this contention window using presented.
// When it is already Refreshing, presented is ignored and the caller waits for
// the in-flight result. Cancelling ctx only stops this caller from waiting.
func (c *Coordinator) Refresh(ctx context.Context, presented string) (Result, error) {
	p := c.subscribe(ctx, presented)

	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return Result{}, serviceerr.ErrRefreshTimeout.
			WithDescription("caller stopped waiting for refresh").
			Wrap(ctx.Err())
	}
}

// Waiters returns the number of callers subscribed to the in-flight refresh.
func (c *Coordinator) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight == nil {
		return 0
	}

	return c.inflight.waiters
}

// subscribe returns the pending result, starting a refresh when Idle.
func (c *Coordinator) subscribe(ctx context.Context, presented string) *pending {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight != nil {
		c.inflight.waiters++
		slogctx.Debug(ctx, "Joining in-flight token refresh", "waiters", c.inflight.waiters)
		return c.inflight
	}

	p := &pending{done: make(chan struct{}), waiters: 1}
	c.inflight = p

	go c.run(context.WithoutCancel(ctx), p, presented)

	return p
}

func (c *Coordinator) run(ctx context.Context, p *pending, presented string) {
	result, err := c.refreshWithRetry(ctx, presented)
	switch {
	case err == nil && c.onRefreshed != nil:
		c.onRefreshed(ctx, result)
	case err != nil && c.onFailed != nil:
		c.onFailed(ctx, err)
	}

	c.mu.Lock()
	p.result, p.err = result, err
	waiters := p.waiters
	c.inflight = nil
	c.mu.Unlock()

	slogctx.Debug(ctx, "Releasing refresh waiters", "waiters", waiters)
	close(p.done)
}

func (c *Coordinator) refreshWithRetry(ctx context.Context, presented string) (Result, error) {
	attempt := 0
	operation := func() (Result, error) {
		attempt++
		slogctx.Debug(ctx, "Calling refresh endpoint", "attempt", attempt)

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		result, err := c.refresher.Refresh(callCtx, presented)
		c.recordCall(ctx, err)
		if err == nil {
			return result, nil
		}

		err = classify(callCtx, err)
		if errors.Is(err, serviceerr.ErrRefreshRevoked) {
			return Result{}, backoff.Permanent(err)
		}

		return Result{}, err
	}

	notify := func(err error, next time.Duration) {
		slogctx.Warn(ctx, "Token refresh failed, retrying", "attempt", attempt, "retry_in", next, "error", err)
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.maxRetries)+1),
		backoff.WithNotify(notify),
	)
	if err != nil {
		if _, ok := serviceerr.CodeOf(err); !ok {
			err = serviceerr.ErrRefreshNetwork.Wrap(err)
		}
		slogctx.Error(ctx, "Token refresh failed", "attempts", attempt, "error", err)

		return Result{}, err
	}

	slogctx.Info(ctx, "Token refreshed", "attempts", attempt)

	return result, nil
}

func (c *Coordinator) recordCall(ctx context.Context, err error) {
	if c.calls == nil {
		return
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.calls.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// classify maps a raw refresher error onto the refresh error taxonomy.
func classify(callCtx context.Context, err error) error {
	if errors.Is(err, serviceerr.ErrRefreshRevoked) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return serviceerr.ErrRefreshTimeout.Wrap(err)
	}

	if _, ok := serviceerr.CodeOf(err); ok {
		return err
	}

	return serviceerr.ErrRefreshNetwork.Wrap(err)
}
