package lease

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dmitrymomot/tenantkit/pkg/logger"
)

var tracer = otel.Tracer("github.com/dmitrymomot/tenantkit/pkg/lease")

// Manager grants exclusive connection leases and guarantees each connection is reset before it
// goes back to the pool.
type Manager struct {
	pool           Pool
	acquireTimeout time.Duration
	resetTimeout   time.Duration
	logger         *slog.Logger
	now            func() time.Time

	acquired  atomic.Int64
	released  atomic.Int64
	destroyed atomic.Int64
	timeouts  atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithAcquireTimeout bounds how long Acquire waits on an exhausted pool.
func WithAcquireTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.acquireTimeout = d
		}
	}
}

// WithResetTimeout bounds the reset performed on release.
func WithResetTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.resetTimeout = d
		}
	}
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a Manager over pool.
func NewManager(pool Pool, opts ...Option) *Manager {
	m := &Manager{
		pool:           pool,
		acquireTimeout: 5 * time.Second,
		resetTimeout:   2 * time.Second,
		logger:         slog.Default(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logger.Component("lease"))
	return m
}

// Acquire checks out one connection for the caller's exclusive use. It fails with
// ErrAcquireTimeout when the pool stays exhausted past the acquire timeout, or with the context
// error when ctx itself ends first. The caller must Release the lease.
func (m *Manager) Acquire(ctx context.Context) (*Lease, error) {
	ctx, span := tracer.Start(ctx, "lease.Acquire")
	defer span.End()

	acquireCtx, cancel := context.WithTimeout(ctx, m.acquireTimeout)
	defer cancel()

	start := m.now()
	conn, err := m.pool.Acquire(acquireCtx)
	if err != nil {
		span.SetStatus(codes.Error, "acquire failed")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || acquireCtx.Err() != nil {
			m.timeouts.Add(1)
			m.logger.WarnContext(ctx, "connection lease timed out",
				logger.Duration(m.now().Sub(start)))
			return nil, ErrAcquireTimeout
		}
		return nil, err
	}

	m.acquired.Add(1)
	span.SetAttributes(attribute.Int64("lease.wait_ms", m.now().Sub(start).Milliseconds()))

	return &Lease{
		mgr:        m,
		conn:       conn,
		acquiredAt: m.now(),
		searchPath: NeutralSearchPath,
	}, nil
}

// With runs fn on a fresh lease and releases it afterwards, including when fn panics. The panic
// is re-raised once the connection has been reset.
func (m *Manager) With(ctx context.Context, fn func(context.Context, *Lease) error) error {
	l, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer l.Release()
	return fn(ctx, l)
}

func (m *Manager) release(l *Lease, discarded bool) {
	ctx, cancel := context.WithTimeout(context.Background(), m.resetTimeout)
	defer cancel()

	held := m.now().Sub(l.acquiredAt)

	if !discarded {
		err := reset(ctx, l.conn)
		if err == nil {
			l.conn.Release()
			m.released.Add(1)
			return
		}
		m.logger.ErrorContext(ctx, "connection reset failed, destroying connection",
			logger.Error(err), logger.Duration(held))
	}

	if err := l.conn.Destroy(ctx); err != nil {
		m.logger.ErrorContext(ctx, "failed to close destroyed connection", logger.Error(err))
	}
	m.destroyed.Add(1)
}

// Stats is a snapshot of lease counters.
type Stats struct {
	Acquired  int64
	Released  int64
	Destroyed int64
	Timeouts  int64
}

// Outstanding returns the number of leases not yet released.
func (s Stats) Outstanding() int64 {
	return s.Acquired - s.Released - s.Destroyed
}

// Stats returns the current counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Acquired:  m.acquired.Load(),
		Released:  m.released.Load(),
		Destroyed: m.destroyed.Load(),
		Timeouts:  m.timeouts.Load(),
	}
}
