package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenantkit/pkg/logger"
)

// Writer persists batches of entries. Implementations append only.
type Writer interface {
	WriteBatch(ctx context.Context, entries []Entry) error
}

// Extractor reads a string attribute of the current request from ctx.
type Extractor func(context.Context) (string, bool)

// TenantExtractor reads the current tenant from ctx.
type TenantExtractor func(context.Context) (uuid.UUID, bool)

// Recorder accepts audit entries without blocking the caller and writes them in batches from a
// single background worker. Record never fails: a full buffer or a failed write is logged and
// the entries are dropped.
type Recorder struct {
	writer Writer
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	tenant    TenantExtractor
	actor     Extractor
	ip        Extractor
	requestID Extractor

	mu      sync.RWMutex
	closed  bool
	entries chan Entry
	done    chan struct{}
	wg      sync.WaitGroup

	dropped atomic.Int64
	written atomic.Int64
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithConfig sets buffering and batching.
func WithConfig(cfg Config) Option {
	return func(r *Recorder) {
		r.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the time source for OccurredAt.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

func WithTenantExtractor(fn TenantExtractor) Option {
	return func(r *Recorder) {
		r.tenant = fn
	}
}

func WithActorExtractor(fn Extractor) Option {
	return func(r *Recorder) {
		r.actor = fn
	}
}

func WithIPExtractor(fn Extractor) Option {
	return func(r *Recorder) {
		r.ip = fn
	}
}

func WithRequestIDExtractor(fn Extractor) Option {
	return func(r *Recorder) {
		r.requestID = fn
	}
}

// NewRecorder creates a Recorder and starts its worker. Call Close on shutdown.
func NewRecorder(w Writer, opts ...Option) *Recorder {
	if w == nil {
		panic("audit: writer cannot be nil")
	}
	r := &Recorder{
		writer: w,
		logger: slog.Default(),
		now:    time.Now,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cfg = r.cfg.withDefaults()
	r.logger = r.logger.With(logger.Component("audit"))
	r.entries = make(chan Entry, r.cfg.BufferSize)

	r.wg.Add(1)
	go r.worker()
	return r
}

// Record enqueues an entry for action. Tenant, actor, source IP and request id come from the
// configured extractors; opts may override them.
func (r *Recorder) Record(ctx context.Context, action string, opts ...EntryOption) {
	e := r.entryFromContext(ctx)
	e.ID = uuid.New()
	e.Action = action
	e.OccurredAt = r.now().UTC()
	for _, opt := range opts {
		opt(&e)
	}

	if err := e.Validate(); err != nil {
		r.drop(ctx, e, err)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(ctx, e, ErrRecorderClosed)
		return
	}
	select {
	case r.entries <- e.clone():
	default:
		r.drop(ctx, e, nil)
	}
}

func (r *Recorder) drop(ctx context.Context, e Entry, reason error) {
	r.dropped.Add(1)
	msg := "audit buffer full, entry dropped"
	if reason != nil {
		msg = "audit entry dropped"
	}
	r.logger.WarnContext(ctx, msg,
		slog.String("action", e.Action),
		logger.TenantID(e.TenantID.String()),
		logger.Error(reason))
}

func (r *Recorder) entryFromContext(ctx context.Context) Entry {
	var e Entry
	if r.tenant != nil {
		if id, ok := r.tenant(ctx); ok {
			e.TenantID = id
		}
	}
	if r.actor != nil {
		if v, ok := r.actor(ctx); ok {
			e.ActorUserID = v
		}
	}
	if r.ip != nil {
		if v, ok := r.ip(ctx); ok {
			e.SourceIP = v
		}
	}
	if r.requestID != nil {
		if v, ok := r.requestID(ctx); ok {
			e.RequestID = v
		}
	}
	return e
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	batch := make([]Entry, 0, r.cfg.BatchSize)
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Request contexts are long gone by now; storage gets its own deadline.
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.StorageTimeout)
		defer cancel()

		if err := r.writer.WriteBatch(ctx, batch); err != nil {
			r.dropped.Add(int64(len(batch)))
			r.logger.ErrorContext(ctx, "failed to write audit entries",
				slog.Int("count", len(batch)), logger.Error(err))
		} else {
			r.written.Add(int64(len(batch)))
		}
		clear(batch)
		batch = batch[:0]
	}

	for {
		select {
		case e := <-r.entries:
			batch = append(batch, e)
			if len(batch) >= r.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.done:
			for {
				select {
				case e := <-r.entries:
					batch = append(batch, e)
					if len(batch) >= r.cfg.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close stops accepting entries and waits for the buffer to drain. The context bounds the wait.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.done)
	r.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports how many entries were written and dropped so far.
func (r *Recorder) Stats() (written, dropped int64) {
	return r.written.Load(), r.dropped.Load()
}
