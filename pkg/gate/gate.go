package gate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/tenantkit/pkg/apierr"
	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/tenancy"
	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

// Gates enforces plan capabilities against the request Scope.
type Gates struct {
	counters     Registry
	serialized   bool
	errorHandler apierr.ErrorHandler
	logger       *slog.Logger
}

// Option configures Gates.
type Option func(*Gates)

// WithSerializedQuota makes limit checks take a session advisory lock per partition and
// resource on the request's connection. The lock is held until the lease is released, so two
// concurrent creators of the same resource cannot both pass at count N-1.
func WithSerializedQuota() Option {
	return func(g *Gates) {
		g.serialized = true
	}
}

// WithErrorHandler sets how the middleware renders rejections.
func WithErrorHandler(h apierr.ErrorHandler) Option {
	return func(g *Gates) {
		if h != nil {
			g.errorHandler = h
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gates) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates Gates counting usage through counters.
func New(counters Registry, opts ...Option) *Gates {
	if counters == nil {
		counters = NewRegistry()
	}
	g := &Gates{
		counters:     counters,
		errorHandler: apierr.Default,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(logger.Component("gate"))
	return g
}

// Usage returns the current count and the cap for res. The count is taken now, on the
// request's connection, and never cached.
func (g *Gates) Usage(ctx context.Context, s *tenancy.Scope, res tenant.Resource) (current, limit int64, err error) {
	if s == nil {
		return 0, 0, ErrNoScope
	}
	counter, ok := g.counters[res]
	if !ok {
		return 0, 0, errors.Join(ErrNoCounterRegistered, errors.New(string(res)))
	}
	current, err = counter(ctx, s.DB())
	if err != nil {
		return 0, 0, errors.Join(ErrCountFailed, err)
	}
	return current, s.Tenant().Limit(res), nil
}

// CheckUnderLimit allows creating one more res when the current count is below the cap.
// A cap of -1, or no cap at all, is unlimited. Call it immediately before the mutation.
func (g *Gates) CheckUnderLimit(ctx context.Context, s *tenancy.Scope, res tenant.Resource) error {
	if s == nil {
		return ErrNoScope
	}
	if _, ok := g.counters[res]; !ok {
		return errors.Join(ErrNoCounterRegistered, errors.New(string(res)))
	}

	limit := s.Tenant().Limit(res)
	if limit == tenant.Unlimited {
		return nil
	}

	if g.serialized {
		key := s.Partition() + ":" + string(res)
		if _, err := s.DB().Exec(ctx, "SELECT pg_advisory_lock(hashtextextended($1, 0))", key); err != nil {
			return errors.Join(ErrQuotaLockFailed, err)
		}
	}

	current, _, err := g.Usage(ctx, s, res)
	if err != nil {
		return err
	}
	if current >= limit {
		g.logger.DebugContext(ctx, "quota reached",
			slog.String("resource", string(res)),
			slog.Int64("limit", limit),
			slog.Int64("current", current))
		return &tenant.LimitError{Resource: res, Limit: limit, Current: current}
	}
	return nil
}

func (g *Gates) guard(check func(r *http.Request, s *tenancy.Scope) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := tenancy.FromContext(r.Context())
			if !ok {
				g.errorHandler(w, r, tenant.ErrNoOrganizationContext)
				return
			}
			if err := check(r, s); err != nil {
				g.errorHandler(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireFeature is middleware for CheckFeature.
func (g *Gates) RequireFeature(f tenant.Feature) func(http.Handler) http.Handler {
	return g.guard(func(_ *http.Request, s *tenancy.Scope) error {
		return CheckFeature(s, f)
	})
}

// RequireRole is middleware for CheckRole.
func (g *Gates) RequireRole(min tenant.Role) func(http.Handler) http.Handler {
	return g.guard(func(_ *http.Request, s *tenancy.Scope) error {
		return CheckRole(s, min)
	})
}

// RequireUnderLimit is middleware for CheckUnderLimit.
func (g *Gates) RequireUnderLimit(res tenant.Resource) func(http.Handler) http.Handler {
	return g.guard(func(r *http.Request, s *tenancy.Scope) error {
		return g.CheckUnderLimit(r.Context(), s, res)
	})
}

// ReadOnly is middleware for CheckWritable.
func (g *Gates) ReadOnly() func(http.Handler) http.Handler {
	return g.guard(func(r *http.Request, s *tenancy.Scope) error {
		return CheckWritable(s, r.Method)
	})
}
