package tenancy

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/dmitrymomot/tenantkit/pkg/apierr"
	"github.com/dmitrymomot/tenantkit/pkg/lease"
	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/pg"
	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

var tracer = otel.Tracer("github.com/dmitrymomot/tenantkit/pkg/tenancy")

// Leaser grants exclusive connections.
type Leaser interface {
	Acquire(ctx context.Context) (*lease.Lease, error)
}

// Resolver maps claims to a trusted resolution on the given connection.
type Resolver interface {
	Resolve(ctx context.Context, db pg.Querier, c tenant.Claims) (*tenant.Resolution, error)
}

// Binder points a lease at a partition.
type Binder interface {
	Bind(ctx context.Context, l *lease.Lease, name string) error
}

// ClaimsFunc extracts the caller's claims from a request.
type ClaimsFunc func(r *http.Request) (tenant.Claims, bool)

type options struct {
	claims         ClaimsFunc
	errorHandler   apierr.ErrorHandler
	requestTimeout time.Duration
	logger         *slog.Logger
}

// Option configures Middleware.
type Option func(*options)

// WithClaims overrides where claims are read from. By default they come from
// tenant.ClaimsFromContext.
func WithClaims(fn ClaimsFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.claims = fn
		}
	}
}

// WithErrorHandler sets how rejections are rendered.
func WithErrorHandler(h apierr.ErrorHandler) Option {
	return func(o *options) {
		if h != nil {
			o.errorHandler = h
		}
	}
}

// WithRequestTimeout bounds the whole scoped request, including lease acquisition.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		o.requestTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func claimsFromContext(r *http.Request) (tenant.Claims, bool) {
	return tenant.ClaimsFromContext(r.Context())
}

// Middleware builds the tenant scope for every request:
//
//  1. claims must name an organization, otherwise the request fails before a connection is taken;
//  2. a lease is acquired and released when the request ends, on every exit path;
//  3. the tenant is resolved on that lease;
//  4. the lease is bound to the tenant's partition;
//  5. the Scope is attached and the handler runs.
//
// Any failure short-circuits: no handler runs without a trusted Scope.
func Middleware(leases Leaser, resolver Resolver, binder Binder, opts ...Option) func(http.Handler) http.Handler {
	o := &options{
		claims:       claimsFromContext,
		errorHandler: apierr.Default,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	log := o.logger.With(logger.Component("tenancy"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := o.claims(r)
			if !ok || claims.OrgID == "" {
				o.errorHandler(w, r, tenant.ErrNoOrganizationContext)
				return
			}

			ctx := r.Context()
			if o.requestTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, o.requestTimeout)
				defer cancel()
			}

			ctx, span := tracer.Start(ctx, "tenancy.Scope")
			defer span.End()

			l, err := leases.Acquire(ctx)
			if err != nil {
				span.SetStatus(codes.Error, "lease")
				o.errorHandler(w, r, err)
				return
			}
			defer l.Release()

			res, err := resolver.Resolve(ctx, l, claims)
			if err != nil {
				span.SetStatus(codes.Error, "resolve")
				o.errorHandler(w, r, err)
				return
			}

			if err := binder.Bind(ctx, l, res.Tenant.PartitionName); err != nil {
				span.SetStatus(codes.Error, "bind")
				o.errorHandler(w, r, err)
				return
			}

			scope := NewScope(res, l)
			ctx = WithScope(ctx, scope)
			log.DebugContext(ctx, "tenant scope established",
				logger.TenantID(scope.TenantID().String()),
				logger.Role(scope.Role().String()),
				slog.Bool("read_only", scope.ReadOnly()))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope rejects requests that reach a handler without a Scope.
func RequireScope(errorHandler apierr.ErrorHandler) func(http.Handler) http.Handler {
	if errorHandler == nil {
		errorHandler = apierr.Default
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := FromContext(r.Context()); !ok {
				errorHandler(w, r, tenant.ErrNoOrganizationContext)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
