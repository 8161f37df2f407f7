package tenancy

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenantkit/pkg/pg"
	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

// Scope is the trusted per-request tenant context handed to route handlers. It is only ever
// built after resolution and partition binding succeeded.
type Scope struct {
	res *tenant.Resolution
	db  pg.Querier
}

// NewScope builds a Scope from a resolution and the connection bound to its partition.
func NewScope(res *tenant.Resolution, db pg.Querier) *Scope {
	return &Scope{res: res, db: db}
}

// TenantID returns the internal tenant identifier.
func (s *Scope) TenantID() uuid.UUID { return s.res.Tenant.ID }

// Tenant returns the resolved tenant record. Callers must not mutate it.
func (s *Scope) Tenant() *tenant.Tenant { return s.res.Tenant }

// Membership returns the caller's membership in the tenant.
func (s *Scope) Membership() *tenant.Membership { return s.res.Membership }

// UserID returns the caller's user id.
func (s *Scope) UserID() string { return s.res.Membership.UserID }

// Role returns the caller's role in the tenant.
func (s *Scope) Role() tenant.Role { return s.res.Membership.Role }

// ReadOnly reports whether the tenant only accepts safe methods.
func (s *Scope) ReadOnly() bool { return s.res.ReadOnly }

// Partition returns the bound partition name. It is for server-side diagnostics only.
func (s *Scope) Partition() string { return s.res.Tenant.PartitionName }

// DB returns the request's connection, bound to the tenant's partition.
// Unqualified table names resolve inside the partition only.
func (s *Scope) DB() pg.Querier { return s.db }

// HasFeature reports whether the tenant has f enabled.
func (s *Scope) HasFeature(f tenant.Feature) bool { return s.res.Tenant.HasFeature(f) }

// IsAtLeast reports whether the caller's role grants min.
func (s *Scope) IsAtLeast(min tenant.Role) bool { return s.Role().AtLeast(min) }

type scopeKey struct{}

// WithScope stores s in ctx.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// FromContext returns the Scope attached by Middleware.
func FromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	return s, ok && s != nil
}

// MustFromContext returns the Scope or panics. Use it only behind Middleware.
func MustFromContext(ctx context.Context) *Scope {
	s, ok := FromContext(ctx)
	if !ok {
		panic("tenancy: no scope in context")
	}
	return s
}

// TenantIDFromContext returns the scoped tenant id.
func TenantIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	s, ok := FromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return s.TenantID(), true
}

// UserIDFromContext returns the scoped user id.
func UserIDFromContext(ctx context.Context) (string, bool) {
	s, ok := FromContext(ctx)
	if !ok {
		return "", false
	}
	return s.UserID(), true
}
