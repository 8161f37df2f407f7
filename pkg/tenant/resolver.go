package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/pg"
)

var tracer = otel.Tracer("github.com/dmitrymomot/tenantkit/pkg/tenant")

// Resolver maps request claims to a trusted tenant, membership and read-only flag.
type Resolver struct {
	stores        StoreFunc
	cache         Cache
	now           func() time.Time
	touchInterval time.Duration
	logger        *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCache enables tenant record caching.
func WithCache(c Cache) ResolverOption {
	return func(r *Resolver) {
		if c != nil {
			r.cache = c
		}
	}
}

// WithClock overrides the time source used for trial expiry.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLoginTouchInterval sets how often lastLoginAt is refreshed. Zero disables it.
func WithLoginTouchInterval(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.touchInterval = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver creates a Resolver reading from the stores built by stores.
func NewResolver(stores StoreFunc, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		stores:        stores,
		cache:         NoCache{},
		now:           time.Now,
		touchInterval: 15 * time.Minute,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logger.Component("tenant_resolver"))
	return r
}

// Resolve runs on db, the request's leased connection, before any partition is bound.
//
// Failures, in evaluation order: ErrNoOrganizationContext, ErrMissingUser, ErrTenantNotFound,
// ErrTenantDeleted, ErrAccountSuspended, ErrAccountCancelled, *TrialExpiredError. A past_due
// tenant resolves with ReadOnly set. A missing membership is created from the claim's role;
// a missing or unrecognised claim role yields RoleViewer.
func (r *Resolver) Resolve(ctx context.Context, db pg.Querier, c Claims) (*Resolution, error) {
	ctx, span := tracer.Start(ctx, "tenant.Resolve")
	defer span.End()

	res, err := r.resolve(ctx, db, c)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("tenant.id", res.Tenant.ID.String()),
		attribute.Bool("tenant.read_only", res.ReadOnly),
	)
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, db pg.Querier, c Claims) (*Resolution, error) {
	orgID := strings.TrimSpace(c.OrgID)
	if orgID == "" {
		return nil, ErrNoOrganizationContext
	}
	if strings.TrimSpace(c.UserID) == "" {
		return nil, ErrMissingUser
	}

	store := r.stores(db)

	t, err := r.lookup(ctx, store, orgID)
	if err != nil {
		return nil, err
	}
	if t.IsDeleted() {
		return nil, ErrTenantDeleted
	}

	readOnly, err := r.checkStatus(t)
	if err != nil {
		return nil, err
	}

	m, err := r.membership(ctx, store, t, c)
	if err != nil {
		return nil, err
	}

	return &Resolution{Tenant: t, Membership: m, ReadOnly: readOnly}, nil
}

func (r *Resolver) lookup(ctx context.Context, store Store, orgID string) (*Tenant, error) {
	if t, ok := r.cache.Get(ctx, orgID); ok {
		return t, nil
	}
	t, err := store.TenantByExternalID(ctx, orgID)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("lookup tenant: %w", err)
	}
	r.cache.Set(ctx, t)
	return t, nil
}

func (r *Resolver) checkStatus(t *Tenant) (readOnly bool, err error) {
	switch t.Status {
	case StatusActive:
		return false, nil
	case StatusTrialing:
		if t.TrialExpired(r.now()) {
			return false, &TrialExpiredError{EndedAt: *t.TrialEndsAt}
		}
		return false, nil
	case StatusPastDue:
		return true, nil
	case StatusSuspended:
		return false, ErrAccountSuspended
	case StatusCancelled:
		return false, ErrAccountCancelled
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownStatus, t.Status)
	}
}

func (r *Resolver) membership(ctx context.Context, store Store, t *Tenant, c Claims) (*Membership, error) {
	claimRole, roleErr := ParseRole(c.Role)

	m, err := store.Membership(ctx, t.ID, c.UserID)
	switch {
	case errors.Is(err, ErrMembershipNotFound):
		role := claimRole
		if roleErr != nil {
			role = RoleViewer
		}
		m = &Membership{UserID: c.UserID, TenantID: t.ID, Role: role}
		if err := store.UpsertMembership(ctx, m); err != nil {
			return nil, fmt.Errorf("provision membership: %w", err)
		}
		r.logger.InfoContext(ctx, "membership provisioned from identity claim",
			logger.TenantID(t.ID), logger.UserID(c.UserID), logger.Role(role.String()))
	case err != nil:
		return nil, fmt.Errorf("lookup membership: %w", err)
	case roleErr == nil && m.Role != claimRole:
		r.logger.InfoContext(ctx, "membership role synced from identity claim",
			logger.TenantID(t.ID), logger.UserID(c.UserID),
			slog.String("from", m.Role.String()), slog.String("to", claimRole.String()))
		m.Role = claimRole
		if err := store.UpsertMembership(ctx, m); err != nil {
			return nil, fmt.Errorf("sync membership: %w", err)
		}
	}

	r.touchLogin(ctx, store, m)
	return m, nil
}

func (r *Resolver) touchLogin(ctx context.Context, store Store, m *Membership) {
	if r.touchInterval <= 0 {
		return
	}
	now := r.now()
	if m.LastLoginAt != nil && now.Sub(*m.LastLoginAt) < r.touchInterval {
		return
	}
	if err := store.TouchLogin(ctx, m.TenantID, m.UserID, now); err != nil {
		r.logger.WarnContext(ctx, "failed to record login", logger.UserID(m.UserID), logger.Error(err))
		return
	}
	m.LastLoginAt = &now
}
