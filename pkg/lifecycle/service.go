package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrymomot/tenantkit/pkg/audit"
	"github.com/dmitrymomot/tenantkit/pkg/lease"
	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/partition"
	"github.com/dmitrymomot/tenantkit/pkg/pg"
	"github.com/dmitrymomot/tenantkit/pkg/plan"
	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

var tracer = otel.Tracer("github.com/dmitrymomot/tenantkit/pkg/lifecycle")

// TenantNamespace derives tenant ids from external organization ids. Retries of the same
// organization always produce the same id and therefore the same partition name.
var TenantNamespace = uuid.MustParse("3b8f6e2a-9c4d-5f1e-8a7b-2d6c0e9f4a13")

// TenantIDFor returns the tenant id for an external organization id.
func TenantIDFor(externalOrgID string) uuid.UUID {
	return uuid.NewSHA1(TenantNamespace, []byte(externalOrgID))
}

// Leaser runs work on an exclusive connection.
type Leaser interface {
	With(ctx context.Context, fn func(context.Context, *lease.Lease) error) error
}

// Partitions creates and drops tenant partitions.
type Partitions interface {
	Create(ctx context.Context, l *lease.Lease, name string) error
	Drop(ctx context.Context, q pg.Querier, name string) error
}

// Auditor records lifecycle actions.
type Auditor interface {
	Record(ctx context.Context, action string, opts ...audit.EntryOption)
}

type noopAuditor struct{}

func (noopAuditor) Record(context.Context, string, ...audit.EntryOption) {}

// Service applies identity and billing events to tenants. Events for one organization are
// handled one at a time; different organizations proceed in parallel.
type Service struct {
	leases     Leaser
	stores     tenant.StoreFunc
	partitions Partitions
	catalog    *plan.Catalog
	scheduler  Scheduler
	cache      tenant.Cache
	auditor    Auditor
	cfg        Config
	now        func() time.Time
	logger     *slog.Logger
	locks      *keyedMutex
}

// Option configures a Service.
type Option func(*Service)

// WithCache sets the tenant cache to invalidate on every change.
func WithCache(c tenant.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithAuditor records lifecycle actions in the audit trail.
func WithAuditor(a Auditor) Option {
	return func(s *Service) {
		if a != nil {
			s.auditor = a
		}
	}
}

// WithConfig sets grace periods and retry settings.
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.cfg = cfg
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Service.
func New(leases Leaser, stores tenant.StoreFunc, partitions Partitions, catalog *plan.Catalog, scheduler Scheduler, opts ...Option) *Service {
	s := &Service{
		leases:     leases,
		stores:     stores,
		partitions: partitions,
		catalog:    catalog,
		scheduler:  scheduler,
		cache:      tenant.NoCache{},
		auditor:    noopAuditor{},
		now:        time.Now,
		logger:     slog.Default(),
		locks:      newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cfg = s.cfg.withDefaults()
	if s.catalog == nil {
		s.catalog = plan.Default()
	}
	s.logger = s.logger.With(logger.Component("lifecycle"))
	return s
}

// ProvisionInput describes a newly created organization.
type ProvisionInput struct {
	ExternalOrgID string
	Name          string
	Slug          string
	Tier          tenant.Tier
}

// Provision creates the tenant for an organization. The partition and its objects are created
// first and the registry row last, so a tenant never resolves before its partition exists.
// Calling it again for an existing tenant is a no-op; a deleted tenant is never revived.
func (s *Service) Provision(ctx context.Context, in ProvisionInput) (*tenant.Tenant, error) {
	in.ExternalOrgID = strings.TrimSpace(in.ExternalOrgID)
	if in.ExternalOrgID == "" {
		return nil, fmt.Errorf("%w: external org id is required", ErrInvalidInput)
	}
	if in.Tier == "" {
		in.Tier = tenant.Tier(s.cfg.DefaultTier)
	}
	if in.Slug == "" {
		in.Slug = tenant.Slugify(in.Name)
	}
	p, err := s.catalog.Get(in.Tier)
	if err != nil {
		return nil, errors.Join(ErrInvalidInput, err)
	}

	ctx, span := s.start(ctx, "lifecycle.Provision", in.ExternalOrgID)
	defer span.End()

	unlock := s.locks.Lock(in.ExternalOrgID)
	defer unlock()

	var out *tenant.Tenant
	err = s.leases.With(ctx, func(ctx context.Context, l *lease.Lease) error {
		store := s.stores(l)

		existing, err := store.TenantByExternalID(ctx, in.ExternalOrgID)
		switch {
		case err == nil:
			if existing.IsDeleted() {
				return tenant.ErrTenantDeleted
			}
			out = existing
			return nil
		case !errors.Is(err, tenant.ErrTenantNotFound):
			return err
		}

		if _, err := Next(StateNone, EventProvision); err != nil {
			return err
		}

		id := TenantIDFor(in.ExternalOrgID)
		name := partition.NameFor(id)
		if err := s.partitions.Create(ctx, l, name); err != nil {
			return errors.Join(ErrProvisionFailed, err)
		}

		now := s.now().UTC()
		t := &tenant.Tenant{
			ID:            id,
			ExternalOrgID: in.ExternalOrgID,
			Name:          in.Name,
			Slug:          in.Slug,
			PartitionName: name,
			Tier:          p.Tier,
			Status:        p.InitialStatus(),
			TrialEndsAt:   p.TrialEndsAt(now),
			Features:      p.FeatureSet(),
			EntityLimits:  p.LimitMap(),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := store.CreateTenant(ctx, t); err != nil {
			if errors.Is(err, tenant.ErrTenantExists) {
				// Another instance won the race; its row is authoritative.
				out, err = store.TenantByExternalID(ctx, in.ExternalOrgID)
				return err
			}
			return errors.Join(ErrProvisionFailed, err)
		}
		if _, err := Next(StateProvisioning, EventProvisioned); err != nil {
			return err
		}
		out = t

		s.logger.InfoContext(ctx, "tenant provisioned",
			logger.TenantID(id.String()), logger.OrgID(in.ExternalOrgID),
			slog.String("tier", string(t.Tier)), slog.String("status", string(t.Status)))
		s.auditor.Record(ctx, "tenant.provisioned",
			audit.WithTenant(id), audit.WithActor("system"),
			audit.WithResource("tenant", id.String()),
			audit.WithMetadata("tier", string(t.Tier)))
		return nil
	})
	if err != nil {
		return nil, s.fail(span, err)
	}
	s.cache.Delete(ctx, in.ExternalOrgID)
	return out, nil
}

// UpdateProfile applies a name or slug change.
func (s *Service) UpdateProfile(ctx context.Context, externalOrgID, name, slug string) error {
	return s.mutate(ctx, "lifecycle.UpdateProfile", externalOrgID, func(ctx context.Context, store tenant.Store, t *tenant.Tenant) error {
		if t.IsDeleted() {
			return tenant.ErrTenantDeleted
		}
		return store.UpdateTenantProfile(ctx, t.ID, name, slug)
	})
}

// Deprovision soft-deletes the tenant and schedules its partition for removal after the grace
// period. Repeating it is a no-op apart from re-registering the cleanup job, which scheduling
// ignores once it exists.
//
// The job is scheduled after the registry lease is released, so a scheduler on the same pool
// never waits for a second connection.
func (s *Service) Deprovision(ctx context.Context, externalOrgID string) error {
	var (
		job     CleanupJob
		deleted bool
	)
	err := s.mutate(ctx, "lifecycle.Deprovision", externalOrgID, func(ctx context.Context, store tenant.Store, t *tenant.Tenant) error {
		if t.IsDeleted() {
			job = CleanupJob{TenantID: t.ID, Partition: t.PartitionName, RunAfter: t.DeletedAt.Add(s.cfg.CleanupGrace)}
			return nil
		}
		if _, err := Next(StateOf(t), EventDeprovision); err != nil {
			return err
		}

		now := s.now().UTC()
		if err := store.SoftDeleteTenant(ctx, t.ID, now); err != nil {
			return err
		}
		job = CleanupJob{TenantID: t.ID, Partition: t.PartitionName, RunAfter: now.Add(s.cfg.CleanupGrace)}
		deleted = true
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.scheduler.Schedule(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "failed to schedule partition cleanup",
			logger.TenantID(job.TenantID.String()), logger.Error(err))
		return errors.Join(ErrScheduleFailed, err)
	}
	if !deleted {
		return nil
	}

	s.logger.InfoContext(ctx, "tenant deprovisioned",
		logger.TenantID(job.TenantID.String()), slog.Time("cleanup_after", job.RunAfter))
	s.auditor.Record(ctx, "tenant.deprovisioned",
		audit.WithTenant(job.TenantID), audit.WithActor("system"),
		audit.WithResource("tenant", job.TenantID.String()))
	return nil
}

// Suspend blocks all access to an active tenant.
func (s *Service) Suspend(ctx context.Context, externalOrgID string) error {
	return s.transition(ctx, "lifecycle.Suspend", externalOrgID, EventSuspend, tenant.StatusSuspended)
}

// Resume reactivates a suspended tenant.
func (s *Service) Resume(ctx context.Context, externalOrgID string) error {
	return s.transition(ctx, "lifecycle.Resume", externalOrgID, EventResume, tenant.StatusActive)
}

func (s *Service) transition(ctx context.Context, op, externalOrgID string, event Event, status tenant.Status) error {
	return s.mutate(ctx, op, externalOrgID, func(ctx context.Context, store tenant.Store, t *tenant.Tenant) error {
		if _, err := Next(StateOf(t), event); err != nil {
			return err
		}
		if err := store.UpdateSubscription(ctx, t.ID, status, t.TrialEndsAt); err != nil {
			return err
		}
		s.auditor.Record(ctx, "tenant."+string(event),
			audit.WithTenant(t.ID), audit.WithActor("system"),
			audit.WithResource("tenant", t.ID.String()))
		return nil
	})
}

// UpdateSubscription applies a billing status change. Cancelling only changes the status; the
// tenant is not deleted.
func (s *Service) UpdateSubscription(ctx context.Context, externalOrgID string, status tenant.Status, trialEndsAt *time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidInput, tenant.ErrUnknownStatus, status)
	}
	return s.mutate(ctx, "lifecycle.UpdateSubscription", externalOrgID, func(ctx context.Context, store tenant.Store, t *tenant.Tenant) error {
		if t.IsDeleted() {
			return tenant.ErrTenantDeleted
		}
		if t.Status == status && sameTime(t.TrialEndsAt, trialEndsAt) {
			return nil
		}

		from, to := StateOf(t), StateActive
		if status == tenant.StatusSuspended {
			to = StateSuspended
		}
		switch {
		case from == StateActive && to == StateSuspended:
			if _, err := Next(from, EventSuspend); err != nil {
				return err
			}
		case from == StateSuspended && to == StateActive:
			if _, err := Next(from, EventResume); err != nil {
				return err
			}
		}

		if err := store.UpdateSubscription(ctx, t.ID, status, trialEndsAt); err != nil {
			return err
		}
		s.logger.InfoContext(ctx, "subscription updated",
			logger.TenantID(t.ID.String()),
			slog.String("from", string(t.Status)), slog.String("to", string(status)))
		s.auditor.Record(ctx, "tenant.subscription_updated",
			audit.WithTenant(t.ID), audit.WithActor("system"),
			audit.WithMetadata("from", string(t.Status)),
			audit.WithMetadata("to", string(status)))
		return nil
	})
}

// ChangeTier re-applies the plan defaults of tier.
func (s *Service) ChangeTier(ctx context.Context, externalOrgID string, tier tenant.Tier) error {
	p, err := s.catalog.Get(tier)
	if err != nil {
		return errors.Join(ErrInvalidInput, err)
	}
	return s.mutate(ctx, "lifecycle.ChangeTier", externalOrgID, func(ctx context.Context, store tenant.Store, t *tenant.Tenant) error {
		if t.IsDeleted() {
			return tenant.ErrTenantDeleted
		}
		if err := store.UpdatePlan(ctx, t.ID, p.Tier, p.FeatureSet(), p.LimitMap()); err != nil {
			return err
		}
		s.auditor.Record(ctx, "tenant.tier_changed",
			audit.WithTenant(t.ID), audit.WithActor("system"),
			audit.WithMetadata("from", string(t.Tier)),
			audit.WithMetadata("to", string(p.Tier)))
		return nil
	})
}

// Tenant returns the stored tenant for an organization, including soft-deleted ones.
func (s *Service) Tenant(ctx context.Context, externalOrgID string) (*tenant.Tenant, error) {
	var out *tenant.Tenant
	err := s.leases.With(ctx, func(ctx context.Context, l *lease.Lease) error {
		t, err := s.stores(l).TenantByExternalID(ctx, externalOrgID)
		out = t
		return err
	})
	return out, err
}

type mutation func(ctx context.Context, store tenant.Store, t *tenant.Tenant) error

// mutate serializes fn per organization, runs it on one lease and invalidates the cache.
func (s *Service) mutate(ctx context.Context, op, externalOrgID string, fn mutation) error {
	externalOrgID = strings.TrimSpace(externalOrgID)
	if externalOrgID == "" {
		return fmt.Errorf("%w: external org id is required", ErrInvalidInput)
	}

	ctx, span := s.start(ctx, op, externalOrgID)
	defer span.End()

	unlock := s.locks.Lock(externalOrgID)
	defer unlock()

	err := s.leases.With(ctx, func(ctx context.Context, l *lease.Lease) error {
		store := s.stores(l)
		t, err := store.TenantByExternalID(ctx, externalOrgID)
		if err != nil {
			return err
		}
		return fn(ctx, store, t)
	})
	// The entry is dropped on failure too; a partial write may have landed.
	s.cache.Delete(ctx, externalOrgID)
	if err != nil {
		return s.fail(span, err)
	}
	return nil
}

func (s *Service) start(ctx context.Context, op, externalOrgID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, op, trace.WithAttributes(attribute.String("tenant.org_id", externalOrgID)))
}

func (s *Service) fail(span trace.Span, err error) error {
	span.SetStatus(codes.Error, err.Error())
	return err
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
