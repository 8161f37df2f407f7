package lifecycle_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantkit/pkg/audit"
	"github.com/dmitrymomot/tenantkit/pkg/lease"
	"github.com/dmitrymomot/tenantkit/pkg/lease/leasetest"
	"github.com/dmitrymomot/tenantkit/pkg/lifecycle"
	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/partition"
	"github.com/dmitrymomot/tenantkit/pkg/plan"
	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAuditor) Record(_ context.Context, action string, _ ...audit.EntryOption) {
	a.mu.Lock()
	a.actions = append(a.actions, action)
	a.mu.Unlock()
}

func (a *recordingAuditor) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.actions...)
}

type env struct {
	pool      *leasetest.Pool
	leases    *lease.Manager
	store     *tenant.MemoryStore
	cache     *tenant.MemoryCache
	scheduler *lifecycle.MemoryScheduler
	auditor   *recordingAuditor
	clock     *clock
	svc       *lifecycle.Service
	worker    *lifecycle.CleanupWorker
}

const grace = 24 * time.Hour

func newEnv(t *testing.T, poolSize int) *env {
	t.Helper()
	pool := leasetest.NewPool(poolSize)
	provisioner, err := partition.NewProvisioner(partition.WithProvisionerLogger(logger.Discard()))
	require.NoError(t, err)

	e := &env{
		pool:      pool,
		leases:    lease.NewManager(pool, lease.WithLogger(logger.Discard())),
		store:     tenant.NewMemoryStore(),
		cache:     tenant.NewMemoryCache(100, time.Hour),
		scheduler: lifecycle.NewMemoryScheduler(),
		auditor:   &recordingAuditor{},
		clock:     &clock{t: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)},
	}
	t.Cleanup(func() { _ = e.cache.Close() })

	cfg := lifecycle.Config{CleanupGrace: grace, DropAttempts: 1, RetryBase: time.Minute, RetryMax: time.Hour}
	e.svc = lifecycle.New(e.leases, e.store.Func(), provisioner, plan.Default(), e.scheduler,
		lifecycle.WithCache(e.cache),
		lifecycle.WithAuditor(e.auditor),
		lifecycle.WithConfig(cfg),
		lifecycle.WithClock(e.clock.Now),
		lifecycle.WithLogger(logger.Discard()),
	)
	e.worker = lifecycle.NewCleanupWorker(e.scheduler, e.leases, e.store.Func(), provisioner,
		lifecycle.WithWorkerConfig(cfg),
		lifecycle.WithWorkerClock(e.clock.Now),
		lifecycle.WithWorkerAuditor(e.auditor),
		lifecycle.WithWorkerLogger(logger.Discard()),
	)
	return e
}

func (e *env) statements() []string {
	var out []string
	for _, c := range e.pool.Conns() {
		out = append(out, c.Statements()...)
	}
	return out
}

func containsStatement(stmts []string, fragment string) bool {
	for _, s := range stmts {
		if strings.Contains(s, fragment) {
			return true
		}
	}
	return false
}

func TestProvision(t *testing.T) {
	t.Parallel()

	e := newEnv(t, 1)
	ctx := context.Background()

	tn, err := e.svc.Provision(ctx, lifecycle.ProvisionInput{ExternalOrgID: "org_acme", Name: "Acme", Slug: "acme"})
	require.NoError(t, err)

	assert.Equal(t, lifecycle.TenantIDFor("org_acme"), tn.ID)
	assert.Equal(t, partition.NameFor(tn.ID), tn.PartitionName)
	assert.Equal(t, tenant.TierStarter, tn.Tier)
	assert.Equal(t, tenant.StatusTrialing, tn.Status)
	require.NotNil(t, tn.TrialEndsAt)
	assert.Equal(t, e.clock.Now().AddDate(0, 0, 14), *tn.TrialEndsAt)
	assert.Equal(t, int64(3), tn.Limit(tenant.ResourceProjects))

	assert.True(t, containsStatement(e.statements(), `CREATE SCHEMA IF NOT EXISTS "`+tn.PartitionName+`"`))
	assert.Equal(t, lease.NeutralSearchPath, e.pool.Conns()[0].SearchPath())
	assert.Contains(t, e.auditor.Actions(), "tenant.provisioned")
}

func TestProvisionIsIdempotent(t *testing.T) {
	t.Parallel()

	e := newEnv(t, 1)
	ctx := context.Background()
	in := lifecycle.ProvisionInput{ExternalOrgID: "org_retry", Name: "Retry", Tier: tenant.TierEnterprise}

	first, err := e.svc.Provision(ctx, in)
	require.NoError(t, err)
	second, err := e.svc.Provision(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.PartitionName, second.PartitionName)
	assert.Equal(t, 1, e.store.Count())
}

func TestProvisionConcurrentDuplicates(t *testing.T) {
	t.Parallel()

	e := newEnv(t, 4)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 8)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tn, err := e.svc.Provision(ctx, lifecycle.ProvisionInput{ExternalOrgID: "org_race"})
			if assert.NoError(t, err) {
				ids[i] = tn.ID
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, e.store.Count())
}

func TestProvisionPartitionFailureLeavesNoTenant(t *testing.T) {
	t.Parallel()

	e := newEnv(t, 1)
	e.pool.Conns()[0].FailOn("create schema", errors.New("permission denied"))

	_, err := e.svc.Provision(context.Background(), lifecycle.ProvisionInput{ExternalOrgID: "org_fail"})
	require.ErrorIs(t, err, lifecycle.ErrProvisionFailed)
	assert.Zero(t, e.store.Count())
}

func TestProvisionRejects(t *testing.T) {
	t.Parallel()

	e := newEnv(t, 1)
	ctx := context.Background()

	_, err := e.svc.Provision(ctx, lifecycle.ProvisionInput{ExternalOrgID: " "})
	assert.ErrorIs(t, err, lifecycle.ErrInvalidInput)

	_, err = e.svc.Provision(ctx, lifecycle.ProvisionInput{ExternalOrgID: "org_x", Tier: "gold"})
	assert.ErrorIs(t, err, plan.ErrUnknownTier)
}

func TestDeprovision(t *testing.T) {
	t.Parallel()

	e := newEnv(t, 1)
	ctx := context.Background()
	tn, err := e.svc.Provision(ctx, lifecycle.ProvisionInput{ExternalOrgID: "org_bye"})
	require.NoError(t, err)
	e.cache.Set(ctx, tn)

	require.NoError(t, e.svc.Deprovision(ctx, "org_bye"))

	stored, err := e.svc.Tenant(ctx, "org_bye")
	require.NoError(t, err)
	require.NotNil(t, stored.DeletedAt)
	deletedAt := *stored.DeletedAt

	_, cached := e.cache.Get(ctx, "org_bye")
	assert.False(t, cached, "cache entry must be invalidated")

	job, done, ok := e.scheduler.Job(tn.ID)
	require.True(t, ok)
	assert.False(t, done)
	assert.Equal(t, tn.PartitionName, job.Partition)
	assert.Equal(t, deletedAt.Add(grace), job.RunAfter)

	e.clock.Advance(time.Hour)
	require.NoError(t, e.svc.Deprovision(ctx, "org_bye"), "deprovision is idempotent")
	again, err := e.svc.Tenant(ctx, "org_bye")
	require.NoError(t, err)
	assert.Equal(t, deletedAt, *again.DeletedAt, "deletedAt is set once")

	_, err = e.svc.Provision(ctx, lifecycle.ProvisionInput{ExternalOrgID: "org_bye"})
	assert.ErrorIs(t, err, tenant.ErrTenantDeleted, "ids are never reused")

	assert.ErrorIs(t, e.svc.Deprovision(ctx, "org_unknown"), tenant.ErrTenantNotFound)
}

func TestSuspendResume(t *testing.T) {
	t.Parallel()

	e := newEnv(t, 1)
	ctx := context.Background()
	_, err := e.svc.Provision(ctx, lifecycle.ProvisionInput{ExternalOrgID: "org_s", Tier: tenant.TierProfessional})
	require.NoError(t, err)

	assert.ErrorIs(t, e.svc.Resume(ctx, "org_s"), lifecycle.ErrInvalidTransition)

	require.NoError(t, e.svc.Suspend(ctx, "org_s"))
	tn, err := e.svc.Tenant(ctx, "org_s")
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusSuspended, tn.Status)

	assert.ErrorIs(t, e.svc.Suspend(ctx, "org_s"), lifecycle.ErrInvalidTransition)

	require.NoError(t, e.svc.Resume(ctx, "org_s"))
	tn, err = e.svc.Tenant(ctx, "org_s")
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusActive, tn.Status)

	require.NoError(t, e.svc.Deprovision(ctx, "org_s"))
	assert.ErrorIs(t, e.svc.Suspend(ctx, "org_s"), lifecycle.ErrInvalidTransition)
}

func TestUpdateSubscription(t *testing.T) {
	t.Parallel()

	e := newEnv(t, 1)
	ctx := context.Background()
	_, err := e.svc.Provision(ctx, lifecycle.ProvisionInput{ExternalOrgID: "org_b"})
	require.NoError(t, err)

	require.NoError(t, e.svc.UpdateSubscription(ctx, "org_b", tenant.StatusPastDue, nil))
	tn, err := e.svc.Tenant(ctx, "org_b")
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusPastDue, tn.Status)

	require.NoError(t, e.svc.UpdateSubscription(ctx, "org_b", tenant.StatusCancelled, nil))
	tn, err = e.svc.Tenant(ctx, "org_b")
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusCancelled, tn.Status)
	assert.Nil(t, tn.DeletedAt, "cancelling does not delete")

	assert.ErrorIs(t, e.svc.UpdateSubscription(ctx, "org_b", "bogus", nil), tenant.ErrUnknownStatus)
}

func TestChangeTier(t *testing.T) {
	t.Parallel()

	e := newEnv(t, 1)
	ctx := context.Background()
	_, err := e.svc.Provision(ctx, lifecycle.ProvisionInput{ExternalOrgID: "org_t"})
	require.NoError(t, err)

	require.NoError(t, e.svc.ChangeTier(ctx, "org_t", tenant.TierEnterprise))
	tn, err := e.svc.Tenant(ctx, "org_t")
	require.NoError(t, err)
	assert.Equal(t, tenant.TierEnterprise, tn.Tier)
	assert.True(t, tn.HasFeature(tenant.FeatureSSO))
	assert.Equal(t, tenant.Unlimited, tn.Limit(tenant.ResourceProjects))

	assert.ErrorIs(t, e.svc.ChangeTier(ctx, "org_t", "gold"), plan.ErrUnknownTier)
}

func TestMembershipMirroring(t *testing.T) {
	t.Parallel()

	e := newEnv(t, 1)
	ctx := context.Background()
	a, err := e.svc.Provision(ctx, lifecycle.ProvisionInput{ExternalOrgID: "org_a"})
	require.NoError(t, err)
	b, err := e.svc.Provision(ctx, lifecycle.ProvisionInput{ExternalOrgID: "org_b"})
	require.NoError(t, err)

	require.NoError(t, e.svc.SyncMembership(ctx, "org_a", "u1", tenant.RoleAdmin))
	require.NoError(t, e.svc.SyncMembership(ctx, "org_b", "u1", tenant.Role(0)))
	require.NoError(t, e.svc.SyncMembership(ctx, "org_a", "u2", tenant.RoleMember))

	require.Len(t, e.store.Members(a.ID), 2)
	bm := e.store.Members(b.ID)
	require.Len(t, bm, 1)
	assert.Equal(t, tenant.RoleViewer, bm[0].Role, "unknown roles fall back to viewer")

	require.NoError(t, e.svc.RemoveMembership(ctx, "org_a", "u2"))
	require.NoError(t, e.svc.RemoveMembership(ctx, "org_a", "u2"), "removing twice succeeds")
	assert.Len(t, e.store.Members(a.ID), 1)

	n, err := e.svc.RemoveUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, e.svc.RebuildMemberships(ctx, "org_a", []lifecycle.Member{
		{UserID: "u3", Role: tenant.RoleOwner},
		{UserID: "u4", Role: tenant.RoleViewer},
	}))
	assert.Len(t, e.store.Members(a.ID), 2)

	assert.ErrorIs(t, e.svc.SyncMembership(ctx, "org_a", "", tenant.RoleAdmin), lifecycle.ErrInvalidInput)
	assert.ErrorIs(t, e.svc.SyncMembership(ctx, "org_missing", "u1", tenant.RoleAdmin), tenant.ErrTenantNotFound)
}

func TestCleanupWorker(t *testing.T) {
	t.Parallel()

	e := newEnv(t, 1)
	ctx := context.Background()
	tn, err := e.svc.Provision(ctx, lifecycle.ProvisionInput{ExternalOrgID: "org_gone"})
	require.NoError(t, err)
	require.NoError(t, e.svc.Deprovision(ctx, "org_gone"))

	n, err := e.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is dropped before the grace period")
	assert.False(t, containsStatement(e.statements(), "DROP SCHEMA"))

	e.clock.Advance(grace)
	n, err = e.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, containsStatement(e.statements(), `DROP SCHEMA IF EXISTS "`+tn.PartitionName+`" CASCADE`))

	stored, err := e.svc.Tenant(ctx, "org_gone")
	require.NoError(t, err)
	assert.NotNil(t, stored.PurgedAt)

	_, done, _ := e.scheduler.Job(tn.ID)
	assert.True(t, done)
	assert.Contains(t, e.auditor.Actions(), "tenant.purged")

	n, err = e.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "completed jobs do not run again")
}

func TestCleanupWorkerReschedulesFailures(t *testing.T) {
	t.Parallel()

	e := newEnv(t, 1)
	ctx := context.Background()
	tn, err := e.svc.Provision(ctx, lifecycle.ProvisionInput{ExternalOrgID: "org_stuck"})
	require.NoError(t, err)
	require.NoError(t, e.svc.Deprovision(ctx, "org_stuck"))
	e.clock.Advance(grace)

	e.pool.Conns()[0].FailOn("drop schema", errors.New("lock timeout"))

	n, err := e.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	job, done, ok := e.scheduler.Job(tn.ID)
	require.True(t, ok)
	assert.False(t, done)
	assert.Equal(t, 1, job.Attempts)
	assert.Contains(t, job.LastError, "lock timeout")
	assert.Equal(t, e.clock.Now().Add(time.Minute), job.RunAfter)

	n, err = e.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "rescheduled job waits for its backoff")
}

func TestCleanupWorkerRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	e := newEnv(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.worker.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from  lifecycle.State
		event lifecycle.Event
		to    lifecycle.State
		ok    bool
	}{
		{lifecycle.StateNone, lifecycle.EventProvision, lifecycle.StateProvisioning, true},
		{lifecycle.StateProvisioning, lifecycle.EventProvisioned, lifecycle.StateActive, true},
		{lifecycle.StateActive, lifecycle.EventSuspend, lifecycle.StateSuspended, true},
		{lifecycle.StateSuspended, lifecycle.EventResume, lifecycle.StateActive, true},
		{lifecycle.StateActive, lifecycle.EventDeprovision, lifecycle.StateDeleted, true},
		{lifecycle.StateSuspended, lifecycle.EventDeprovision, lifecycle.StateDeleted, true},
		{lifecycle.StateDeleted, lifecycle.EventProvision, lifecycle.StateDeleted, false},
		{lifecycle.StateDeleted, lifecycle.EventResume, lifecycle.StateDeleted, false},
		{lifecycle.StateActive, lifecycle.EventResume, lifecycle.StateActive, false},
		{lifecycle.StateNone, lifecycle.EventSuspend, lifecycle.StateNone, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			t.Parallel()
			to, err := lifecycle.Next(tt.from, tt.event)
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
			}
			assert.Equal(t, tt.to, to)
		})
	}

	deleted := time.Now()
	assert.Equal(t, lifecycle.StateNone, lifecycle.StateOf(nil))
	assert.Equal(t, lifecycle.StateActive, lifecycle.StateOf(&tenant.Tenant{Status: tenant.StatusPastDue}))
	assert.Equal(t, lifecycle.StateSuspended, lifecycle.StateOf(&tenant.Tenant{Status: tenant.StatusSuspended}))
	assert.Equal(t, lifecycle.StateDeleted, lifecycle.StateOf(&tenant.Tenant{Status: tenant.StatusActive, DeletedAt: &deleted}))
}

func TestTenantIDForIsStable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, lifecycle.TenantIDFor("org_1"), lifecycle.TenantIDFor("org_1"))
	assert.NotEqual(t, lifecycle.TenantIDFor("org_1"), lifecycle.TenantIDFor("org_2"))
	assert.Equal(t, uuid.Version(5), lifecycle.TenantIDFor("org_1").Version())
}
