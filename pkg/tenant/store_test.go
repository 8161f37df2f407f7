package tenant_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantkit/pkg/partition"
	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

func TestMemoryStoreTenants(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := tenant.NewMemoryStore()
	tn := seedTenant(t, store, nil)

	t.Run("rejects duplicate external id and partition", func(t *testing.T) {
		dup := tn.Clone()
		dup.ID = uuid.New()
		require.ErrorIs(t, store.CreateTenant(ctx, dup), tenant.ErrTenantExists)

		other := tn.Clone()
		other.ID = uuid.New()
		other.ExternalOrgID = "org_other"
		require.ErrorIs(t, store.CreateTenant(ctx, other), tenant.ErrTenantExists, "partition names are unique")
	})

	t.Run("returns copies", func(t *testing.T) {
		got, err := store.TenantByID(ctx, tn.ID)
		require.NoError(t, err)
		got.Features[tenant.FeatureWebhooks] = true

		again, err := store.TenantByExternalID(ctx, tn.ExternalOrgID)
		require.NoError(t, err)
		assert.False(t, again.HasFeature(tenant.FeatureWebhooks))
	})

	t.Run("soft delete keeps the first timestamp", func(t *testing.T) {
		first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, store.SoftDeleteTenant(ctx, tn.ID, first))
		require.NoError(t, store.SoftDeleteTenant(ctx, tn.ID, first.Add(time.Hour)))

		got, err := store.TenantByID(ctx, tn.ID)
		require.NoError(t, err)
		require.NotNil(t, got.DeletedAt)
		assert.Equal(t, first, *got.DeletedAt)
		assert.Equal(t, tn.PartitionName, got.PartitionName, "row and partition reference remain")
	})

	t.Run("missing tenant", func(t *testing.T) {
		_, err := store.TenantByID(ctx, uuid.New())
		require.ErrorIs(t, err, tenant.ErrTenantNotFound)
		require.ErrorIs(t, store.UpdateSubscription(ctx, uuid.New(), tenant.StatusActive, nil), tenant.ErrTenantNotFound)
	})
}

func TestMemoryStoreMemberships(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := tenant.NewMemoryStore()
	a := seedTenant(t, store, nil)
	b := seedTenant(t, store, func(tn *tenant.Tenant) {
		tn.ID = uuid.New()
		tn.ExternalOrgID = "org_b"
		tn.PartitionName = partition.NameFor(tn.ID)
	})

	require.NoError(t, store.UpsertMembership(ctx, &tenant.Membership{UserID: "u1", TenantID: a.ID, Role: tenant.RoleMember}))
	require.NoError(t, store.UpsertMembership(ctx, &tenant.Membership{UserID: "u1", TenantID: b.ID, Role: tenant.RoleOwner}))
	require.NoError(t, store.UpsertMembership(ctx, &tenant.Membership{UserID: "u2", TenantID: a.ID, Role: tenant.RoleViewer}))

	ma, err := store.Membership(ctx, a.ID, "u1")
	require.NoError(t, err)
	mb, err := store.Membership(ctx, b.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, tenant.RoleMember, ma.Role, "memberships are per tenant")
	assert.Equal(t, tenant.RoleOwner, mb.Role)

	require.NoError(t, store.ReplaceMemberships(ctx, a.ID, []tenant.Membership{
		{UserID: "u1", Role: tenant.RoleAdmin},
		{UserID: "u3", Role: tenant.RoleMember},
	}))
	members := store.Members(a.ID)
	assert.Len(t, members, 2)
	_, err = store.Membership(ctx, a.ID, "u2")
	require.ErrorIs(t, err, tenant.ErrMembershipNotFound)
	ma, _ = store.Membership(ctx, a.ID, "u1")
	assert.Equal(t, tenant.RoleAdmin, ma.Role)

	n, err := store.DeleteUserMemberships(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.ErrorIs(t, store.UpsertMembership(ctx, &tenant.Membership{UserID: "u9", TenantID: uuid.New(), Role: tenant.RoleViewer}),
		tenant.ErrTenantNotFound)
}
