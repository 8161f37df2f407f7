package tenant_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

func TestRoleOrdering(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 4, int(tenant.RoleOwner))
	assert.Equal(t, 3, int(tenant.RoleAdmin))
	assert.Equal(t, 2, int(tenant.RoleMember))
	assert.Equal(t, 1, int(tenant.RoleViewer))

	assert.True(t, tenant.RoleOwner.AtLeast(tenant.RoleAdmin))
	assert.True(t, tenant.RoleMember.AtLeast(tenant.RoleMember))
	assert.False(t, tenant.RoleViewer.AtLeast(tenant.RoleMember))
	assert.False(t, tenant.Role(9).AtLeast(tenant.RoleViewer), "undefined roles grant nothing")
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	tests := map[string]tenant.Role{
		"owner":    tenant.RoleOwner,
		"Admin":    tenant.RoleAdmin,
		" member ": tenant.RoleMember,
		"viewer":   tenant.RoleViewer,
	}
	for in, want := range tests {
		got, err := tenant.ParseRole(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", "superuser", "4"} {
		_, err := tenant.ParseRole(in)
		require.ErrorIs(t, err, tenant.ErrUnknownRole, in)
	}
}

func TestRoleText(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(map[string]tenant.Role{"r": tenant.RoleAdmin})
	require.NoError(t, err)
	assert.JSONEq(t, `{"r":"admin"}`, string(b))

	var out map[string]tenant.Role
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, tenant.RoleAdmin, out["r"])

	_, err = json.Marshal(tenant.Role(0))
	require.Error(t, err)
}

func TestFeatureSet(t *testing.T) {
	t.Parallel()

	set := tenant.NewFeatureSet(tenant.FeatureSSO, tenant.Feature("telepathy"), tenant.FeatureWebhooks)
	assert.True(t, set.Has(tenant.FeatureSSO))
	assert.False(t, set.Has(tenant.FeatureAuditLog))
	assert.False(t, set.Has(tenant.Feature("telepathy")))
	assert.Equal(t, []tenant.Feature{tenant.FeatureSSO, tenant.FeatureWebhooks}, set.List())

	b, err := json.Marshal(set)
	require.NoError(t, err)
	assert.JSONEq(t, `["sso","webhooks"]`, string(b))

	var decoded tenant.FeatureSet
	require.NoError(t, json.Unmarshal([]byte(`["audit_log","unknown"]`), &decoded))
	assert.Equal(t, []tenant.Feature{tenant.FeatureAuditLog}, decoded.List())

	_, err = tenant.ParseFeature("unknown")
	require.ErrorIs(t, err, tenant.ErrUnknownFeature)
}

func TestTenantHelpers(t *testing.T) {
	t.Parallel()

	now := time.Now()
	yesterday := now.Add(-24 * time.Hour)
	tomorrow := now.Add(24 * time.Hour)

	tn := &tenant.Tenant{
		ID:           uuid.New(),
		Status:       tenant.StatusTrialing,
		TrialEndsAt:  &yesterday,
		EntityLimits: map[tenant.Resource]int64{tenant.ResourceProjects: 3},
		Features:     tenant.NewFeatureSet(tenant.FeatureSSO),
	}
	assert.True(t, tn.TrialExpired(now))
	assert.Equal(t, int64(3), tn.Limit(tenant.ResourceProjects))
	assert.Equal(t, tenant.Unlimited, tn.Limit(tenant.ResourceAPIKeys))

	tn.TrialEndsAt = &tomorrow
	assert.False(t, tn.TrialExpired(now))

	tn.Status = tenant.StatusActive
	tn.TrialEndsAt = &yesterday
	assert.False(t, tn.TrialExpired(now), "only trialing tenants expire")

	clone := tn.Clone()
	clone.Features[tenant.FeatureWebhooks] = true
	clone.EntityLimits[tenant.ResourceProjects] = 10
	assert.False(t, tn.HasFeature(tenant.FeatureWebhooks))
	assert.Equal(t, int64(3), tn.Limit(tenant.ResourceProjects))
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Acme Corp", "acme-corp"},
		{"  Ünïcödé  Ltd. ", "unicode-ltd"},
		{"Crème Brûlée & Co", "creme-brulee-co"},
		{"---", ""},
		{"already-a-slug", "already-a-slug"},
		{strings.Repeat("a", 80), strings.Repeat("a", tenant.MaxSlugLength)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tenant.Slugify(tt.in))
		})
	}
}
