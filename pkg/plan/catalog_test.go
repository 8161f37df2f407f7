package plan_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantkit/pkg/plan"
	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

func TestDefaultCatalog(t *testing.T) {
	t.Parallel()

	c := plan.Default()
	assert.Equal(t, []tenant.Tier{tenant.TierStarter, tenant.TierProfessional, tenant.TierEnterprise}, c.Tiers())

	starter, err := c.Get(tenant.TierStarter)
	require.NoError(t, err)
	assert.True(t, starter.HasTrial())
	assert.Equal(t, tenant.StatusTrialing, starter.InitialStatus())
	assert.False(t, starter.FeatureSet().Has(tenant.FeatureAdvancedReports))
	assert.Equal(t, int64(3), starter.LimitMap()[tenant.ResourceProjects])

	enterprise, err := c.Get(tenant.TierEnterprise)
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusActive, enterprise.InitialStatus())
	assert.Equal(t, tenant.Unlimited, enterprise.LimitMap()[tenant.ResourceProjects])
	assert.True(t, enterprise.FeatureSet().Has(tenant.FeatureSSO))
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{
			name: "valid",
			yaml: "plans:\n  starter:\n    features: [sso]\n    limits: {projects: 1}\n",
		},
		{
			name:    "empty",
			yaml:    "plans: {}\n",
			wantErr: plan.ErrEmptyCatalog,
		},
		{
			name:    "unknown tier",
			yaml:    "plans:\n  gold:\n    limits: {projects: 1}\n",
			wantErr: plan.ErrUnknownTier,
		},
		{
			name:    "unknown feature",
			yaml:    "plans:\n  starter:\n    features: [teleport]\n",
			wantErr: tenant.ErrUnknownFeature,
		},
		{
			name:    "negative limit",
			yaml:    "plans:\n  starter:\n    limits: {projects: -5}\n",
			wantErr: plan.ErrInvalidPlan,
		},
		{
			name:    "bad yaml",
			yaml:    "plans: [",
			wantErr: plan.ErrParsingPlans,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := plan.Read(strings.NewReader(tt.yaml))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestPlanTrialEndsAt(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	withTrial := plan.Plan{Tier: tenant.TierStarter, TrialDays: 14}
	end := withTrial.TrialEndsAt(start)
	require.NotNil(t, end)
	assert.Equal(t, start.AddDate(0, 0, 14), *end)

	noTrial := plan.Plan{Tier: tenant.TierEnterprise}
	assert.Nil(t, noTrial.TrialEndsAt(start))
}

func TestNewAndGet(t *testing.T) {
	t.Parallel()

	c, err := plan.New(plan.Plan{Tier: tenant.TierStarter})
	require.NoError(t, err)

	_, err = c.Get(tenant.TierEnterprise)
	assert.ErrorIs(t, err, plan.ErrUnknownTier)

	_, err = plan.New(plan.Plan{Tier: tenant.TierStarter}, plan.Plan{Tier: tenant.TierStarter})
	assert.ErrorIs(t, err, plan.ErrDuplicateTier)

	_, err = plan.New()
	assert.ErrorIs(t, err, plan.ErrEmptyCatalog)
}

func TestLimitMapIsCopy(t *testing.T) {
	t.Parallel()

	p := plan.Plan{Tier: tenant.TierStarter, Limits: map[tenant.Resource]int64{tenant.ResourceProjects: 1}}
	m := p.LimitMap()
	m[tenant.ResourceProjects] = 99
	assert.Equal(t, int64(1), p.Limits[tenant.ResourceProjects])
}
