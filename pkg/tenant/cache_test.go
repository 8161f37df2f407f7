package tenant_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

func sampleTenant(orgID string) *tenant.Tenant {
	id := uuid.New()
	return &tenant.Tenant{
		ID:            id,
		ExternalOrgID: orgID,
		Tier:          tenant.TierStarter,
		Status:        tenant.StatusActive,
		Features:      tenant.NewFeatureSet(tenant.FeatureAPIAccess),
		EntityLimits:  map[tenant.Resource]int64{tenant.ResourceProjects: 2},
	}
}

func TestMemoryCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("get set delete", func(t *testing.T) {
		t.Parallel()
		c := tenant.NewMemoryCache(10, time.Minute)
		t.Cleanup(func() { _ = c.Close() })

		tn := sampleTenant("org_1")
		c.Set(ctx, tn)
		got, ok := c.Get(ctx, "org_1")
		require.True(t, ok)
		assert.Equal(t, tn.ID, got.ID)

		c.Delete(ctx, "org_1")
		_, ok = c.Get(ctx, "org_1")
		assert.False(t, ok)
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		t.Parallel()
		c := tenant.NewMemoryCache(2, time.Minute)
		t.Cleanup(func() { _ = c.Close() })

		c.Set(ctx, sampleTenant("a"))
		c.Set(ctx, sampleTenant("b"))
		_, _ = c.Get(ctx, "a")
		c.Set(ctx, sampleTenant("c"))

		_, okA := c.Get(ctx, "a")
		_, okB := c.Get(ctx, "b")
		_, okC := c.Get(ctx, "c")
		assert.True(t, okA)
		assert.False(t, okB)
		assert.True(t, okC)
	})

	t.Run("stays within size under churn", func(t *testing.T) {
		t.Parallel()
		c := tenant.NewMemoryCache(100, time.Minute)
		t.Cleanup(func() { _ = c.Close() })

		for i := range 1000 {
			c.Set(ctx, sampleTenant(fmt.Sprintf("org_%d", i)))
		}
		assert.Equal(t, 100, c.Len())
		_, ok := c.Get(ctx, "org_999")
		assert.True(t, ok)
		_, ok = c.Get(ctx, "org_0")
		assert.False(t, ok)
	})

	t.Run("expires entries", func(t *testing.T) {
		t.Parallel()
		c := tenant.NewMemoryCache(2, 10*time.Millisecond)
		t.Cleanup(func() { _ = c.Close() })

		c.Set(ctx, sampleTenant("a"))
		time.Sleep(20 * time.Millisecond)
		_, ok := c.Get(ctx, "a")
		assert.False(t, ok)
	})

	t.Run("close is idempotent", func(t *testing.T) {
		t.Parallel()
		c := tenant.NewMemoryCache(1, time.Minute)
		require.NoError(t, c.Close())
		require.NoError(t, c.Close())
	})
}

func TestRedisCache(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	c := tenant.NewRedisCache(client, "test:tenant:", time.Minute, logger.Discard())

	tn := sampleTenant("org_r")
	c.Set(ctx, tn)
	assert.True(t, mr.Exists("test:tenant:org_r"))

	got, ok := c.Get(ctx, "org_r")
	require.True(t, ok)
	assert.Equal(t, tn.ID, got.ID)
	assert.True(t, got.HasFeature(tenant.FeatureAPIAccess))
	assert.Equal(t, int64(2), got.Limit(tenant.ResourceProjects))

	mr.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx, "org_r")
	assert.False(t, ok, "entries expire with the TTL")

	c.Set(ctx, tn)
	c.Delete(ctx, "org_r")
	_, ok = c.Get(ctx, "org_r")
	assert.False(t, ok)

	require.NoError(t, mr.Set("test:tenant:broken", "{not json"))
	_, ok = c.Get(ctx, "broken")
	assert.False(t, ok)
	assert.False(t, mr.Exists("test:tenant:broken"), "corrupt entries are dropped")
}
