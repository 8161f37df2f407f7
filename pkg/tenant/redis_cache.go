package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/tenantkit/pkg/logger"
)

// RedisCache shares tenant records between replicas. Redis errors degrade to cache misses.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache creates a RedisCache. Keys are "<prefix><externalOrgID>".
func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration, log *slog.Logger) *RedisCache {
	if prefix == "" {
		prefix = "tenant:"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: log.With(logger.Component("tenant_cache")),
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Tenant, bool) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "tenant cache read failed", logger.OrgID(key), logger.Error(err))
		}
		return nil, false
	}
	var t Tenant
	if err := json.Unmarshal(raw, &t); err != nil {
		c.logger.WarnContext(ctx, "tenant cache entry corrupt", logger.OrgID(key), logger.Error(err))
		c.Delete(ctx, key)
		return nil, false
	}
	return &t, true
}

func (c *RedisCache) Set(ctx context.Context, t *Tenant) {
	raw, err := json.Marshal(t)
	if err != nil {
		c.logger.WarnContext(ctx, "tenant cache encode failed", logger.TenantID(t.ID), logger.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.prefix+t.ExternalOrgID, raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "tenant cache write failed", logger.TenantID(t.ID), logger.Error(err))
	}
}

func (c *RedisCache) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		c.logger.WarnContext(ctx, "tenant cache invalidation failed", logger.OrgID(key), logger.Error(err))
	}
}
