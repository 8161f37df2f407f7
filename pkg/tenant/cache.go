package tenant

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Cache holds tenant records keyed by external org id. Entries must be invalidated by every
// lifecycle change so a deleted or suspended tenant stops resolving immediately.
type Cache interface {
	Get(ctx context.Context, externalOrgID string) (*Tenant, bool)
	Set(ctx context.Context, t *Tenant)
	Delete(ctx context.Context, externalOrgID string)
}

// MemoryCache is a bounded in-process LRU Cache with TTL expiry and a janitor goroutine.
type MemoryCache struct {
	mu     sync.Mutex
	items  *simplelru.LRU[string, cacheItem]
	ttl    time.Duration
	now    func() time.Time
	stop   chan struct{}
	done   chan struct{}
	closed bool
}

type cacheItem struct {
	tenant    *Tenant
	expiresAt time.Time
}

// DefaultCacheSize bounds MemoryCache when no size is given.
const DefaultCacheSize = 1000

// NewMemoryCache creates a cache holding at most maxSize tenants for ttl each.
func NewMemoryCache(maxSize int, ttl time.Duration) *MemoryCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	// NewLRU only fails for a non-positive size.
	items, _ := simplelru.NewLRU[string, cacheItem](maxSize, nil)
	c := &MemoryCache{
		items: items,
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go c.janitor()
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Tenant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items.Get(key)
	if !ok {
		return nil, false
	}
	if !c.now().Before(item.expiresAt) {
		c.items.Remove(key)
		return nil, false
	}
	return item.tenant.Clone(), true
}

func (c *MemoryCache) Set(_ context.Context, t *Tenant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Add(t.ExternalOrgID, cacheItem{tenant: t.Clone(), expiresAt: c.now().Add(c.ttl)})
}

func (c *MemoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Remove(key)
}

// Len returns the number of cached entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Len()
}

// Close stops the janitor.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stop)
	<-c.done
	return nil
}

func (c *MemoryCache) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stop:
			return
		}
	}
}

// removeExpired drops expired entries. Recency and expiry order differ, so every key is checked.
func (c *MemoryCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, key := range c.items.Keys() {
		if item, ok := c.items.Peek(key); ok && !now.Before(item.expiresAt) {
			c.items.Remove(key)
		}
	}
}

// NoCache disables caching.
type NoCache struct{}

func (NoCache) Get(context.Context, string) (*Tenant, bool) { return nil, false }
func (NoCache) Set(context.Context, *Tenant) {}
func (NoCache) Delete(context.Context, string) {}
