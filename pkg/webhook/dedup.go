package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDedupTTL is how long a processed event id is remembered.
const DefaultDedupTTL = 72 * time.Hour

// Deduplicator remembers processed event ids. Claim reports false when the event was already
// claimed; Forget releases a claim after a failed dispatch so a redelivery is processed.
type Deduplicator interface {
	Claim(ctx context.Context, source, eventID string) (bool, error)
	Forget(ctx context.Context, source, eventID string) error
}

// MemoryDeduplicator keeps claims in process memory. Expired claims are swept at most once
// per sweep interval, from inside Claim.
type MemoryDeduplicator struct {
	mu        sync.Mutex
	ttl       time.Duration
	every     time.Duration
	now       func() time.Time
	lastSweep time.Time
	claims    map[string]time.Time
}

// MemoryDedupOption configures a MemoryDeduplicator.
type MemoryDedupOption func(*MemoryDeduplicator)

// WithDedupClock overrides the time source.
func WithDedupClock(now func() time.Time) MemoryDedupOption {
	return func(d *MemoryDeduplicator) {
		if now != nil {
			d.now = now
		}
	}
}

// WithSweepInterval sets how often expired claims are dropped. The default is the smaller of
// the ttl and one minute.
func WithSweepInterval(every time.Duration) MemoryDedupOption {
	return func(d *MemoryDeduplicator) {
		if every > 0 {
			d.every = every
		}
	}
}

// NewMemoryDeduplicator creates a MemoryDeduplicator. A non-positive ttl uses DefaultDedupTTL.
func NewMemoryDeduplicator(ttl time.Duration, opts ...MemoryDedupOption) *MemoryDeduplicator {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	d := &MemoryDeduplicator{ttl: ttl, every: min(ttl, time.Minute), now: time.Now, claims: make(map[string]time.Time)}
	for _, opt := range opts {
		opt(d)
	}
	d.lastSweep = d.now()
	return d
}

func (d *MemoryDeduplicator) Claim(_ context.Context, source, eventID string) (bool, error) {
	key := dedupKey(source, eventID)
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	if now.Sub(d.lastSweep) >= d.every {
		for k, exp := range d.claims {
			if !now.Before(exp) {
				delete(d.claims, k)
			}
		}
		d.lastSweep = now
	}
	if exp, ok := d.claims[key]; ok && now.Before(exp) {
		return false, nil
	}
	d.claims[key] = now.Add(d.ttl)
	return true, nil
}

// Len returns the number of held claims, expired ones not yet swept included.
func (d *MemoryDeduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.claims)
}

func (d *MemoryDeduplicator) Forget(_ context.Context, source, eventID string) error {
	d.mu.Lock()
	delete(d.claims, dedupKey(source, eventID))
	d.mu.Unlock()
	return nil
}

// RedisDeduplicator shares claims between replicas with SET NX.
type RedisDeduplicator struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisDeduplicator creates a RedisDeduplicator. Keys are "<prefix><source>:<eventID>".
func NewRedisDeduplicator(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisDeduplicator {
	if prefix == "" {
		prefix = "webhook:"
	}
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDeduplicator{client: client, prefix: prefix, ttl: ttl}
}

func (d *RedisDeduplicator) Claim(ctx context.Context, source, eventID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+dedupKey(source, eventID), time.Now().Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrDeduplicationFailed, err)
	}
	return ok, nil
}

func (d *RedisDeduplicator) Forget(ctx context.Context, source, eventID string) error {
	if err := d.client.Del(ctx, d.prefix+dedupKey(source, eventID)).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrDeduplicationFailed, err)
	}
	return nil
}

func dedupKey(source, eventID string) string {
	return source + ":" + eventID
}
