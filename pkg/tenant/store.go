package tenant

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenantkit/pkg/pg"
)

// Store persists tenants and memberships in the shared registry.
//
// Reads never filter out soft-deleted tenants; callers decide what a deletion means.
// Methods addressing a missing tenant return ErrTenantNotFound.
type Store interface {
	TenantByExternalID(ctx context.Context, externalOrgID string) (*Tenant, error)
	TenantByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	CreateTenant(ctx context.Context, t *Tenant) error
	UpdateTenantProfile(ctx context.Context, id uuid.UUID, name, slug string) error
	UpdateSubscription(ctx context.Context, id uuid.UUID, status Status, trialEndsAt *time.Time) error
	UpdatePlan(ctx context.Context, id uuid.UUID, tier Tier, features FeatureSet, limits map[Resource]int64) error
	SoftDeleteTenant(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkPurged(ctx context.Context, id uuid.UUID, at time.Time) error

	Membership(ctx context.Context, tenantID uuid.UUID, userID string) (*Membership, error)
	UpsertMembership(ctx context.Context, m *Membership) error
	DeleteMembership(ctx context.Context, tenantID uuid.UUID, userID string) error
	DeleteUserMemberships(ctx context.Context, userID string) (int64, error)
	ReplaceMemberships(ctx context.Context, tenantID uuid.UUID, members []Membership) error
	TouchLogin(ctx context.Context, tenantID uuid.UUID, userID string, at time.Time) error
}

// StoreFunc returns a Store whose queries run on db. The request path passes the request's own
// lease so resolution never takes a second connection from the pool.
type StoreFunc func(db pg.Querier) Store

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu          sync.RWMutex
	tenants     map[uuid.UUID]*Tenant
	byExternal  map[string]uuid.UUID
	memberships map[uuid.UUID]map[string]*Membership
	now         func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:     make(map[uuid.UUID]*Tenant),
		byExternal:  make(map[string]uuid.UUID),
		memberships: make(map[uuid.UUID]map[string]*Membership),
		now:         time.Now,
	}
}

// Func returns a StoreFunc that ignores the connection and always yields s.
func (s *MemoryStore) Func() StoreFunc {
	return func(pg.Querier) Store { return s }
}

func (s *MemoryStore) TenantByExternalID(_ context.Context, externalOrgID string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExternal[externalOrgID]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return s.tenants[id].Clone(), nil
}

func (s *MemoryStore) TenantByID(_ context.Context, id uuid.UUID) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return t.Clone(), nil
}

func (s *MemoryStore) CreateTenant(_ context.Context, t *Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[t.ID]; ok {
		return ErrTenantExists
	}
	if _, ok := s.byExternal[t.ExternalOrgID]; ok {
		return ErrTenantExists
	}
	for _, existing := range s.tenants {
		if existing.PartitionName == t.PartitionName {
			return ErrTenantExists
		}
	}
	c := t.Clone()
	now := s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.tenants[c.ID] = c
	s.byExternal[c.ExternalOrgID] = c.ID
	return nil
}

func (s *MemoryStore) UpdateTenantProfile(_ context.Context, id uuid.UUID, name, slug string) error {
	return s.update(id, func(t *Tenant) {
		t.Name, t.Slug = name, slug
	})
}

func (s *MemoryStore) UpdateSubscription(_ context.Context, id uuid.UUID, status Status, trialEndsAt *time.Time) error {
	return s.update(id, func(t *Tenant) {
		t.Status = status
		t.TrialEndsAt = cloneTime(trialEndsAt)
	})
}

func (s *MemoryStore) UpdatePlan(_ context.Context, id uuid.UUID, tier Tier, features FeatureSet, limits map[Resource]int64) error {
	return s.update(id, func(t *Tenant) {
		t.Tier = tier
		t.Features = NewFeatureSet(features.List()...)
		t.EntityLimits = make(map[Resource]int64, len(limits))
		for r, l := range limits {
			t.EntityLimits[r] = l
		}
	})
}

func (s *MemoryStore) SoftDeleteTenant(_ context.Context, id uuid.UUID, at time.Time) error {
	return s.update(id, func(t *Tenant) {
		if t.DeletedAt == nil {
			t.DeletedAt = &at
		}
	})
}

func (s *MemoryStore) MarkPurged(_ context.Context, id uuid.UUID, at time.Time) error {
	return s.update(id, func(t *Tenant) {
		if t.PurgedAt == nil {
			t.PurgedAt = &at
		}
	})
}

func (s *MemoryStore) update(id uuid.UUID, fn func(*Tenant)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return ErrTenantNotFound
	}
	fn(t)
	t.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) Membership(_ context.Context, tenantID uuid.UUID, userID string) (*Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[tenantID][userID]
	if !ok {
		return nil, ErrMembershipNotFound
	}
	c := *m
	c.LastLoginAt = cloneTime(m.LastLoginAt)
	return &c, nil
}

func (s *MemoryStore) UpsertMembership(_ context.Context, m *Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(*m)
}

func (s *MemoryStore) upsertLocked(m Membership) error {
	if _, ok := s.tenants[m.TenantID]; !ok {
		return ErrTenantNotFound
	}
	members, ok := s.memberships[m.TenantID]
	if !ok {
		members = make(map[string]*Membership)
		s.memberships[m.TenantID] = members
	}
	now := s.now()
	if existing, ok := members[m.UserID]; ok {
		existing.Role = m.Role
		existing.UpdatedAt = now
		return nil
	}
	m.CreatedAt, m.UpdatedAt = now, now
	members[m.UserID] = &m
	return nil
}

func (s *MemoryStore) DeleteMembership(_ context.Context, tenantID uuid.UUID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memberships[tenantID], userID)
	return nil
}

func (s *MemoryStore) DeleteUserMemberships(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, members := range s.memberships {
		if _, ok := members[userID]; ok {
			delete(members, userID)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ReplaceMemberships(_ context.Context, tenantID uuid.UUID, members []Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[tenantID]; !ok {
		return ErrTenantNotFound
	}
	keep := make(map[string]bool, len(members))
	for _, m := range members {
		m.TenantID = tenantID
		keep[m.UserID] = true
		if err := s.upsertLocked(m); err != nil {
			return err
		}
	}
	for userID := range s.memberships[tenantID] {
		if !keep[userID] {
			delete(s.memberships[tenantID], userID)
		}
	}
	return nil
}

func (s *MemoryStore) TouchLogin(_ context.Context, tenantID uuid.UUID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[tenantID][userID]
	if !ok {
		return ErrMembershipNotFound
	}
	m.LastLoginAt = &at
	return nil
}

// Members returns a snapshot of a tenant's memberships.
func (s *MemoryStore) Members(tenantID uuid.UUID) []Membership {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Membership, 0, len(s.memberships[tenantID]))
	for _, m := range s.memberships[tenantID] {
		out = append(out, *m)
	}
	return out
}

// Count returns the number of tenant rows.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tenants)
}
