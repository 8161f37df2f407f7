package tenant

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is a customer organization and the reference to its data partition.
type Tenant struct {
	ID            uuid.UUID          `json:"id"`
	ExternalOrgID string             `json:"external_org_id"`
	Name          string             `json:"name"`
	Slug          string             `json:"slug"`
	PartitionName string             `json:"partition_name"`
	Tier          Tier               `json:"tier"`
	Status        Status             `json:"status"`
	TrialEndsAt   *time.Time         `json:"trial_ends_at,omitempty"`
	Features      FeatureSet         `json:"features"`
	EntityLimits  map[Resource]int64 `json:"entity_limits"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	DeletedAt     *time.Time         `json:"deleted_at,omitempty"`
	PurgedAt      *time.Time         `json:"purged_at,omitempty"`
}

// IsDeleted reports whether the tenant was soft-deleted.
func (t *Tenant) IsDeleted() bool {
	return t.DeletedAt != nil
}

// TrialExpired reports whether the tenant is trialing with a trial end in the past.
func (t *Tenant) TrialExpired(now time.Time) bool {
	return t.Status == StatusTrialing && t.TrialEndsAt != nil && !now.Before(*t.TrialEndsAt)
}

// HasFeature reports whether f is enabled for the tenant.
func (t *Tenant) HasFeature(f Feature) bool {
	return t.Features.Has(f)
}

// Limit returns the cap for r. A missing entry is unlimited.
func (t *Tenant) Limit(r Resource) int64 {
	if l, ok := t.EntityLimits[r]; ok {
		return l
	}
	return Unlimited
}

// Clone returns a deep copy.
func (t *Tenant) Clone() *Tenant {
	c := *t
	c.Features = make(FeatureSet, len(t.Features))
	for f, on := range t.Features {
		c.Features[f] = on
	}
	c.EntityLimits = make(map[Resource]int64, len(t.EntityLimits))
	for r, l := range t.EntityLimits {
		c.EntityLimits[r] = l
	}
	c.TrialEndsAt = cloneTime(t.TrialEndsAt)
	c.DeletedAt = cloneTime(t.DeletedAt)
	c.PurgedAt = cloneTime(t.PurgedAt)
	return &c
}

// Membership mirrors a user's role in a tenant as reported by the identity provider.
type Membership struct {
	UserID      string     `json:"user_id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	Role        Role       `json:"role"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Claims is what an authenticated request asserts about its caller.
type Claims struct {
	UserID string
	OrgID  string
	Role   string
}

// Resolution is the trusted request context produced by the Resolver.
type Resolution struct {
	Tenant     *Tenant
	Membership *Membership
	ReadOnly   bool
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
