package tenant

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Role is a membership role. Roles are totally ordered; a higher value grants everything a
// lower one does.
type Role int

const (
	RoleViewer Role = iota + 1
	RoleMember
	RoleAdmin
	RoleOwner
)

var roleNames = map[Role]string{
	RoleViewer: "viewer",
	RoleMember: "member",
	RoleAdmin:  "admin",
	RoleOwner:  "owner",
}

// ParseRole maps a role name to its Role. Unknown names are rejected.
func ParseRole(s string) (Role, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for r, n := range roleNames {
		if n == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

func (r Role) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// AtLeast reports whether r grants min.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r >= min
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Tier is the subscription tier.
type Tier string

const (
	TierStarter      Tier = "starter"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierStarter, TierProfessional, TierEnterprise:
		return true
	}
	return false
}

// Status is the subscription status, owned by the billing provider.
type Status string

const (
	StatusTrialing  Status = "trialing"
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusPastDue, StatusSuspended, StatusCancelled:
		return true
	}
	return false
}

// Feature is a named boolean capability. The set is closed: only the constants below exist.
type Feature string

const (
	FeatureSSO             Feature = "sso"
	FeatureAuditLog        Feature = "audit_log"
	FeatureAPIAccess       Feature = "api_access"
	FeatureCustomDomain    Feature = "custom_domain"
	FeatureAdvancedReports Feature = "advanced_reports"
	FeatureWebhooks        Feature = "webhooks"
)

var knownFeatures = []Feature{
	FeatureSSO,
	FeatureAuditLog,
	FeatureAPIAccess,
	FeatureCustomDomain,
	FeatureAdvancedReports,
	FeatureWebhooks,
}

// Features returns every defined feature.
func Features() []Feature {
	return slices.Clone(knownFeatures)
}

// ParseFeature maps a name to a Feature. Unknown names are rejected.
func ParseFeature(s string) (Feature, error) {
	f := Feature(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownFeature, s)
	}
	return f, nil
}

// Valid reports whether f is a defined feature.
func (f Feature) Valid() bool {
	return slices.Contains(knownFeatures, f)
}

// FeatureSet is the set of features enabled for a tenant.
type FeatureSet map[Feature]bool

// NewFeatureSet builds a set from fs, ignoring undefined features.
func NewFeatureSet(fs ...Feature) FeatureSet {
	set := make(FeatureSet, len(fs))
	for _, f := range fs {
		if f.Valid() {
			set[f] = true
		}
	}
	return set
}

// Has reports whether f is enabled.
func (s FeatureSet) Has(f Feature) bool {
	return f.Valid() && s[f]
}

// List returns the enabled features in definition order.
func (s FeatureSet) List() []Feature {
	out := make([]Feature, 0, len(s))
	for _, f := range knownFeatures {
		if s[f] {
			out = append(out, f)
		}
	}
	return out
}

func (s FeatureSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}

func (s *FeatureSet) UnmarshalJSON(b []byte) error {
	var list []Feature
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*s = NewFeatureSet(list...)
	return nil
}

// Resource is a countable entity type subject to quota.
type Resource string

const (
	ResourceProjects Resource = "projects"
	ResourceMembers  Resource = "members"
	ResourceAPIKeys  Resource = "api_keys"
)

// Unlimited disables a quota.
const Unlimited int64 = -1
