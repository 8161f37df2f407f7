package gate

import (
	"fmt"
	"net/http"

	"github.com/dmitrymomot/tenantkit/pkg/tenancy"
	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

// CheckFeature allows the request when the tenant has f enabled.
func CheckFeature(s *tenancy.Scope, f tenant.Feature) error {
	if s == nil {
		return ErrNoScope
	}
	if !s.HasFeature(f) {
		return &tenant.FeatureError{Feature: f}
	}
	return nil
}

// CheckRole allows the request when the caller's role is at least min.
func CheckRole(s *tenancy.Scope, min tenant.Role) error {
	if s == nil {
		return ErrNoScope
	}
	if !s.IsAtLeast(min) {
		return &tenant.RoleError{Required: min, Actual: s.Role()}
	}
	return nil
}

// MinManagerRole is the lowest role allowed to change other members' roles.
const MinManagerRole = tenant.RoleAdmin

// CheckRoleChange decides whether actor may set target's role to requested. Only managers
// (MinManagerRole and above) change roles, nobody changes their own, and an actor can only act
// on lower-ranked members and only grant roles below their own.
func CheckRoleChange(actor, target *tenant.Membership, requested tenant.Role) error {
	if !requested.Valid() {
		return fmt.Errorf("%w: %d", tenant.ErrUnknownRole, int(requested))
	}
	if actor == nil || target == nil {
		return tenant.ErrInsufficientPermissions
	}
	if actor.Role < MinManagerRole {
		return tenant.ErrInsufficientPermissions
	}
	if actor.TenantID != target.TenantID || actor.UserID == target.UserID {
		return tenant.ErrInsufficientPermissions
	}
	if actor.Role <= target.Role || actor.Role <= requested {
		return tenant.ErrInsufficientPermissions
	}
	return nil
}

// CheckWritable rejects non-safe methods for a read-only tenant.
func CheckWritable(s *tenancy.Scope, method string) error {
	if s == nil {
		return ErrNoScope
	}
	if s.ReadOnly() && !safeMethod(method) {
		return tenant.ErrAccountReadOnly
	}
	return nil
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
