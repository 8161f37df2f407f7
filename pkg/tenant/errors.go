package tenant

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoOrganizationContext = errors.New("tenant.no_organization_context")
	ErrTenantNotFound        = errors.New("tenant.not_found")
	ErrTenantDeleted         = errors.New("tenant.deleted")
	ErrTenantExists          = errors.New("tenant.already_exists")
	ErrAccountSuspended      = errors.New("tenant.account_suspended")
	ErrAccountCancelled      = errors.New("tenant.account_cancelled")
	ErrTrialExpired          = errors.New("tenant.trial_expired")
	ErrMembershipNotFound    = errors.New("tenant.membership_not_found")
	ErrMissingUser           = errors.New("tenant.missing_user")
	ErrUnknownRole           = errors.New("tenant.unknown_role")
	ErrUnknownFeature        = errors.New("tenant.unknown_feature")
	ErrUnknownStatus         = errors.New("tenant.unknown_status")

	ErrFeatureNotAvailable     = errors.New("tenant.feature_not_available")
	ErrLimitReached            = errors.New("tenant.limit_reached")
	ErrInsufficientPermissions = errors.New("tenant.insufficient_permissions")
	ErrAccountReadOnly         = errors.New("tenant.account_read_only")
)

// TrialExpiredError carries when the trial ended. It matches ErrTrialExpired.
type TrialExpiredError struct {
	EndedAt time.Time
}

func (e *TrialExpiredError) Error() string {
	return fmt.Sprintf("%s: ended at %s", ErrTrialExpired, e.EndedAt.Format(time.RFC3339))
}

func (e *TrialExpiredError) Unwrap() error { return ErrTrialExpired }

// FeatureError names the feature a tenant lacks. It matches ErrFeatureNotAvailable.
type FeatureError struct {
	Feature Feature
}

func (e *FeatureError) Error() string {
	return fmt.Sprintf("%s: %s", ErrFeatureNotAvailable, e.Feature)
}

func (e *FeatureError) Unwrap() error { return ErrFeatureNotAvailable }

// LimitError reports a quota at or over its cap. It matches ErrLimitReached.
type LimitError struct {
	Resource Resource
	Limit    int64
	Current  int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: %s %d/%d", ErrLimitReached, e.Resource, e.Current, e.Limit)
}

func (e *LimitError) Unwrap() error { return ErrLimitReached }

// RoleError reports a role check failure. It matches ErrInsufficientPermissions.
type RoleError struct {
	Required Role
	Actual   Role
}

func (e *RoleError) Error() string {
	return fmt.Sprintf("%s: requires %s, have %s", ErrInsufficientPermissions, e.Required, e.Actual)
}

func (e *RoleError) Unwrap() error { return ErrInsufficientPermissions }
