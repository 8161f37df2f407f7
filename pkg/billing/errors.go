package billing

import "errors"

var (
	ErrInvalidSecret = errors.New("billing.invalid_secret")
	ErrInvalidEvent  = errors.New("billing.invalid_event")
	ErrUnknownStatus = errors.New("billing.unknown_status")
	ErrMissingOrgID  = errors.New("billing.missing_org_id")
	ErrUnknownScheme = errors.New("billing.unknown_webhook_scheme")
)
