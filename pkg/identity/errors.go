package identity

import "errors"

var (
	ErrMissingToken  = errors.New("identity.missing_token")
	ErrInvalidToken  = errors.New("identity.invalid_token")
	ErrInvalidEvent  = errors.New("identity.invalid_event")
	ErrInvalidSecret = errors.New("identity.invalid_secret")
	ErrUnknownScheme = errors.New("identity.unknown_webhook_scheme")
)
