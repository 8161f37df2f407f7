package lifecycle

import "errors"

var (
	ErrInvalidTransition = errors.New("lifecycle.invalid_transition")
	ErrInvalidInput      = errors.New("lifecycle.invalid_input")
	ErrProvisionFailed   = errors.New("lifecycle.provision_failed")
	ErrScheduleFailed    = errors.New("lifecycle.schedule_failed")
	ErrCleanupFailed     = errors.New("lifecycle.cleanup_failed")
	ErrJobNotFound       = errors.New("lifecycle.job_not_found")
)
