package gate

import "errors"

var (
	ErrNoScope             = errors.New("gate.no_scope")
	ErrNoCounterRegistered = errors.New("gate.no_counter_registered")
	ErrCountFailed         = errors.New("gate.count_failed")
	ErrInvalidTable        = errors.New("gate.invalid_table")
	ErrQuotaLockFailed     = errors.New("gate.quota_lock_failed")
)
