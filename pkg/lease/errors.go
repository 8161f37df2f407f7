package lease

import "errors"

var (
	ErrAcquireTimeout = errors.New("lease.acquire_timeout")
	ErrReleased       = errors.New("lease.released")
	ErrResetFailed    = errors.New("lease.reset_failed")
	ErrSearchPath     = errors.New("lease.search_path_mismatch")
)
