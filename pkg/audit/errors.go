package audit

import "errors"

var (
	ErrInvalidEntry   = errors.New("audit.invalid_entry")
	ErrRecorderClosed = errors.New("audit.recorder_closed")
	ErrWriteFailed    = errors.New("audit.write_failed")
)
