package webhook

import "errors"

// Errors returned at the inbound webhook boundary. Verification failures are answered with
// 401, decoding failures with 400 and dispatch failures with 500 so the provider redelivers.
var (
	ErrInvalidSignature     = errors.New("webhook.invalid_signature")
	ErrTimestampOutOfRange  = errors.New("webhook.timestamp_out_of_range")
	ErrInvalidPayload       = errors.New("webhook.invalid_payload")
	ErrInvalidConfiguration = errors.New("webhook.invalid_configuration")
	ErrPayloadTooLarge      = errors.New("webhook.payload_too_large")
	ErrDeduplicationFailed  = errors.New("webhook.deduplication_failed")
)
