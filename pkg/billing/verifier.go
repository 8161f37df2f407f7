package billing

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/dmitrymomot/tenantkit/pkg/webhook"
)

// SignatureHeader carries the Paddle signature: "ts=<unix>;h1=<hex hmac>".
const SignatureHeader = "Paddle-Signature"

// Webhook signature schemes.
const (
	SchemePaddle = "paddle"
	SchemeHMAC   = "hmac"
)

// NewWebhookVerifier builds the verifier selected by cfg.WebhookScheme. An empty scheme means
// SchemePaddle.
func NewWebhookVerifier(cfg Config) (webhook.Verifier, error) {
	switch cfg.WebhookScheme {
	case "", SchemePaddle:
		v, err := NewPaddleVerifier(cfg.WebhookSecret, cfg.WebhookTolerance)
		if err != nil {
			return nil, err
		}
		return v, nil
	case SchemeHMAC:
		v, err := webhook.NewHMACVerifier(cfg.WebhookSecret, webhook.WithTolerance(cfg.WebhookTolerance))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSecret, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, cfg.WebhookScheme)
	}
}

// PaddleVerifier authenticates Paddle webhook deliveries.
type PaddleVerifier struct {
	verifier  *paddle.WebhookVerifier
	tolerance time.Duration
	now       func() time.Time
}

var _ webhook.Verifier = (*PaddleVerifier)(nil)

// NewPaddleVerifier creates a verifier for the notification destination secret. A positive
// tolerance rejects signatures older than it.
func NewPaddleVerifier(secret string, tolerance time.Duration) (*PaddleVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: webhook secret is required", ErrInvalidSecret)
	}
	return &PaddleVerifier{
		verifier:  paddle.NewWebhookVerifier(secret),
		tolerance: tolerance,
		now:       time.Now,
	}, nil
}

// Verify implements webhook.Verifier.
func (v *PaddleVerifier) Verify(r *http.Request, body []byte) error {
	header := r.Header.Get(SignatureHeader)
	if header == "" {
		return fmt.Errorf("%w: missing %s header", webhook.ErrInvalidSignature, SignatureHeader)
	}
	if err := v.checkAge(header); err != nil {
		return err
	}

	// The SDK reads the body itself; the handler has already drained it.
	r.Body = io.NopCloser(bytes.NewReader(body))
	ok, err := v.verifier.Verify(r)
	if err != nil {
		return fmt.Errorf("%w: %w", webhook.ErrInvalidSignature, err)
	}
	if !ok {
		return fmt.Errorf("%w: signature mismatch", webhook.ErrInvalidSignature)
	}
	return nil
}

func (v *PaddleVerifier) checkAge(header string) error {
	if v.tolerance <= 0 {
		return nil
	}
	for _, part := range strings.Split(header, ";") {
		key, value, _ := strings.Cut(strings.TrimSpace(part), "=")
		if key != "ts" {
			continue
		}
		ts, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: invalid timestamp format", webhook.ErrInvalidSignature)
		}
		if v.now().Sub(time.Unix(ts, 0)) > v.tolerance {
			return fmt.Errorf("%w: signature too old", webhook.ErrTimestampOutOfRange)
		}
		return nil
	}
	return fmt.Errorf("%w: signature timestamp missing", webhook.ErrInvalidSignature)
}
