package identity

import (
	"fmt"
	"net/http"
	"time"

	"github.com/workos/workos-go/v6/pkg/webhooks"

	"github.com/dmitrymomot/tenantkit/pkg/webhook"
)

// SignatureHeader carries the WorkOS webhook signature: "t=<unix ms>, v1=<hex hmac>".
const SignatureHeader = "WorkOS-Signature"

// Webhook signature schemes.
const (
	SchemeWorkOS = "workos"
	SchemeHMAC   = "hmac"
)

// NewWebhookVerifier builds the verifier selected by cfg.WebhookScheme. An empty scheme means
// SchemeWorkOS.
func NewWebhookVerifier(cfg Config) (webhook.Verifier, error) {
	switch cfg.WebhookScheme {
	case "", SchemeWorkOS:
		v, err := NewWorkOSVerifier(cfg.WebhookSecret, cfg.WebhookTolerance)
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

// WorkOSVerifier authenticates WorkOS webhook deliveries.
type WorkOSVerifier struct {
	client *webhooks.Client
}

var _ webhook.Verifier = (*WorkOSVerifier)(nil)

// NewWorkOSVerifier creates a verifier for secret. A positive tolerance overrides the SDK's
// default signature age limit.
func NewWorkOSVerifier(secret string, tolerance time.Duration) (*WorkOSVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: webhook secret is required", ErrInvalidSecret)
	}
	client := webhooks.NewClient(secret)
	if tolerance > 0 {
		client.SetTolerance(tolerance)
	}
	return &WorkOSVerifier{client: client}, nil
}

// Verify implements webhook.Verifier.
func (v *WorkOSVerifier) Verify(r *http.Request, body []byte) error {
	header := r.Header.Get(SignatureHeader)
	if header == "" {
		return fmt.Errorf("%w: missing %s header", webhook.ErrInvalidSignature, SignatureHeader)
	}
	if _, err := v.client.ValidatePayload(header, string(body)); err != nil {
		return fmt.Errorf("%w: %w", webhook.ErrInvalidSignature, err)
	}
	return nil
}
