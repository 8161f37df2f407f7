package billing

import "time"

// Config holds the billing-provider settings.
type Config struct {
	WebhookSecret    string        `env:"BILLING_WEBHOOK_SECRET,required"`
	WebhookTolerance time.Duration `env:"BILLING_WEBHOOK_TOLERANCE" envDefault:"5m"`
	// WebhookScheme is "paddle" or "hmac" (X-Webhook-Signature, for relayed deliveries).
	WebhookScheme string `env:"BILLING_WEBHOOK_SCHEME" envDefault:"paddle"`
}
