package identity

import "time"

// Config holds the identity-provider settings.
type Config struct {
	JWTSecret        string        `env:"IDENTITY_JWT_SECRET,required"`
	Issuer           string        `env:"IDENTITY_ISSUER"`
	Audience         string        `env:"IDENTITY_AUDIENCE"`
	Leeway           time.Duration `env:"IDENTITY_LEEWAY" envDefault:"30s"`
	WebhookSecret    string        `env:"IDENTITY_WEBHOOK_SECRET,required"`
	WebhookTolerance time.Duration `env:"IDENTITY_WEBHOOK_TOLERANCE" envDefault:"3m"`
	// WebhookScheme is "workos" for direct deliveries or "hmac" for events relayed through a
	// gateway that re-signs them with X-Webhook-Signature.
	WebhookScheme string `env:"IDENTITY_WEBHOOK_SCHEME" envDefault:"workos"`
}
