package lifecycle

import "time"

// Config controls deprovisioning grace and cleanup retries.
type Config struct {
	CleanupGrace    time.Duration `env:"LIFECYCLE_CLEANUP_GRACE" envDefault:"720h"`
	CleanupInterval time.Duration `env:"LIFECYCLE_CLEANUP_INTERVAL" envDefault:"1m"`
	CleanupBatch    int           `env:"LIFECYCLE_CLEANUP_BATCH" envDefault:"10"`
	DropAttempts    uint          `env:"LIFECYCLE_DROP_ATTEMPTS" envDefault:"3"`
	RetryBase       time.Duration `env:"LIFECYCLE_RETRY_BASE" envDefault:"1m"`
	RetryMax        time.Duration `env:"LIFECYCLE_RETRY_MAX" envDefault:"6h"`
	DefaultTier     string        `env:"LIFECYCLE_DEFAULT_TIER" envDefault:"starter"`
}

func (c Config) withDefaults() Config {
	if c.CleanupGrace < 0 {
		c.CleanupGrace = 0
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Minute
	}
	if c.CleanupBatch <= 0 {
		c.CleanupBatch = 10
	}
	if c.DropAttempts == 0 {
		c.DropAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Minute
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 6 * time.Hour
	}
	if c.DefaultTier == "" {
		c.DefaultTier = "starter"
	}
	return c
}
