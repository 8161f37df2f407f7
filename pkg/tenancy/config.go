package tenancy

import "time"

// Config holds the request pipeline settings.
type Config struct {
	AcquireTimeout     time.Duration `env:"TENANCY_ACQUIRE_TIMEOUT" envDefault:"5s"`
	ResetTimeout       time.Duration `env:"TENANCY_RESET_TIMEOUT" envDefault:"2s"`
	RequestTimeout     time.Duration `env:"TENANCY_REQUEST_TIMEOUT" envDefault:"30s"`
	LoginTouchInterval time.Duration `env:"TENANCY_LOGIN_TOUCH_INTERVAL" envDefault:"15m"`
	CacheTTL           time.Duration `env:"TENANCY_CACHE_TTL" envDefault:"30s"`
	CacheSize          int           `env:"TENANCY_CACHE_SIZE" envDefault:"10000"`
}
