package app

import (
	"time"

	"github.com/dmitrymomot/tenantkit/pkg/apierr"
	"github.com/dmitrymomot/tenantkit/pkg/audit"
	"github.com/dmitrymomot/tenantkit/pkg/billing"
	"github.com/dmitrymomot/tenantkit/pkg/clientip"
	"github.com/dmitrymomot/tenantkit/pkg/httpserver"
	"github.com/dmitrymomot/tenantkit/pkg/identity"
	"github.com/dmitrymomot/tenantkit/pkg/lifecycle"
	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/pg"
	"github.com/dmitrymomot/tenantkit/pkg/redis"
	"github.com/dmitrymomot/tenantkit/pkg/tenancy"
)

// Config is the full service configuration. Each component keeps its own variable names; the
// whole set can be namespaced with config.WithPrefix.
type Config struct {
	Log       logger.Config
	Postgres  pg.Config
	Redis     redis.Config
	HTTP      httpserver.Config
	Tenancy   tenancy.Config
	Lifecycle lifecycle.Config
	Audit     audit.Config
	Identity  identity.Config
	Billing   billing.Config
	Links     apierr.Links
	ClientIP  clientip.Config

	// RedisEnabled backs the tenant cache and webhook deduplication with redis. Without it both
	// are process-local, which is only correct for a single instance.
	RedisEnabled  bool          `env:"REDIS_ENABLED" envDefault:"true"`
	PlanCatalog   string        `env:"PLAN_CATALOG_FILE"`
	HealthTimeout time.Duration `env:"HEALTH_TIMEOUT" envDefault:"2s"`
	WebhookDedup  time.Duration `env:"WEBHOOK_DEDUP_TTL" envDefault:"72h"`
	SkipMigrate   bool          `env:"SKIP_MIGRATIONS" envDefault:"false"`
}
