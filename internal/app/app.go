package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/tenantkit/migrations"
	"github.com/dmitrymomot/tenantkit/pkg/apierr"
	"github.com/dmitrymomot/tenantkit/pkg/audit"
	"github.com/dmitrymomot/tenantkit/pkg/billing"
	"github.com/dmitrymomot/tenantkit/pkg/clientip"
	"github.com/dmitrymomot/tenantkit/pkg/gate"
	"github.com/dmitrymomot/tenantkit/pkg/httpserver"
	"github.com/dmitrymomot/tenantkit/pkg/identity"
	"github.com/dmitrymomot/tenantkit/pkg/lease"
	"github.com/dmitrymomot/tenantkit/pkg/lifecycle"
	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/partition"
	"github.com/dmitrymomot/tenantkit/pkg/pg"
	"github.com/dmitrymomot/tenantkit/pkg/plan"
	"github.com/dmitrymomot/tenantkit/pkg/redis"
	"github.com/dmitrymomot/tenantkit/pkg/requestid"
	"github.com/dmitrymomot/tenantkit/pkg/tenancy"
	"github.com/dmitrymomot/tenantkit/pkg/tenant"
	"github.com/dmitrymomot/tenantkit/pkg/webhook"
)

const drainTimeout = 10 * time.Second

// App is the composed tenantd service.
type App struct {
	cfg    Config
	logger *slog.Logger

	pool     *pgxpool.Pool
	redis    *goredis.Client
	cache    tenant.Cache
	recorder *audit.Recorder
	worker   *lifecycle.CleanupWorker
	server   *httpserver.Server
	handler  http.Handler

	Lifecycle *lifecycle.Service
}

// NewLogger builds the service logger. Records carry request, tenant and partition attributes
// whenever the context has them.
func NewLogger(cfg logger.Config) *slog.Logger {
	opts := append(logger.FromConfig(cfg), logger.WithContextExtractors(
		requestid.LoggerExtractor(),
		tenancy.LoggerExtractor(),
		tenancy.PartitionExtractor(),
	))
	return logger.New(opts...)
}

// New connects to the backing services, applies migrations and wires every component.
// Resources opened before a failure are closed before New returns.
func New(ctx context.Context, cfg Config, log *slog.Logger) (_ *App, err error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{cfg: cfg, logger: log}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	if a.pool, err = pg.Connect(ctx, cfg.Postgres); err != nil {
		return nil, err
	}
	if !cfg.SkipMigrate {
		if err = pg.Migrate(ctx, a.pool, migrations.FS, cfg.Postgres, log.With(logger.Component("migrate"))); err != nil {
			return nil, err
		}
	}
	if cfg.RedisEnabled {
		if a.redis, err = redis.Connect(ctx, cfg.Redis); err != nil {
			return nil, err
		}
	}

	catalog := plan.Default()
	if cfg.PlanCatalog != "" {
		if catalog, err = plan.Load(cfg.PlanCatalog); err != nil {
			return nil, err
		}
	}

	ips, err := clientip.New(cfg.ClientIP)
	if err != nil {
		return nil, err
	}
	authn, err := identity.NewAuthenticator(cfg.Identity)
	if err != nil {
		return nil, err
	}
	identityVerifier, err := identity.NewWebhookVerifier(cfg.Identity)
	if err != nil {
		return nil, err
	}
	billingVerifier, err := billing.NewWebhookVerifier(cfg.Billing)
	if err != nil {
		return nil, err
	}

	var dedup webhook.Deduplicator
	if a.redis != nil {
		a.cache = tenant.NewRedisCache(a.redis, "tenant:", cfg.Tenancy.CacheTTL, log)
		dedup = webhook.NewRedisDeduplicator(a.redis, "webhook:", cfg.WebhookDedup)
	} else {
		a.cache = tenant.NewMemoryCache(cfg.Tenancy.CacheSize, cfg.Tenancy.CacheTTL)
		dedup = webhook.NewMemoryDeduplicator(cfg.WebhookDedup)
	}

	a.recorder = audit.NewRecorder(audit.NewPostgresWriter(a.pool),
		audit.WithConfig(cfg.Audit),
		audit.WithLogger(log),
		audit.WithTenantExtractor(tenancy.TenantIDFromContext),
		audit.WithActorExtractor(tenancy.UserIDFromContext),
		audit.WithIPExtractor(nonEmpty(clientip.FromContext)),
		audit.WithRequestIDExtractor(nonEmpty(requestid.FromContext)),
	)

	leases := lease.NewManager(lease.NewPgxPool(a.pool),
		lease.WithAcquireTimeout(cfg.Tenancy.AcquireTimeout),
		lease.WithResetTimeout(cfg.Tenancy.ResetTimeout),
		lease.WithLogger(log),
	)
	stores := tenant.PostgresStoreFunc
	partitions, err := partition.NewProvisioner(partition.WithProvisionerLogger(log))
	if err != nil {
		return nil, err
	}
	scheduler := lifecycle.NewPostgresScheduler(a.pool)

	a.Lifecycle = lifecycle.New(leases, stores, partitions, catalog, scheduler,
		lifecycle.WithCache(a.cache),
		lifecycle.WithAuditor(a.recorder),
		lifecycle.WithConfig(cfg.Lifecycle),
		lifecycle.WithLogger(log),
	)
	a.worker = lifecycle.NewCleanupWorker(scheduler, leases, stores, partitions,
		lifecycle.WithWorkerConfig(cfg.Lifecycle),
		lifecycle.WithWorkerAuditor(a.recorder),
		lifecycle.WithWorkerLogger(log),
	)

	translator := apierr.NewTranslator(cfg.Links)
	errs := translator.Handler(log)
	resolver := tenant.NewResolver(stores,
		tenant.WithCache(a.cache),
		tenant.WithLoginTouchInterval(cfg.Tenancy.LoginTouchInterval),
		tenant.WithLogger(log),
	)
	counters := gate.NewRegistry().
		Register(tenant.ResourceProjects, gate.CountRows("projects")).
		Register(tenant.ResourceAPIKeys, gate.CountRows("api_keys"))

	checks := map[string]httpserver.Check{"postgres": pg.Healthcheck(a.pool)}
	if a.redis != nil {
		checks["redis"] = redis.Healthcheck(a.redis)
	}

	a.handler = NewRouter(Routes{
		Logger:       log,
		Errors:       errs,
		ClientIP:     ips,
		Authenticate: authn.Middleware(identity.WithLogger(log)),
		Scope: tenancy.Middleware(leases, resolver, partition.NewBinder(log),
			tenancy.WithErrorHandler(errs),
			tenancy.WithRequestTimeout(cfg.Tenancy.RequestTimeout),
			tenancy.WithLogger(log),
		),
		Gates:   gate.New(counters, gate.WithErrorHandler(errs), gate.WithLogger(log)),
		Stores:  stores,
		Auditor: a.recorder,

		IdentityWebhook: webhook.Handler("identity", identityVerifier, identity.DecodeEvent, dedup,
			identity.NewDispatcher(a.Lifecycle, log), webhook.WithLogger(log)),
		BillingWebhook: webhook.Handler("billing", billingVerifier, billing.DecodeEvent, dedup,
			billing.NewDispatcher(a.Lifecycle, log), webhook.WithLogger(log)),
		Health: httpserver.HealthHandler(log, cfg.HealthTimeout, checks),
	})
	a.server = httpserver.New(cfg.HTTP, httpserver.WithLogger(log))

	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run serves HTTP and runs the cleanup worker until ctx is cancelled, then drains the audit
// buffer and closes the backing connections.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Run(gctx, a.handler) })
	g.Go(func() error { return a.worker.Run(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	if cerr := a.close(drainCtx); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

func (a *App) close(ctx context.Context) error {
	var errs []error
	if a.recorder != nil {
		if err := a.recorder.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain audit recorder: %w", err))
		}
	}
	if c, ok := a.cache.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close tenant cache: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}

func nonEmpty(fn func(context.Context) string) audit.Extractor {
	return func(ctx context.Context) (string, bool) {
		v := fn(ctx)
		return v, v != ""
	}
}
