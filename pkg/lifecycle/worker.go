package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/dmitrymomot/tenantkit/pkg/audit"
	"github.com/dmitrymomot/tenantkit/pkg/lease"
	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

// CleanupWorker drops the partitions of deleted tenants once their grace period has passed.
// It runs off the request path.
type CleanupWorker struct {
	scheduler  Scheduler
	leases     Leaser
	stores     tenant.StoreFunc
	partitions Partitions
	auditor    Auditor
	cfg        Config
	now        func() time.Time
	logger     *slog.Logger
}

// WorkerOption configures a CleanupWorker.
type WorkerOption func(*CleanupWorker)

func WithWorkerConfig(cfg Config) WorkerOption {
	return func(w *CleanupWorker) {
		w.cfg = cfg
	}
}

func WithWorkerClock(now func() time.Time) WorkerOption {
	return func(w *CleanupWorker) {
		if now != nil {
			w.now = now
		}
	}
}

func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *CleanupWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

func WithWorkerAuditor(a Auditor) WorkerOption {
	return func(w *CleanupWorker) {
		if a != nil {
			w.auditor = a
		}
	}
}

// NewCleanupWorker creates a CleanupWorker.
func NewCleanupWorker(scheduler Scheduler, leases Leaser, stores tenant.StoreFunc, partitions Partitions, opts ...WorkerOption) *CleanupWorker {
	w := &CleanupWorker{
		scheduler:  scheduler,
		leases:     leases,
		stores:     stores,
		partitions: partitions,
		auditor:    noopAuditor{},
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.cfg = w.cfg.withDefaults()
	w.logger = w.logger.With(logger.Component("cleanup_worker"))
	return w
}

// Run polls for due jobs until ctx is cancelled.
func (w *CleanupWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.CleanupInterval)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "cleanup worker started", slog.Duration("interval", w.cfg.CleanupInterval))
	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "cleanup pass failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			w.logger.InfoContext(context.WithoutCancel(ctx), "cleanup worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce processes one batch of due jobs and returns how many partitions were dropped.
func (w *CleanupWorker) RunOnce(ctx context.Context) (int, error) {
	jobs, err := w.scheduler.Claim(ctx, w.now().UTC(), w.cfg.CleanupBatch)
	if err != nil {
		return 0, fmt.Errorf("claim cleanup jobs: %w", err)
	}

	purged := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			return purged, ctx.Err()
		}
		dropped, err := w.process(ctx, job)
		if err != nil {
			w.reschedule(ctx, job, err)
			continue
		}
		if err := w.scheduler.Complete(ctx, job.TenantID); err != nil {
			w.logger.ErrorContext(ctx, "failed to complete cleanup job",
				logger.TenantID(job.TenantID.String()), logger.Error(err))
			continue
		}
		if dropped {
			purged++
			w.auditor.Record(ctx, "tenant.purged",
				audit.WithTenant(job.TenantID), audit.WithActor("system"),
				audit.WithResource("partition", job.Partition))
		}
	}
	return purged, nil
}

// process drops the partition of a deleted tenant. A tenant that is no longer deleted keeps its
// partition and the job is completed without dropping anything.
func (w *CleanupWorker) process(ctx context.Context, job CleanupJob) (bool, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	return backoff.Retry(ctx, func() (bool, error) {
		var dropped bool
		err := w.leases.With(ctx, func(ctx context.Context, l *lease.Lease) error {
			store := w.stores(l)
			t, err := store.TenantByID(ctx, job.TenantID)
			switch {
			case errors.Is(err, tenant.ErrTenantNotFound):
				return w.partitions.Drop(ctx, l, job.Partition)
			case err != nil:
				return err
			case !t.IsDeleted():
				w.logger.WarnContext(ctx, "tenant no longer deleted, keeping partition",
					logger.TenantID(t.ID.String()))
				return nil
			case t.PartitionName != job.Partition:
				return backoff.Permanent(fmt.Errorf("%w: job partition does not match tenant", ErrCleanupFailed))
			}

			if err := w.partitions.Drop(ctx, l, job.Partition); err != nil {
				return err
			}
			if err := store.MarkPurged(ctx, t.ID, w.now().UTC()); err != nil {
				return err
			}
			dropped = true
			return nil
		})
		return dropped, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(w.cfg.DropAttempts))
}

func (w *CleanupWorker) reschedule(ctx context.Context, job CleanupJob, cause error) {
	delay := w.cfg.RetryBase << min(job.Attempts, 16)
	if delay <= 0 || delay > w.cfg.RetryMax {
		delay = w.cfg.RetryMax
	}
	runAfter := w.now().UTC().Add(delay)

	w.logger.ErrorContext(ctx, "partition cleanup failed",
		logger.TenantID(job.TenantID.String()), logger.Partition(job.Partition),
		logger.Attempt(job.Attempts+1), slog.Time("retry_at", runAfter), logger.Error(cause))

	if err := w.scheduler.Retry(ctx, job.TenantID, runAfter, cause.Error()); err != nil {
		w.logger.ErrorContext(ctx, "failed to reschedule cleanup job",
			logger.TenantID(job.TenantID.String()), logger.Error(err))
	}
}
