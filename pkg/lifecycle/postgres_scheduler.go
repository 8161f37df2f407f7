package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/tenantkit/pkg/pg"
)

// PostgresScheduler stores jobs in public.tenant_cleanup_jobs. Claims use FOR UPDATE SKIP
// LOCKED, so several workers can poll the same table.
type PostgresScheduler struct {
	db      pg.Querier
	visible time.Duration
}

// NewPostgresScheduler creates a scheduler on db, normally the shared pool.
func NewPostgresScheduler(db pg.Querier) *PostgresScheduler {
	return &PostgresScheduler{db: db, visible: 10 * time.Minute}
}

const scheduleJob = `
INSERT INTO public.tenant_cleanup_jobs (tenant_id, partition_name, run_after)
VALUES ($1, $2, $3)
ON CONFLICT (tenant_id) DO NOTHING`

func (s *PostgresScheduler) Schedule(ctx context.Context, job CleanupJob) error {
	_, err := s.db.Exec(ctx, scheduleJob, job.TenantID, job.Partition, job.RunAfter)
	return err
}

const claimJobs = `
UPDATE public.tenant_cleanup_jobs AS j
SET locked_until = $1::timestamptz + $3::interval
WHERE j.tenant_id IN (
	SELECT tenant_id FROM public.tenant_cleanup_jobs
	WHERE completed_at IS NULL
	  AND run_after <= $1
	  AND (locked_until IS NULL OR locked_until <= $1)
	ORDER BY run_after
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
RETURNING j.tenant_id, j.partition_name, j.run_after, j.attempts, COALESCE(j.last_error, '')`

func (s *PostgresScheduler) Claim(ctx context.Context, now time.Time, limit int) ([]CleanupJob, error) {
	rows, err := s.db.Query(ctx, claimJobs, now, limit, s.visible)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (CleanupJob, error) {
		var j CleanupJob
		err := row.Scan(&j.TenantID, &j.Partition, &j.RunAfter, &j.Attempts, &j.LastError)
		return j, err
	})
}

const completeJob = `
UPDATE public.tenant_cleanup_jobs
SET completed_at = now(), locked_until = NULL
WHERE tenant_id = $1`

func (s *PostgresScheduler) Complete(ctx context.Context, tenantID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, completeJob, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

const retryJob = `
UPDATE public.tenant_cleanup_jobs
SET attempts = attempts + 1, last_error = $2, run_after = $3, locked_until = NULL
WHERE tenant_id = $1`

func (s *PostgresScheduler) Retry(ctx context.Context, tenantID uuid.UUID, runAfter time.Time, lastErr string) error {
	tag, err := s.db.Exec(ctx, retryJob, tenantID, lastErr, runAfter)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}
