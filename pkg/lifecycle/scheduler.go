package lifecycle

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CleanupJob is the deferred removal of a deleted tenant's partition.
type CleanupJob struct {
	TenantID  uuid.UUID
	Partition string
	RunAfter  time.Time
	Attempts  int
	LastError string
}

// Scheduler persists cleanup jobs. Schedule is idempotent per tenant.
type Scheduler interface {
	Schedule(ctx context.Context, job CleanupJob) error
	// Claim returns up to limit jobs due at now and hides them from other claimers until they
	// are completed or retried.
	Claim(ctx context.Context, now time.Time, limit int) ([]CleanupJob, error)
	Complete(ctx context.Context, tenantID uuid.UUID) error
	Retry(ctx context.Context, tenantID uuid.UUID, runAfter time.Time, lastErr string) error
}

// MemoryScheduler keeps jobs in memory.
type MemoryScheduler struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*memoryJob
	claimed time.Duration
}

type memoryJob struct {
	CleanupJob
	lockedUntil time.Time
	done        bool
}

// NewMemoryScheduler creates an empty MemoryScheduler.
func NewMemoryScheduler() *MemoryScheduler {
	return &MemoryScheduler{jobs: make(map[uuid.UUID]*memoryJob), claimed: 10 * time.Minute}
}

func (s *MemoryScheduler) Schedule(_ context.Context, job CleanupJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.TenantID]; ok {
		return nil
	}
	s.jobs[job.TenantID] = &memoryJob{CleanupJob: job}
	return nil
}

func (s *MemoryScheduler) Claim(_ context.Context, now time.Time, limit int) ([]CleanupJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*memoryJob
	for _, j := range s.jobs {
		if !j.done && !j.RunAfter.After(now) && !j.lockedUntil.After(now) {
			due = append(due, j)
		}
	}
	slices.SortFunc(due, func(a, b *memoryJob) int { return a.RunAfter.Compare(b.RunAfter) })
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]CleanupJob, 0, len(due))
	for _, j := range due {
		j.lockedUntil = now.Add(s.claimed)
		out = append(out, j.CleanupJob)
	}
	return out, nil
}

func (s *MemoryScheduler) Complete(_ context.Context, tenantID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[tenantID]
	if !ok {
		return ErrJobNotFound
	}
	j.done = true
	return nil
}

func (s *MemoryScheduler) Retry(_ context.Context, tenantID uuid.UUID, runAfter time.Time, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[tenantID]
	if !ok {
		return ErrJobNotFound
	}
	j.Attempts++
	j.LastError = lastErr
	j.RunAfter = runAfter
	j.lockedUntil = time.Time{}
	return nil
}

// Job returns the stored state of a tenant's job.
func (s *MemoryScheduler) Job(tenantID uuid.UUID) (CleanupJob, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[tenantID]
	if !ok {
		return CleanupJob{}, false, false
	}
	return j.CleanupJob, j.done, true
}
