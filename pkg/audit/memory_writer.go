package audit

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryWriter keeps entries in memory. It is meant for tests and local development.
type MemoryWriter struct {
	mu      sync.Mutex
	entries []Entry
	err     error
	batches int
}

// NewMemoryWriter creates an empty MemoryWriter.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{}
}

// WriteBatch appends entries, or fails with the error set by FailWith.
func (w *MemoryWriter) WriteBatch(_ context.Context, entries []Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	for _, e := range entries {
		w.entries = append(w.entries, e.clone())
	}
	w.batches++
	return nil
}

// FailWith makes subsequent writes fail with err. A nil err restores normal operation.
func (w *MemoryWriter) FailWith(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
}

// Entries returns a copy of everything written.
func (w *MemoryWriter) Entries() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.entries)
}

// ForTenant returns the entries written for one tenant.
func (w *MemoryWriter) ForTenant(id uuid.UUID) []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []Entry
	for _, e := range w.entries {
		if e.TenantID == id {
			out = append(out, e)
		}
	}
	return out
}

// Batches returns the number of successful WriteBatch calls.
func (w *MemoryWriter) Batches() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.batches
}
