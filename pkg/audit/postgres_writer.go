package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Copier is the bulk-load part of a pgx pool or connection.
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var entryColumns = []string{
	"id", "tenant_id", "actor_user_id", "action", "resource_type", "resource_id",
	"metadata", "occurred_at", "source_ip", "request_id",
}

// PostgresWriter bulk-inserts entries into public.audit_entries. The table lives in the shared
// registry, so entries survive the tenant's partition being dropped.
type PostgresWriter struct {
	db    Copier
	table pgx.Identifier
}

// NewPostgresWriter creates a writer over db.
func NewPostgresWriter(db Copier) *PostgresWriter {
	return &PostgresWriter{db: db, table: pgx.Identifier{"public", "audit_entries"}}
}

// WriteBatch copies entries in one round trip.
func (w *PostgresWriter) WriteBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		var meta []byte
		if len(e.Metadata) > 0 {
			b, err := json.Marshal(e.Metadata)
			if err != nil {
				return errors.Join(ErrWriteFailed, fmt.Errorf("entry %s metadata: %w", e.ID, err))
			}
			meta = b
		}
		rows = append(rows, []any{
			e.ID, e.TenantID, nullable(e.ActorUserID), e.Action, nullable(e.ResourceType),
			nullable(e.ResourceID), meta, e.OccurredAt, nullable(e.SourceIP), nullable(e.RequestID),
		})
	}

	n, err := w.db.CopyFrom(ctx, w.table, entryColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return errors.Join(ErrWriteFailed, err)
	}
	if n != int64(len(entries)) {
		return fmt.Errorf("%w: copied %d of %d entries", ErrWriteFailed, n, len(entries))
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
