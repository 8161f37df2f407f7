package partition

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/dmitrymomot/tenantkit/pkg/lease"
	"github.com/dmitrymomot/tenantkit/pkg/logger"
)

var tracer = otel.Tracer("github.com/dmitrymomot/tenantkit/pkg/partition")

// Binder applies a tenant's partition to a leased connection.
type Binder struct {
	logger *slog.Logger
}

// NewBinder creates a Binder. A nil logger falls back to slog.Default.
func NewBinder(log *slog.Logger) *Binder {
	if log == nil {
		log = slog.Default()
	}
	return &Binder{logger: log.With(logger.Component("partition"))}
}

// Bind points l at partition name. The binding is connection-scoped: it only affects queries
// issued through l. On any failure the lease is discarded, since the connection's session
// state can no longer be trusted, and ErrBindFailed is returned.
func (b *Binder) Bind(ctx context.Context, l *lease.Lease, name string) error {
	ctx, span := tracer.Start(ctx, "partition.Bind")
	defer span.End()

	path, err := SearchPath(name)
	if err != nil {
		l.Discard()
		span.SetStatus(codes.Error, "invalid partition name")
		b.logger.ErrorContext(ctx, "refusing to bind invalid partition name", logger.Error(err))
		return fmt.Errorf("%w: %w", ErrBindFailed, err)
	}

	if err := l.SetSearchPath(ctx, path); err != nil {
		l.Discard()
		span.SetStatus(codes.Error, "bind failed")
		b.logger.ErrorContext(ctx, "failed to bind partition",
			logger.Partition(name), logger.Error(err))
		return fmt.Errorf("%w: %w", ErrBindFailed, err)
	}

	return nil
}
