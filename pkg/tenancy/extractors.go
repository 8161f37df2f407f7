package tenancy

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/tenantkit/pkg/logger"
)

// LoggerExtractor adds tenant_id and user_id to log records emitted under a Scope.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		s, ok := FromContext(ctx)
		if !ok {
			return slog.Attr{}, false
		}
		return logger.Group("tenancy",
			logger.TenantID(s.TenantID().String()),
			logger.UserID(s.UserID()),
		), true
	}
}

// PartitionExtractor adds the bound partition to log records emitted under a Scope.
func PartitionExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		s, ok := FromContext(ctx)
		if !ok {
			return slog.Attr{}, false
		}
		return logger.Partition(s.Partition()), true
	}
}
