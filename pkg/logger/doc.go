// Package logger builds context-aware slog loggers.
//
// New returns a *slog.Logger whose handler is wrapped by LogHandlerDecorator. The decorator
// runs every registered ContextExtractor on each record, so request-scoped values such as the
// request id, tenant id and acting user are attached without being threaded through call sites.
//
// Attribute helpers (TenantID, UserID, Partition, ErrorCode, and so on) keep key names
// consistent across packages. Helpers receiving an empty value return an empty slog.Attr, which
// slog drops.
//
// # Usage
//
//	log := logger.New(append(logger.FromConfig(cfg),
//		logger.WithContextExtractors(requestid.LoggerExtractor(), tenancy.LoggerExtractor()),
//	)...)
//
//	log.InfoContext(ctx, "tenant provisioned", logger.TenantID(t.ID), logger.Duration(d))
package logger
