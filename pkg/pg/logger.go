package pg

import (
	"context"
	"fmt"
	"strings"
)

// migrationLogger receives registry migration progress. *slog.Logger satisfies it.
type migrationLogger interface {
	InfoContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// gooseLogger routes goose output into the service log under the Migrate context, so records
// carry the same attributes as the rest of startup.
type gooseLogger struct {
	log migrationLogger
	ctx context.Context
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.log.ErrorContext(g.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.log.InfoContext(g.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)))
}
