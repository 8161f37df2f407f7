// Command tenantd serves the multi-tenant API, the identity and billing webhooks and the
// deferred partition cleanup worker. It is configured entirely from the environment.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/tenantkit/internal/app"
	"github.com/dmitrymomot/tenantkit/pkg/config"
	"github.com/dmitrymomot/tenantkit/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load[app.Config]()
	if err != nil {
		slog.Error("failed to load configuration", logger.Error(err))
		return err
	}

	log := app.NewLogger(cfg.Log)
	slog.SetDefault(log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.ErrorContext(ctx, "failed to start", logger.Error(err))
		return err
	}

	log.InfoContext(ctx, "tenantd started", slog.String("addr", cfg.HTTP.Addr))
	if err := a.Run(ctx); err != nil {
		log.ErrorContext(ctx, "tenantd stopped with error", logger.Error(err))
		return err
	}
	log.InfoContext(context.WithoutCancel(ctx), "tenantd stopped")
	return nil
}
