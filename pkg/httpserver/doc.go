// Package httpserver runs an http.Server under a context.
//
//	srv := httpserver.New(cfg, httpserver.WithLogger(log))
//	r.Get("/healthz", httpserver.HealthHandler(log, time.Second, map[string]httpserver.Check{
//		"postgres": pg.Healthcheck(pool),
//		"redis":    redis.Healthcheck(rdb),
//	}))
//	err := srv.Run(ctx, r)
//
// Run returns nil after a graceful shutdown. Listen failures wrap ErrStart and a shutdown that
// exceeds Config.ShutdownTimeout wraps ErrShutdown. Signal handling belongs to the caller.
package httpserver
