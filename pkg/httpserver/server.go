package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/dmitrymomot/tenantkit/pkg/logger"
)

// Server runs an http.Server until its context is cancelled and then drains in-flight requests.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	listener net.Listener

	mu      sync.Mutex
	running bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithListener serves on l instead of listening on Config.Addr.
func WithListener(l net.Listener) Option {
	return func(s *Server) {
		s.listener = l
	}
}

// New creates a Server from cfg.
func New(cfg Config, opts ...Option) *Server {
	s := &Server{cfg: cfg.withDefaults(), logger: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("httpserver"))
	return s
}

// Run serves handler and blocks until ctx is cancelled or the listener fails. Requests in
// flight at cancellation get Config.ShutdownTimeout to complete. Their contexts are not
// derived from ctx, so cancellation alone does not abort them.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	if handler == nil {
		handler = http.NotFoundHandler()
	}

	ln := s.listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", s.cfg.Addr); err != nil {
			return errors.Join(ErrStart, err)
		}
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.InfoContext(ctx, "http server started", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Join(ErrStart, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.InfoContext(shutdownCtx, "http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("%w: %w", ErrShutdown, err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Join(ErrStart, err)
	}
	s.logger.InfoContext(shutdownCtx, "http server stopped")
	return nil
}
