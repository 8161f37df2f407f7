package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/dmitrymomot/tenantkit/pkg/logger"
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthHandler serves liveness when checks is empty and readiness otherwise. Every check runs
// with timeout; any failure answers 503 with the failing check names.
func HealthHandler(log *slog.Logger, timeout time.Duration, checks map[string]Check) http.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK

		if len(names) > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			resp.Checks = make(map[string]string, len(names))
			for _, name := range names {
				if err := checks[name](ctx); err != nil {
					log.ErrorContext(ctx, "readiness check failed", slog.String("check", name), logger.Error(err))
					resp.Checks[name] = "error"
					resp.Status = "unavailable"
					status = http.StatusServiceUnavailable
					continue
				}
				resp.Checks[name] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
