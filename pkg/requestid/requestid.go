package requestid

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrymomot/tenantkit/pkg/logger"
)

// Header carries the request id in both directions.
const Header = "X-Request-ID"

const maxIDLength = 128

var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type contextKey struct{}

func WithContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKey{}, requestID)
}

// FromContext returns the request id, or "" outside a request.
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Middleware keeps a well-formed incoming X-Request-ID and generates one otherwise. The id is
// echoed in the response and attached to the active span.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if !valid(id) {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)

		ctx := WithContext(r.Context(), id)
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("http.request_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggerExtractor adds request_id to log records.
func LoggerExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id := FromContext(ctx); id != "" {
			return logger.RequestID(id), true
		}
		return slog.Attr{}, false
	}
}

func valid(id string) bool {
	return id != "" && len(id) <= maxIDLength && validID.MatchString(id)
}
