package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/tenantkit/pkg/apierr"
	"github.com/dmitrymomot/tenantkit/pkg/logger"
)

// DefaultMaxBodySize bounds the request body read by Handler.
const DefaultMaxBodySize int64 = 1 << 20

// Event is a decoded provider event. Data holds the provider-specific payload.
type Event struct {
	ID         string
	Type       string
	OccurredAt time.Time
	Data       json.RawMessage
}

// Decoder parses a verified request body into an Event.
type Decoder func(body []byte) (Event, error)

// Dispatcher applies an event. A returned error makes the provider redeliver it.
type Dispatcher interface {
	Dispatch(ctx context.Context, e Event) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, e Event) error

func (f DispatcherFunc) Dispatch(ctx context.Context, e Event) error { return f(ctx, e) }

type handlerOptions struct {
	maxBodySize int64
	logger      *slog.Logger
}

// HandlerOption configures Handler.
type HandlerOption func(*handlerOptions)

// WithMaxBodySize sets the largest accepted body.
func WithMaxBodySize(n int64) HandlerOption {
	return func(o *handlerOptions) {
		if n > 0 {
			o.maxBodySize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(o *handlerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

type ack struct {
	Status string `json:"status"`
}

// Handler receives events from one provider. Each event is verified, decoded, claimed for
// deduplication and dispatched. Redelivered events are acknowledged without being applied
// again. dedup may be nil.
func Handler(source string, verifier Verifier, decode Decoder, dedup Deduplicator, dispatch Dispatcher, opts ...HandlerOption) http.Handler {
	o := &handlerOptions{maxBodySize: DefaultMaxBodySize, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	log := o.logger.With(logger.Component("webhook"), slog.String("source", source))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, o.maxBodySize))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				err = ErrPayloadTooLarge
			}
			log.WarnContext(ctx, "unreadable webhook body", logger.Error(err))
			apierr.Write(w, apierr.New(http.StatusBadRequest, apierr.CodeInvalidRequest, "The request body could not be read."))
			return
		}

		if err := verifier.Verify(r, body); err != nil {
			log.WarnContext(ctx, "webhook signature rejected", logger.Error(err))
			apierr.Write(w, apierr.New(http.StatusUnauthorized, apierr.CodeInvalidSignature, "The webhook signature is invalid."))
			return
		}

		event, err := decode(body)
		if err == nil && event.ID == "" {
			err = errors.New("event id is missing")
		}
		if err != nil {
			log.WarnContext(ctx, "undecodable webhook payload", logger.Error(err))
			apierr.Write(w, apierr.New(http.StatusBadRequest, apierr.CodeInvalidRequest, "The webhook payload is malformed.").
				WithCause(errors.Join(ErrInvalidPayload, err)))
			return
		}
		log := log.With(logger.EventID(event.ID), logger.EventType(event.Type))

		if dedup != nil {
			fresh, err := dedup.Claim(ctx, source, event.ID)
			if err != nil {
				log.ErrorContext(ctx, "webhook deduplication failed", logger.Error(err))
				apierr.Write(w, apierr.New(http.StatusInternalServerError, apierr.CodeInternal, "An internal error occurred."))
				return
			}
			if !fresh {
				log.InfoContext(ctx, "duplicate webhook ignored")
				writeAck(w, "duplicate")
				return
			}
		}

		if err := dispatch.Dispatch(ctx, event); err != nil {
			log.ErrorContext(ctx, "webhook dispatch failed", logger.Error(err))
			if dedup != nil {
				if ferr := dedup.Forget(context.WithoutCancel(ctx), source, event.ID); ferr != nil {
					log.ErrorContext(ctx, "failed to release webhook claim", logger.Error(ferr))
				}
			}
			apierr.Write(w, apierr.New(http.StatusInternalServerError, apierr.CodeInternal, "An internal error occurred."))
			return
		}

		log.DebugContext(ctx, "webhook processed")
		writeAck(w, "ok")
	})
}

func writeAck(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(ack{Status: status})
}
