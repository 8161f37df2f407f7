package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/webhook"
)

type payload struct {
	ID    string          `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func decode(body []byte) (webhook.Event, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return webhook.Event{}, err
	}
	return webhook.Event{ID: p.ID, Type: p.Event, Data: p.Data}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []webhook.Event
	fail   error
}

func (r *recorder) Dispatch(_ context.Context, e webhook.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) setFail(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newHandler(t *testing.T, dispatch webhook.Dispatcher, opts ...webhook.HandlerOption) http.Handler {
	t.Helper()
	v, err := webhook.NewHMACVerifier(secret)
	require.NoError(t, err)
	opts = append(opts, webhook.WithLogger(logger.Discard()))
	return webhook.Handler("identity", v, decode, webhook.NewMemoryDeduplicator(time.Hour), dispatch, opts...)
}

func post(h http.Handler, body string, sign bool) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "/webhooks/identity", strings.NewReader(body))
	if sign {
		headers, _ := webhook.SignPayload(secret, []byte(body), time.Now())
		headers.Apply(r.Header)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		ErrorCode string `json:"errorCode"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.ErrorCode
}

func TestHandlerDispatchesOnce(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	h := newHandler(t, rec)
	body := `{"id":"evt_1","event":"organization.created","data":{"id":"org_1"}}`

	w := post(h, body, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = post(h, body, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"duplicate"}`, w.Body.String())

	require.Equal(t, 1, rec.count())
	assert.Equal(t, "organization.created", rec.events[0].Type)
	assert.JSONEq(t, `{"id":"org_1"}`, string(rec.events[0].Data))
}

func TestHandlerRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		sign     bool
		wantCode int
		wantErr  string
	}{
		{name: "unsigned", body: `{"id":"evt_1","event":"x"}`, wantCode: http.StatusUnauthorized, wantErr: "INVALID_SIGNATURE"},
		{name: "malformed json", body: `{"id":`, sign: true, wantCode: http.StatusBadRequest, wantErr: "INVALID_REQUEST"},
		{name: "missing event id", body: `{"event":"x"}`, sign: true, wantCode: http.StatusBadRequest, wantErr: "INVALID_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := &recorder{}
			w := post(newHandler(t, rec), tt.body, tt.sign)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, errorCode(t, w))
			assert.Zero(t, rec.count())
		})
	}
}

func TestHandlerBodyLimit(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	h := newHandler(t, rec, webhook.WithMaxBodySize(16))
	w := post(h, `{"id":"evt_1","event":"organization.created"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, rec.count())
}

func TestHandlerDispatchFailureAllowsRedelivery(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	rec.setFail(errors.New("database unavailable"))
	h := newHandler(t, rec)
	body := `{"id":"evt_7","event":"organization.deleted"}`

	w := post(h, body, true)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL", errorCode(t, w))
	assert.NotContains(t, w.Body.String(), "database unavailable")

	rec.setFail(nil)
	w = post(h, body, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, rec.count())
}

func TestHandlerWithoutDeduplicator(t *testing.T) {
	t.Parallel()

	v := webhook.VerifierFunc(func(*http.Request, []byte) error { return nil })
	var n int
	h := webhook.Handler("billing", v, decode, nil, webhook.DispatcherFunc(func(context.Context, webhook.Event) error {
		n++
		return nil
	}), webhook.WithLogger(logger.Discard()))

	post(h, `{"id":"evt_1"}`, false)
	post(h, `{"id":"evt_1"}`, false)
	assert.Equal(t, 2, n)
}
