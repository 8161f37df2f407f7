package requestid_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantkit/pkg/requestid"
)

func serve(header string) (ctxID, responseID string) {
	h := requestid.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = requestid.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		r.Header.Set(requestid.Header, header)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return ctxID, w.Header().Get(requestid.Header)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("keeps a valid incoming id", func(t *testing.T) {
		t.Parallel()
		ctxID, respID := serve("req_abc-123")
		assert.Equal(t, "req_abc-123", ctxID)
		assert.Equal(t, "req_abc-123", respID)
	})

	invalid := []string{
		"",
		"test@request#id",
		"test request id",
		"test/request/id",
		"<script>alert(1)</script>",
		strings.Repeat("a", 129),
	}
	for _, in := range invalid {
		t.Run("replaces "+in, func(t *testing.T) {
			t.Parallel()
			ctxID, respID := serve(in)
			require.NotEmpty(t, ctxID)
			assert.NotEqual(t, in, ctxID)
			assert.Equal(t, ctxID, respID)
			_, err := uuid.Parse(ctxID)
			assert.NoError(t, err)
		})
	}
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	assert.Empty(t, requestid.FromContext(context.Background()))
	ctx := requestid.WithContext(context.Background(), "abc")
	assert.Equal(t, "abc", requestid.FromContext(ctx))

	attr, ok := requestid.LoggerExtractor()(ctx)
	require.True(t, ok)
	assert.Equal(t, "request_id", attr.Key)
	assert.Equal(t, "abc", attr.Value.String())

	_, ok = requestid.LoggerExtractor()(context.Background())
	assert.False(t, ok)
}
