package identity_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantkit/pkg/identity"
	"github.com/dmitrymomot/tenantkit/pkg/webhook"
)

const webhookSecret = "wos_webhook_secret"

func workosSignature(secret string, at time.Time, body string) string {
	ts := strconv.FormatInt(at.UnixMilli(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + body))
	return fmt.Sprintf("t=%s, v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestWorkOSVerifier(t *testing.T) {
	t.Parallel()

	v, err := identity.NewWorkOSVerifier(webhookSecret, time.Minute)
	require.NoError(t, err)
	body := `{"id":"event_01","event":"organization.created","data":{"id":"org_1","name":"Acme"}}`

	tests := []struct {
		name   string
		header string
		body   string
		ok     bool
	}{
		{"valid", workosSignature(webhookSecret, time.Now(), body), body, true},
		{"tampered body", workosSignature(webhookSecret, time.Now(), body), strings.Replace(body, "Acme", "Evil", 1), false},
		{"wrong secret", workosSignature("other", time.Now(), body), body, false},
		{"stale", workosSignature(webhookSecret, time.Now().Add(-10*time.Minute), body), body, false},
		{"missing", "", body, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodPost, "/webhooks/identity", nil)
			if tt.header != "" {
				r.Header.Set(identity.SignatureHeader, tt.header)
			}
			err := v.Verify(r, []byte(tt.body))
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, webhook.ErrInvalidSignature)
		})
	}

	_, err = identity.NewWorkOSVerifier("", 0)
	assert.ErrorIs(t, err, identity.ErrInvalidSecret)
}

func TestDecodeEvent(t *testing.T) {
	t.Parallel()

	e, err := identity.DecodeEvent([]byte(`{"id":"event_01","event":"user.deleted","data":{"id":"user_1"},"created_at":"2026-04-01T10:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "event_01", e.ID)
	assert.Equal(t, identity.EventUserDeleted, e.Type)
	assert.JSONEq(t, `{"id":"user_1"}`, string(e.Data))
	assert.Equal(t, time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC), e.OccurredAt.UTC())

	for _, body := range []string{`{`, `{"event":"user.deleted"}`, `{"id":"event_01"}`} {
		_, err := identity.DecodeEvent([]byte(body))
		assert.ErrorIs(t, err, identity.ErrInvalidEvent, body)
	}
}

func TestNewWebhookVerifier(t *testing.T) {
	t.Parallel()

	t.Run("workos by default", func(t *testing.T) {
		t.Parallel()
		v, err := identity.NewWebhookVerifier(identity.Config{WebhookSecret: webhookSecret})
		require.NoError(t, err)
		assert.IsType(t, &identity.WorkOSVerifier{}, v)
	})

	t.Run("hmac accepts relayed deliveries", func(t *testing.T) {
		t.Parallel()
		v, err := identity.NewWebhookVerifier(identity.Config{
			WebhookSecret:    webhookSecret,
			WebhookTolerance: time.Minute,
			WebhookScheme:    identity.SchemeHMAC,
		})
		require.NoError(t, err)

		body := []byte(`{"id":"event_01","event":"organization.created","data":{"id":"org_1"}}`)
		headers, err := webhook.SignPayload(webhookSecret, body, time.Now())
		require.NoError(t, err)

		r := httptest.NewRequest(http.MethodPost, "/webhooks/identity", nil)
		headers.Apply(r.Header)
		assert.NoError(t, v.Verify(r, body))

		r.Header.Set(identity.SignatureHeader, workosSignature(webhookSecret, time.Now(), string(body)))
		r.Header.Del(webhook.SignatureHeader)
		assert.ErrorIs(t, v.Verify(r, body), webhook.ErrInvalidSignature)
	})

	t.Run("hmac requires secret", func(t *testing.T) {
		t.Parallel()
		_, err := identity.NewWebhookVerifier(identity.Config{WebhookScheme: identity.SchemeHMAC})
		assert.ErrorIs(t, err, identity.ErrInvalidSecret)
	})

	t.Run("unknown scheme", func(t *testing.T) {
		t.Parallel()
		_, err := identity.NewWebhookVerifier(identity.Config{WebhookSecret: webhookSecret, WebhookScheme: "svix"})
		assert.ErrorIs(t, err, identity.ErrUnknownScheme)
	})
}
