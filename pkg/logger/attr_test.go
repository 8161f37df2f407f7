package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantkit/pkg/logger"
)

func TestGroup(t *testing.T) {
	t.Parallel()
	attr := logger.Group("req", slog.String("id", "1"), slog.Int("n", 2))
	require.Equal(t, "req", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, "id", g[0].Key)
	assert.Equal(t, "n", g[1].Key)
}

func TestError(t *testing.T) {
	t.Parallel()
	err := errors.New("boom")
	attr := logger.Error(err)
	require.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())

	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
}

func TestIdentifierAttrs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		attr slog.Attr
		key  string
		want any
	}{
		{"user", logger.UserID("u1"), "user_id", "u1"},
		{"org", logger.OrgID("org_1"), "org_id", "org_1"},
		{"partition", logger.Partition("t_abc"), "partition", "t_abc"},
		{"request", logger.RequestID("abc"), "request_id", "abc"},
		{"role", logger.Role("admin"), "role", "admin"},
		{"event", logger.EventID("evt_1"), "event_id", "evt_1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.key, tt.attr.Key)
			assert.Equal(t, tt.want, tt.attr.Value.Any())
		})
	}
}

func TestEmptyIdentifiersAreDropped(t *testing.T) {
	t.Parallel()
	assert.True(t, logger.UserID("").Equal(slog.Attr{}))
	assert.True(t, logger.OrgID("").Equal(slog.Attr{}))
	assert.True(t, logger.Partition("").Equal(slog.Attr{}))
	assert.True(t, logger.RequestID("").Equal(slog.Attr{}))
	assert.True(t, logger.TenantID(nil).Equal(slog.Attr{}))
}

func TestDuration(t *testing.T) {
	t.Parallel()
	attr := logger.Duration(1500 * time.Millisecond)
	require.Equal(t, "duration", attr.Key)
	assert.Equal(t, 1500*time.Millisecond, attr.Value.Duration())
}
