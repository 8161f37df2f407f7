package logger

import (
	"log/slog"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// TenantID records the internal tenant identifier under the key "tenant_id".
func TenantID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("tenant_id", id)
}

// OrgID records the identity-provider organization reference under the key "org_id".
func OrgID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("org_id", id)
}

// UserID records the user identifier under the key "user_id".
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// Partition records a partition name under the key "partition". Partition names are server-side
// diagnostics only and never leave the process in responses.
func Partition(name string) slog.Attr {
	if name == "" {
		return slog.Attr{}
	}
	return slog.String("partition", name)
}

// Role records a role name under the key "role".
func Role(role any) slog.Attr {
	if role == nil {
		return slog.Attr{}
	}
	return slog.Any("role", role)
}

// RequestID records the request identifier under the key "request_id".
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// EventID records an upstream event identifier under the key "event_id".
func EventID(id string) slog.Attr {
	return slog.String("event_id", id)
}

// EventType records the event type under the key "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// ErrorCode records a machine-readable error code under the key "error_code".
func ErrorCode(code any) slog.Attr {
	return slog.Any("error_code", code)
}

// Attempt records the retry attempt under the key "attempt".
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
