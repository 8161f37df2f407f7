package audit

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Entry is one immutable audit record. Entries are only ever appended.
type Entry struct {
	ID           uuid.UUID      `json:"id"`
	TenantID     uuid.UUID      `json:"tenant_id"`
	ActorUserID  string         `json:"actor_user_id,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
	SourceIP     string         `json:"source_ip,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
}

// Validate checks the fields every entry must carry.
func (e *Entry) Validate() error {
	if e.Action == "" {
		return fmt.Errorf("%w: action is required", ErrInvalidEntry)
	}
	if e.TenantID == uuid.Nil {
		return fmt.Errorf("%w: tenant is required", ErrInvalidEntry)
	}
	return nil
}

func (e Entry) clone() Entry {
	e.Metadata = maps.Clone(e.Metadata)
	return e
}

// EntryOption fills in an Entry during Record.
type EntryOption func(*Entry)

// WithResource sets the resource type and ID.
func WithResource(resourceType, id string) EntryOption {
	return func(e *Entry) {
		e.ResourceType = resourceType
		e.ResourceID = id
	}
}

// WithMetadata adds a metadata key.
func WithMetadata(key string, value any) EntryOption {
	return func(e *Entry) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		e.Metadata[key] = value
	}
}

// WithTenant sets the tenant explicitly, for entries recorded outside a request scope.
func WithTenant(id uuid.UUID) EntryOption {
	return func(e *Entry) {
		e.TenantID = id
	}
}

// WithActor sets the acting user explicitly.
func WithActor(userID string) EntryOption {
	return func(e *Entry) {
		e.ActorUserID = userID
	}
}
