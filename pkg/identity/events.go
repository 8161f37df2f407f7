package identity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrymomot/tenantkit/pkg/webhook"
)

// Event types handled by the Dispatcher.
const (
	EventOrganizationCreated = "organization.created"
	EventOrganizationUpdated = "organization.updated"
	EventOrganizationDeleted = "organization.deleted"
	EventMembershipCreated   = "organization_membership.created"
	EventMembershipUpdated   = "organization_membership.updated"
	EventMembershipDeleted   = "organization_membership.deleted"
	EventUserCreated         = "user.created"
	EventUserUpdated         = "user.updated"
	EventUserDeleted         = "user.deleted"
)

type envelope struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

// Organization is the data of organization.* events.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Membership is the data of organization_membership.* events.
type Membership struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Status         string `json:"status"`
	Role           struct {
		Slug string `json:"slug"`
	} `json:"role"`
}

// Active reports whether the membership grants access. An empty status counts as active.
func (m Membership) Active() bool {
	return m.Status == "" || m.Status == "active"
}

// User is the data of user.* events.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// DecodeEvent parses a WorkOS event envelope {id, event, data}.
func DecodeEvent(body []byte) (webhook.Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return webhook.Event{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if env.ID == "" || env.Event == "" {
		return webhook.Event{}, fmt.Errorf("%w: id and event are required", ErrInvalidEvent)
	}
	return webhook.Event{ID: env.ID, Type: env.Event, OccurredAt: env.CreatedAt, Data: env.Data}, nil
}
