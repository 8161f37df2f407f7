package billing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrymomot/tenantkit/pkg/tenant"
	"github.com/dmitrymomot/tenantkit/pkg/webhook"
)

// Subscription event types handled by the Dispatcher.
const (
	EventSubscriptionCreated   = "subscription.created"
	EventSubscriptionUpdated   = "subscription.updated"
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionTrialing  = "subscription.trialing"
	EventSubscriptionPastDue   = "subscription.past_due"
	EventSubscriptionPaused    = "subscription.paused"
	EventSubscriptionResumed   = "subscription.resumed"
	EventSubscriptionCanceled  = "subscription.canceled"
)

type envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// Subscription is the data of subscription.* events.
type Subscription struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	CustomData struct {
		OrgID string `json:"org_id"`
		Tier  string `json:"tier"`
	} `json:"custom_data"`
	CurrentBillingPeriod *struct {
		StartsAt time.Time `json:"starts_at"`
		EndsAt   time.Time `json:"ends_at"`
	} `json:"current_billing_period"`
}

// TrialEndsAt returns the end of the current period of a trialing subscription.
func (s Subscription) TrialEndsAt() *time.Time {
	if s.Status != "trialing" || s.CurrentBillingPeriod == nil || s.CurrentBillingPeriod.EndsAt.IsZero() {
		return nil
	}
	t := s.CurrentBillingPeriod.EndsAt.UTC()
	return &t
}

// DecodeEvent parses a Paddle notification {event_id, event_type, occurred_at, data}.
func DecodeEvent(body []byte) (webhook.Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return webhook.Event{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if env.EventID == "" || env.EventType == "" {
		return webhook.Event{}, fmt.Errorf("%w: event_id and event_type are required", ErrInvalidEvent)
	}
	return webhook.Event{ID: env.EventID, Type: env.EventType, OccurredAt: env.OccurredAt, Data: env.Data}, nil
}

// MapStatus maps a Paddle subscription status onto a tenant status.
func MapStatus(status string) (tenant.Status, error) {
	switch strings.ToLower(status) {
	case "active":
		return tenant.StatusActive, nil
	case "trialing":
		return tenant.StatusTrialing, nil
	case "past_due":
		return tenant.StatusPastDue, nil
	case "paused":
		return tenant.StatusSuspended, nil
	case "canceled", "cancelled":
		return tenant.StatusCancelled, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, status)
}
