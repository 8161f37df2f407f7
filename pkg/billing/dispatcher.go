package billing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/tenantkit/pkg/lifecycle"
	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/plan"
	"github.com/dmitrymomot/tenantkit/pkg/tenant"
	"github.com/dmitrymomot/tenantkit/pkg/webhook"
)

// Lifecycle is the subset of lifecycle.Service driven by billing events.
type Lifecycle interface {
	UpdateSubscription(ctx context.Context, externalOrgID string, status tenant.Status, trialEndsAt *time.Time) error
	ChangeTier(ctx context.Context, externalOrgID string, tier tenant.Tier) error
}

// Dispatcher applies subscription events to tenants. The organization is identified by the
// org_id in the subscription's custom data; the optional tier re-applies that plan.
type Dispatcher struct {
	lifecycle Lifecycle
	logger    *slog.Logger
}

var _ webhook.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher.
func NewDispatcher(lc Lifecycle, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{lifecycle: lc, logger: log.With(logger.Component("billing_dispatcher"))}
}

// Dispatch implements webhook.Dispatcher. Only subscription.* events change state. A tenant that
// is not provisioned yet makes the event fail so it is redelivered.
func (d *Dispatcher) Dispatch(ctx context.Context, e webhook.Event) error {
	log := d.logger.With(logger.EventID(e.ID), logger.EventType(e.Type))
	if !strings.HasPrefix(e.Type, "subscription.") {
		log.DebugContext(ctx, "ignoring billing event")
		return nil
	}

	var sub Subscription
	if err := json.Unmarshal(e.Data, &sub); err != nil {
		log.WarnContext(ctx, "malformed subscription payload", logger.Error(err))
		return nil
	}
	orgID := strings.TrimSpace(sub.CustomData.OrgID)
	if orgID == "" {
		log.WarnContext(ctx, "subscription without org_id ignored", logger.Error(ErrMissingOrgID))
		return nil
	}
	log = log.With(logger.OrgID(orgID), slog.String("subscription_id", sub.ID))

	status, err := MapStatus(sub.Status)
	if err != nil {
		log.WarnContext(ctx, "unmapped subscription status ignored", logger.Error(err))
		return nil
	}

	if sub.CustomData.Tier != "" {
		err := d.lifecycle.ChangeTier(ctx, orgID, tenant.Tier(sub.CustomData.Tier))
		switch {
		case errors.Is(err, plan.ErrUnknownTier):
			log.WarnContext(ctx, "unknown tier in subscription ignored", slog.String("tier", sub.CustomData.Tier))
		case err != nil:
			return d.settle(ctx, log, err)
		}
	}

	err = d.lifecycle.UpdateSubscription(ctx, orgID, status, sub.TrialEndsAt())
	if err != nil {
		return d.settle(ctx, log, err)
	}
	log.InfoContext(ctx, "subscription applied", slog.String("status", string(status)))
	return nil
}

// settle drops errors that a redelivery cannot fix.
func (d *Dispatcher) settle(ctx context.Context, log *slog.Logger, err error) error {
	switch {
	case errors.Is(err, tenant.ErrTenantDeleted):
		log.InfoContext(ctx, "subscription event for deleted tenant ignored")
		return nil
	case errors.Is(err, lifecycle.ErrInvalidTransition), errors.Is(err, lifecycle.ErrInvalidInput):
		log.WarnContext(ctx, "subscription event rejected", logger.Error(err))
		return nil
	}
	return err
}
