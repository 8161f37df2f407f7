package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/tenantkit/pkg/lifecycle"
	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/tenant"
	"github.com/dmitrymomot/tenantkit/pkg/webhook"
)

// Lifecycle is the subset of lifecycle.Service driven by identity events.
type Lifecycle interface {
	Provision(ctx context.Context, in lifecycle.ProvisionInput) (*tenant.Tenant, error)
	UpdateProfile(ctx context.Context, externalOrgID, name, slug string) error
	Deprovision(ctx context.Context, externalOrgID string) error
	SyncMembership(ctx context.Context, externalOrgID, userID string, role tenant.Role) error
	RemoveMembership(ctx context.Context, externalOrgID, userID string) error
	RemoveUser(ctx context.Context, userID string) (int64, error)
}

// Dispatcher applies identity-provider events to tenants and memberships.
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
	return &Dispatcher{lifecycle: lc, logger: log.With(logger.Component("identity_dispatcher"))}
}

// Dispatch implements webhook.Dispatcher. Unknown events are logged and acknowledged. Events for
// deleted tenants are acknowledged without effect; a membership event for an organization that
// is not provisioned yet fails so the provider redelivers it after organization.created.
func (d *Dispatcher) Dispatch(ctx context.Context, e webhook.Event) error {
	log := d.logger.With(logger.EventID(e.ID), logger.EventType(e.Type))

	var err error
	switch e.Type {
	case EventOrganizationCreated, EventOrganizationUpdated, EventOrganizationDeleted:
		var org Organization
		if err = decodeData(e, &org); err != nil {
			break
		}
		log = log.With(logger.OrgID(org.ID))
		err = d.organization(ctx, e.Type, org)

	case EventMembershipCreated, EventMembershipUpdated, EventMembershipDeleted:
		var m Membership
		if err = decodeData(e, &m); err != nil {
			break
		}
		log = log.With(logger.OrgID(m.OrganizationID), logger.UserID(m.UserID))
		err = d.membership(ctx, e.Type, m)

	case EventUserDeleted:
		var u User
		if err = decodeData(e, &u); err != nil {
			break
		}
		var n int64
		n, err = d.lifecycle.RemoveUser(ctx, u.ID)
		if err == nil {
			log.InfoContext(ctx, "user memberships removed", logger.UserID(u.ID), slog.Int64("count", n))
		}

	case EventUserCreated, EventUserUpdated:
		// Users only gain tenant access through memberships.
		log.DebugContext(ctx, "user event acknowledged")
		return nil

	default:
		log.InfoContext(ctx, "ignoring unknown identity event")
		return nil
	}

	if errors.Is(err, tenant.ErrTenantDeleted) {
		log.InfoContext(ctx, "event for deleted tenant ignored")
		return nil
	}
	if errors.Is(err, lifecycle.ErrInvalidInput) || errors.Is(err, ErrInvalidEvent) {
		log.WarnContext(ctx, "identity event rejected", logger.Error(err))
		return nil
	}
	return err
}

func (d *Dispatcher) organization(ctx context.Context, event string, org Organization) error {
	switch event {
	case EventOrganizationCreated:
		_, err := d.lifecycle.Provision(ctx, lifecycle.ProvisionInput{ExternalOrgID: org.ID, Name: org.Name})
		return err
	case EventOrganizationUpdated:
		err := d.lifecycle.UpdateProfile(ctx, org.ID, org.Name, tenant.Slugify(org.Name))
		if errors.Is(err, tenant.ErrTenantNotFound) {
			// Updates can overtake the create; provisioning applies the current name.
			_, err = d.lifecycle.Provision(ctx, lifecycle.ProvisionInput{ExternalOrgID: org.ID, Name: org.Name})
		}
		return err
	default:
		err := d.lifecycle.Deprovision(ctx, org.ID)
		if errors.Is(err, tenant.ErrTenantNotFound) {
			return nil
		}
		return err
	}
}

func (d *Dispatcher) membership(ctx context.Context, event string, m Membership) error {
	if event == EventMembershipDeleted || !m.Active() {
		err := d.lifecycle.RemoveMembership(ctx, m.OrganizationID, m.UserID)
		if errors.Is(err, tenant.ErrTenantNotFound) {
			return nil
		}
		return err
	}
	role, err := tenant.ParseRole(m.Role.Slug)
	if err != nil {
		d.logger.WarnContext(ctx, "unknown membership role, using viewer",
			slog.String("role", m.Role.Slug), logger.UserID(m.UserID))
		role = tenant.RoleViewer
	}
	return d.lifecycle.SyncMembership(ctx, m.OrganizationID, m.UserID, role)
}

func decodeData(e webhook.Event, dst any) error {
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return fmt.Errorf("%w: %s data: %w", ErrInvalidEvent, e.Type, err)
	}
	return nil
}
