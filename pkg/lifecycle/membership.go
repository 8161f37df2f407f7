package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dmitrymomot/tenantkit/pkg/audit"
	"github.com/dmitrymomot/tenantkit/pkg/lease"
	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

// Member is one entry of an identity-provider membership list.
type Member struct {
	UserID string
	Role   tenant.Role
}

// SyncMembership mirrors a user's role in an organization.
func (s *Service) SyncMembership(ctx context.Context, externalOrgID, userID string, role tenant.Role) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if !role.Valid() {
		role = tenant.RoleViewer
	}
	return s.mutate(ctx, "lifecycle.SyncMembership", externalOrgID, func(ctx context.Context, store tenant.Store, t *tenant.Tenant) error {
		if t.IsDeleted() {
			return tenant.ErrTenantDeleted
		}
		if err := store.UpsertMembership(ctx, &tenant.Membership{TenantID: t.ID, UserID: userID, Role: role}); err != nil {
			return err
		}
		s.auditor.Record(ctx, "member.synced",
			audit.WithTenant(t.ID), audit.WithActor("system"),
			audit.WithResource("member", userID),
			audit.WithMetadata("role", role.String()))
		return nil
	})
}

// RemoveMembership removes a user from an organization. Removing an absent member succeeds.
func (s *Service) RemoveMembership(ctx context.Context, externalOrgID, userID string) error {
	return s.mutate(ctx, "lifecycle.RemoveMembership", externalOrgID, func(ctx context.Context, store tenant.Store, t *tenant.Tenant) error {
		err := store.DeleteMembership(ctx, t.ID, userID)
		if err != nil && !errors.Is(err, tenant.ErrMembershipNotFound) {
			return err
		}
		s.auditor.Record(ctx, "member.removed",
			audit.WithTenant(t.ID), audit.WithActor("system"),
			audit.WithResource("member", userID))
		return nil
	})
}

// RemoveUser removes a deleted user from every organization.
func (s *Service) RemoveUser(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	var n int64
	err := s.leases.With(ctx, func(ctx context.Context, l *lease.Lease) error {
		var err error
		n, err = s.stores(l).DeleteUserMemberships(ctx, userID)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "user removed from all tenants", logger.UserID(userID), slog.Int64("memberships", n))
	return n, nil
}

// RebuildMemberships replaces an organization's memberships with members. Use it to recover from
// missed identity events.
func (s *Service) RebuildMemberships(ctx context.Context, externalOrgID string, members []Member) error {
	rows := make([]tenant.Membership, 0, len(members))
	for _, m := range members {
		if strings.TrimSpace(m.UserID) == "" {
			return fmt.Errorf("%w: member without user id", ErrInvalidInput)
		}
		role := m.Role
		if !role.Valid() {
			role = tenant.RoleViewer
		}
		rows = append(rows, tenant.Membership{UserID: m.UserID, Role: role})
	}
	return s.mutate(ctx, "lifecycle.RebuildMemberships", externalOrgID, func(ctx context.Context, store tenant.Store, t *tenant.Tenant) error {
		if t.IsDeleted() {
			return tenant.ErrTenantDeleted
		}
		for i := range rows {
			rows[i].TenantID = t.ID
		}
		if err := store.ReplaceMemberships(ctx, t.ID, rows); err != nil {
			return err
		}
		s.auditor.Record(ctx, "member.rebuilt",
			audit.WithTenant(t.ID), audit.WithActor("system"),
			audit.WithMetadata("count", len(rows)))
		return nil
	})
}
