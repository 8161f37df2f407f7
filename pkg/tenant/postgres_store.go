package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/tenantkit/pkg/pg"
)

// PostgresStore keeps the registry in public.tenants and public.memberships. Every table
// reference is schema-qualified, so the store behaves the same on a neutral or a bound
// connection.
type PostgresStore struct {
	db pg.Querier
}

// NewPostgresStore creates a store over db.
func NewPostgresStore(db pg.Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// PostgresStoreFunc is the StoreFunc for PostgresStore.
func PostgresStoreFunc(db pg.Querier) Store {
	return NewPostgresStore(db)
}

const tenantColumns = `id, external_org_id, name, slug, partition_name, tier, status, trial_ends_at,
	features, entity_limits, created_at, updated_at, deleted_at, purged_at`

func (s *PostgresStore) TenantByExternalID(ctx context.Context, externalOrgID string) (*Tenant, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM public.tenants WHERE external_org_id = $1`, externalOrgID)
	return scanTenant(row)
}

func (s *PostgresStore) TenantByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	row := s.db.QueryRow(ctx, `SELECT `+tenantColumns+` FROM public.tenants WHERE id = $1`, id)
	return scanTenant(row)
}

func (s *PostgresStore) CreateTenant(ctx context.Context, t *Tenant) error {
	limits, err := encodeLimits(t.EntityLimits)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO public.tenants (id, external_org_id, name, slug, partition_name, tier, status,
			trial_ends_at, features, entity_limits)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.ExternalOrgID, t.Name, t.Slug, t.PartitionName, string(t.Tier), string(t.Status),
		t.TrialEndsAt, featureNames(t.Features), limits,
	)
	if pg.IsDuplicateKey(err) {
		return ErrTenantExists
	}
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTenantProfile(ctx context.Context, id uuid.UUID, name, slug string) error {
	return s.exec(ctx, `UPDATE public.tenants SET name = $2, slug = $3, updated_at = now() WHERE id = $1`,
		id, name, slug)
}

func (s *PostgresStore) UpdateSubscription(ctx context.Context, id uuid.UUID, status Status, trialEndsAt *time.Time) error {
	return s.exec(ctx, `UPDATE public.tenants SET status = $2, trial_ends_at = $3, updated_at = now() WHERE id = $1`,
		id, string(status), trialEndsAt)
}

func (s *PostgresStore) UpdatePlan(ctx context.Context, id uuid.UUID, tier Tier, features FeatureSet, limits map[Resource]int64) error {
	encoded, err := encodeLimits(limits)
	if err != nil {
		return err
	}
	return s.exec(ctx, `
		UPDATE public.tenants SET tier = $2, features = $3, entity_limits = $4, updated_at = now()
		WHERE id = $1`, id, string(tier), featureNames(features), encoded)
}

func (s *PostgresStore) SoftDeleteTenant(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.exec(ctx, `
		UPDATE public.tenants SET deleted_at = COALESCE(deleted_at, $2), updated_at = now()
		WHERE id = $1`, id, at)
}

func (s *PostgresStore) MarkPurged(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.exec(ctx, `
		UPDATE public.tenants SET purged_at = COALESCE(purged_at, $2), updated_at = now()
		WHERE id = $1`, id, at)
}

func (s *PostgresStore) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (s *PostgresStore) Membership(ctx context.Context, tenantID uuid.UUID, userID string) (*Membership, error) {
	var (
		m    Membership
		role int16
	)
	err := s.db.QueryRow(ctx, `
		SELECT user_id, tenant_id, role, last_login_at, created_at, updated_at
		FROM public.memberships WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID,
	).Scan(&m.UserID, &m.TenantID, &role, &m.LastLoginAt, &m.CreatedAt, &m.UpdatedAt)
	if pg.IsNoRows(err) {
		return nil, ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select membership: %w", err)
	}
	m.Role = Role(role)
	return &m, nil
}

func (s *PostgresStore) UpsertMembership(ctx context.Context, m *Membership) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO public.memberships (tenant_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = now()`,
		m.TenantID, m.UserID, int16(m.Role))
	if err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteMembership(ctx context.Context, tenantID uuid.UUID, userID string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM public.memberships WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	return err
}

func (s *PostgresStore) DeleteUserMemberships(ctx context.Context, userID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM public.memberships WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ReplaceMemberships rebuilds a tenant's memberships from provider state in one statement.
func (s *PostgresStore) ReplaceMemberships(ctx context.Context, tenantID uuid.UUID, members []Membership) error {
	users := make([]string, len(members))
	roles := make([]int16, len(members))
	for i, m := range members {
		users[i], roles[i] = m.UserID, int16(m.Role)
	}
	_, err := s.db.Exec(ctx, `
		WITH removed AS (
			DELETE FROM public.memberships
			WHERE tenant_id = $1 AND user_id <> ALL($2::text[])
		)
		INSERT INTO public.memberships (tenant_id, user_id, role)
		SELECT $1, i.user_id, i.role FROM unnest($2::text[], $3::smallint[]) AS i(user_id, role)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = now()`,
		tenantID, users, roles)
	if err != nil {
		return fmt.Errorf("replace memberships: %w", err)
	}
	return nil
}

func (s *PostgresStore) TouchLogin(ctx context.Context, tenantID uuid.UUID, userID string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE public.memberships SET last_login_at = $3 WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

func scanTenant(row pgx.Row) (*Tenant, error) {
	var (
		t            Tenant
		tier, status string
		features     []string
		limits       map[string]int64
	)
	err := row.Scan(&t.ID, &t.ExternalOrgID, &t.Name, &t.Slug, &t.PartitionName, &tier, &status,
		&t.TrialEndsAt, &features, &limits, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt, &t.PurgedAt)
	if pg.IsNoRows(err) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan tenant: %w", err)
	}

	t.Tier, t.Status = Tier(tier), Status(status)
	if !t.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	t.Features = make(FeatureSet, len(features))
	for _, name := range features {
		if f, err := ParseFeature(name); err == nil {
			t.Features[f] = true
		}
	}
	t.EntityLimits = make(map[Resource]int64, len(limits))
	for r, l := range limits {
		t.EntityLimits[Resource(r)] = l
	}
	return &t, nil
}

func featureNames(fs FeatureSet) []string {
	list := fs.List()
	out := make([]string, len(list))
	for i, f := range list {
		out[i] = string(f)
	}
	return out
}

func encodeLimits(limits map[Resource]int64) ([]byte, error) {
	if limits == nil {
		limits = map[Resource]int64{}
	}
	b, err := json.Marshal(limits)
	if err != nil {
		return nil, fmt.Errorf("encode entity limits: %w", err)
	}
	return b, nil
}
