package identity

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

// Identity is the verified caller as asserted by the identity provider.
type Identity struct {
	UserID string
	OrgID  string
	Role   string
}

// Claims returns the tenant claims carried by the identity.
func (i Identity) Claims() tenant.Claims {
	return tenant.Claims{UserID: i.UserID, OrgID: i.OrgID, Role: i.Role}
}

// TokenClaims is the JWT payload: sub, org_id and org_role plus the registered claims.
type TokenClaims struct {
	OrgID   string `json:"org_id,omitempty"`
	OrgRole string `json:"org_role,omitempty"`
	jwt.RegisteredClaims
}

type identityKey struct{}

// WithIdentity stores id in ctx together with the matching tenant claims.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, identityKey{}, id)
	return tenant.WithClaims(ctx, id.Claims())
}

// FromContext returns the identity stored by the middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
