// Package identity connects the identity provider to the tenancy layer.
//
// Authenticator.Middleware verifies HS256 bearer tokens carrying sub, org_id and org_role and
// stores the caller as an Identity and as tenant.Claims, which tenancy.Middleware consumes.
// The claims assert who the caller is; the tenant registry and membership table remain the
// authority on what the caller may do.
//
// Dispatcher mirrors organization, membership and user events into the lifecycle service. It is
// mounted behind webhook.Handler with a WorkOSVerifier and DecodeEvent:
//
//	verifier, err := identity.NewWorkOSVerifier(cfg.WebhookSecret, cfg.WebhookTolerance)
//	h := webhook.Handler("identity", verifier, identity.DecodeEvent, dedup, identity.NewDispatcher(svc, log))
package identity
