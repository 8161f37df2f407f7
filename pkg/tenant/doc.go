// Package tenant models tenants and memberships and resolves a request's claims to a trusted
// tenant context.
//
// Roles, tiers, statuses and features are closed enumerations. The Resolver checks the tenant
// record (existence, soft delete, subscription status) and mirrors the caller's membership from
// the identity claim, never granting a role the claim did not assert.
//
// Stores are built per connection through StoreFunc, so on the request path the registry is
// read through the request's own lease.
package tenant
