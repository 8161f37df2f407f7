// Package billing applies billing-provider subscription events to tenants.
//
// The subscription status is authoritative for tenant status:
//
//	active    -> active
//	trialing  -> trialing (trial end taken from the current billing period)
//	past_due  -> past_due (read-only access)
//	paused    -> suspended
//	canceled  -> cancelled (access denied, data retained)
//
// Subscriptions are linked to tenants through custom_data.org_id, set when the checkout is
// created. custom_data.tier, when present, re-applies that plan's features and limits.
package billing
