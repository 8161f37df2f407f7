// Package webhook is the inbound boundary for provider events.
//
// Handler reads a bounded body, authenticates it with a Verifier, decodes it into an Event,
// drops redeliveries through a Deduplicator and hands the event to a Dispatcher:
//
//	verifier, _ := webhook.NewHMACVerifier(secret)
//	dedup := webhook.NewRedisDeduplicator(rdb, "webhook:", 0)
//	r.Post("/webhooks/identity", webhook.Handler("identity", verifier, decode, dedup, dispatcher).ServeHTTP)
//
// Responses:
//
//   - 200 when the event was applied or was a duplicate;
//   - 400 INVALID_REQUEST for an unreadable or malformed body;
//   - 401 INVALID_SIGNATURE when verification fails;
//   - 500 INTERNAL when dispatch fails. The claim is released so the redelivery is processed.
//
// HMACVerifier implements the generic X-Webhook-Signature scheme:
// HMAC-SHA256(secret, "<unix timestamp>.<body>") in lowercase hex. The identity and billing
// packages select it for relayed deliveries when their WebhookScheme is "hmac".
package webhook
