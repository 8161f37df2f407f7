// Package redis connects the go-redis client shared by the tenant cache and webhook deduplication.
//
// Connect retries the initial ping with exponential backoff; Healthcheck adapts the client to
// the readiness endpoint.
//
//	client, err := redis.Connect(ctx, cfg.Redis)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	dedup := webhook.NewRedisDeduplicator(client, "webhook:", webhook.DefaultDedupTTL)
package redis
