package redis

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
)

// Connect creates a client for cfg.ConnectionURL and pings it, retrying with exponential
// backoff until RetryAttempts is exhausted or ConnectTimeout elapses.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.ConnectionURL == "" {
		return nil, ErrEmptyConnectionURL
	}
	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrInvalidConnectionURL, err)
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	b := backoff.NewExponentialBackOff()
	if cfg.RetryInterval > 0 {
		b.InitialInterval = cfg.RetryInterval
	}

	client, err := backoff.Retry(ctx, func() (*redis.Client, error) {
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, err
		}
		return client, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(max(cfg.RetryAttempts, 1)))
	if err != nil {
		return nil, errors.Join(ErrRedisNotReady, err)
	}

	return client, nil
}
