package pg

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens the shared pool and pings it, retrying with exponential backoff until
// RetryAttempts is exhausted.
//
// The pool discards any connection handed back while a transaction is still open. Leases reset
// connections before releasing them, so this hook only fires when that contract was broken.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseDBConfig, err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.AfterRelease = func(c *pgx.Conn) bool {
		return c.PgConn().TxStatus() == 'I'
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.RetryInterval

	pool, err := backoff.Retry(ctx, func() (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return pool, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(max(cfg.RetryAttempts, 1)))
	if err != nil {
		return nil, errors.Join(ErrFailedToOpenDBConnection, err)
	}

	return pool, nil
}
