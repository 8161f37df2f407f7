package lease

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/tenantkit/pkg/pg"
)

// Pool hands out physical connections. It is the only shared mutable resource on the request
// path and is always injected, so tests can substitute a pool of size one.
type Pool interface {
	Acquire(ctx context.Context) (PooledConn, error)
}

// PooledConn is one physical connection checked out of a Pool.
type PooledConn interface {
	pg.Querier

	// TxStatus returns the backend transaction status byte: 'I' idle, 'T' in transaction,
	// 'E' in a failed transaction.
	TxStatus() byte

	// Release returns the connection to its pool.
	Release()

	// Destroy closes the connection and removes it from the pool.
	Destroy(ctx context.Context) error
}

// PgxPool adapts *pgxpool.Pool to Pool.
type PgxPool struct {
	pool *pgxpool.Pool
}

// NewPgxPool wraps a pgx pool.
func NewPgxPool(pool *pgxpool.Pool) *PgxPool {
	return &PgxPool{pool: pool}
}

// Acquire checks out a connection, blocking until one is free or ctx is done.
func (p *PgxPool) Acquire(ctx context.Context) (PooledConn, error) {
	c, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &pgxConn{Conn: c}, nil
}

type pgxConn struct {
	*pgxpool.Conn
}

func (c *pgxConn) TxStatus() byte {
	return c.Conn.Conn().PgConn().TxStatus()
}

func (c *pgxConn) Destroy(ctx context.Context) error {
	return c.Hijack().Close(ctx)
}
