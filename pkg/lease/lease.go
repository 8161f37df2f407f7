package lease

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// NeutralSearchPath is the search_path every connection carries while it sits in the pool.
const NeutralSearchPath = "public"

// Lease is exclusive ownership of one physical connection by one logical request.
// All of a request's queries go through its lease; after Release every query method fails with
// ErrReleased.
type Lease struct {
	mgr        *Manager
	conn       PooledConn
	acquiredAt time.Time

	mu         sync.Mutex
	released   bool
	discarded  bool
	searchPath string
}

// SearchPath returns the search_path last applied through SetSearchPath.
func (l *Lease) SearchPath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.searchPath
}

// AcquiredAt reports when the lease was granted.
func (l *Lease) AcquiredAt() time.Time {
	return l.acquiredAt
}

// Released reports whether Release has run.
func (l *Lease) Released() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released
}

// Discard marks the connection as untrustworthy. Release will destroy it instead of returning
// it to the pool.
func (l *Lease) Discard() {
	l.mu.Lock()
	l.discarded = true
	l.mu.Unlock()
}

// SetSearchPath applies path to this connection only. The server echoes the resulting value
// back and a mismatch is an error. path must already be a valid, quoted search_path list.
func (l *Lease) SetSearchPath(ctx context.Context, path string) error {
	conn, err := l.active()
	if err != nil {
		return err
	}

	if err := setSearchPath(ctx, conn, path); err != nil {
		return err
	}

	l.mu.Lock()
	l.searchPath = path
	l.mu.Unlock()
	return nil
}

func (l *Lease) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	conn, err := l.active()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return conn.Exec(ctx, sql, args...)
}

func (l *Lease) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	conn, err := l.active()
	if err != nil {
		return nil, err
	}
	return conn.Query(ctx, sql, args...)
}

func (l *Lease) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	conn, err := l.active()
	if err != nil {
		return errRow{err: err}
	}
	return conn.QueryRow(ctx, sql, args...)
}

// Release resets the connection and hands it back to the pool, or destroys it when the reset
// fails. It runs at most once and is safe to defer on every exit path. The reset uses its own
// context so a cancelled request still gets a clean connection.
func (l *Lease) Release() {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	l.released = true
	discarded := l.discarded
	l.mu.Unlock()

	l.mgr.release(l, discarded)
}

func (l *Lease) active() (PooledConn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil, ErrReleased
	}
	return l.conn, nil
}

// reset returns conn to a neutral state: no transaction, no session advisory locks and the
// neutral search_path.
func reset(ctx context.Context, conn PooledConn) error {
	if status := conn.TxStatus(); status != 'I' {
		if _, err := conn.Exec(ctx, "ROLLBACK"); err != nil {
			return fmt.Errorf("%w: rollback: %w", ErrResetFailed, err)
		}
		if status := conn.TxStatus(); status != 'I' {
			return fmt.Errorf("%w: transaction status %q after rollback", ErrResetFailed, status)
		}
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock_all()"); err != nil {
		return fmt.Errorf("%w: unlock: %w", ErrResetFailed, err)
	}

	if err := setSearchPath(ctx, conn, NeutralSearchPath); err != nil {
		return fmt.Errorf("%w: %w", ErrResetFailed, err)
	}

	return nil
}

func setSearchPath(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, path string) error {
	var applied string
	if err := q.QueryRow(ctx, "SELECT set_config('search_path', $1, false)", path).Scan(&applied); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}
	if applied != path {
		return fmt.Errorf("%w: want %q, got %q", ErrSearchPath, path, applied)
	}
	return nil
}

type errRow struct {
	err error
}

func (r errRow) Scan(...any) error { return r.err }

// InTx runs fn inside a transaction on the leased connection. A panic in fn leaves the
// transaction open; Release rolls it back.
func (l *Lease) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, err := l.Exec(ctx, "BEGIN"); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(ctx); err != nil {
		if _, rbErr := l.Exec(ctx, "ROLLBACK"); rbErr != nil {
			l.Discard()
			return errors.Join(err, rbErr)
		}
		return err
	}
	if _, err := l.Exec(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
