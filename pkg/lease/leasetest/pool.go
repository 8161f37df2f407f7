// Package leasetest provides an in-memory connection pool for exercising lease and binding
// behaviour without a database. Connections track the session state that matters for tenant
// isolation: search_path, transaction status and advisory locks.
package leasetest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/tenantkit/pkg/lease"
)

// ErrConnBroken is returned by every statement on a broken connection.
var ErrConnBroken = errors.New("leasetest: connection broken")

// QueryFunc answers a statement the fake does not interpret itself. It returns the rows of the
// result; QueryRow uses the first one.
type QueryFunc func(c *Conn, sql string, args []any) ([][]any, error)

// Pool is a fixed-size pool. Acquire blocks while all connections are leased.
type Pool struct {
	mu      sync.Mutex
	free    chan *Conn
	all     []*Conn
	nextID  int
	onQuery QueryFunc
}

// NewPool creates a pool holding size connections.
func NewPool(size int) *Pool {
	p := &Pool{free: make(chan *Conn, size)}
	for range size {
		p.free <- p.newConn()
	}
	return p
}

// OnQuery installs the handler for statements the fake does not interpret.
func (p *Pool) OnQuery(fn QueryFunc) {
	p.mu.Lock()
	p.onQuery = fn
	p.mu.Unlock()
}

// Acquire implements lease.Pool.
func (p *Pool) Acquire(ctx context.Context) (lease.PooledConn, error) {
	select {
	case c := <-p.free:
		c.mu.Lock()
		c.inUse = true
		c.leases++
		c.mu.Unlock()
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Conns returns every connection the pool ever created, including destroyed ones.
func (p *Pool) Conns() []*Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Conn(nil), p.all...)
}

// Idle returns the number of connections waiting in the pool.
func (p *Pool) Idle() int {
	return len(p.free)
}

func (p *Pool) newConn() *Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	c := &Conn{
		pool:       p,
		id:         p.nextID,
		searchPath: lease.NeutralSearchPath,
		txStatus:   'I',
		locks:      map[int64]int{},
		failOn:     map[string]error{},
	}
	p.all = append(p.all, c)
	return c
}

func (p *Pool) handler() QueryFunc {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onQuery
}

// Conn is one fake physical connection.
type Conn struct {
	pool *Pool
	id   int

	mu         sync.Mutex
	searchPath string
	txStatus   byte
	locks      map[int64]int
	inUse      bool
	destroyed  bool
	broken     bool
	leases     int
	statements []string
	failOn     map[string]error
}

// ID identifies the physical connection.
func (c *Conn) ID() int { return c.id }

// SearchPath returns the session search_path.
func (c *Conn) SearchPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.searchPath
}

// Locks returns the number of session advisory locks held.
func (c *Conn) Locks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.locks {
		n += v
	}
	return n
}

// Destroyed reports whether the connection was closed.
func (c *Conn) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// InUse reports whether the connection is currently leased.
func (c *Conn) InUse() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inUse
}

// Leases counts how many times the connection was checked out.
func (c *Conn) Leases() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leases
}

// Statements returns every statement executed on the connection.
func (c *Conn) Statements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.statements...)
}

// Break makes every following statement fail with ErrConnBroken.
func (c *Conn) Break() {
	c.mu.Lock()
	c.broken = true
	c.mu.Unlock()
}

// FailOn makes statements containing fragment fail with err.
func (c *Conn) FailOn(fragment string, err error) {
	c.mu.Lock()
	c.failOn[strings.ToLower(fragment)] = err
	c.mu.Unlock()
}

// TxStatus implements lease.PooledConn.
func (c *Conn) TxStatus() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txStatus
}

// Release implements lease.PooledConn.
func (c *Conn) Release() {
	c.mu.Lock()
	if !c.inUse || c.destroyed {
		c.mu.Unlock()
		return
	}
	c.inUse = false
	c.mu.Unlock()
	c.pool.free <- c
}

// Destroy implements lease.PooledConn. A replacement connection joins the pool.
func (c *Conn) Destroy(context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	c.inUse = false
	c.mu.Unlock()
	c.pool.free <- c.pool.newConn()
	return nil
}

// Exec implements pg.Querier.
func (c *Conn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	stmt, err := c.begin(sql)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	if tag, ok := c.session(stmt, args); ok {
		return tag, nil
	}
	if _, err := c.answer(sql, args); err != nil {
		return pgconn.CommandTag{}, err
	}
	return pgconn.NewCommandTag("OK"), nil
}

// session interprets transaction and advisory lock statements.
func (c *Conn) session(stmt string, args []any) (pgconn.CommandTag, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case stmt == "begin":
		c.txStatus = 'T'
		return pgconn.NewCommandTag("BEGIN"), true
	case stmt == "commit", stmt == "rollback":
		c.txStatus = 'I'
		return pgconn.NewCommandTag(strings.ToUpper(stmt)), true
	case strings.HasPrefix(stmt, "select pg_advisory_unlock_all()"):
		c.locks = map[int64]int{}
		return pgconn.NewCommandTag("SELECT 1"), true
	case strings.HasPrefix(stmt, "select pg_advisory_lock("):
		key, _ := toInt64(firstArg(args))
		c.locks[key]++
		return pgconn.NewCommandTag("SELECT 1"), true
	}
	return pgconn.CommandTag{}, false
}

// QueryRow implements pg.Querier.
func (c *Conn) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	stmt, err := c.begin(sql)
	if err != nil {
		return &Row{err: err}
	}

	switch {
	case strings.HasPrefix(stmt, "select set_config('search_path'"):
		path, _ := firstArg(args).(string)
		c.mu.Lock()
		c.searchPath = path
		c.mu.Unlock()
		return &Row{values: []any{path}}
	case strings.HasPrefix(stmt, "select current_setting('search_path')"):
		return &Row{values: []any{c.SearchPath()}}
	}

	rows, err := c.answer(sql, args)
	if err != nil {
		return &Row{err: err}
	}
	if len(rows) == 0 {
		return &Row{err: pgx.ErrNoRows}
	}
	return &Row{values: rows[0]}
}

// Query implements pg.Querier.
func (c *Conn) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	if _, err := c.begin(sql); err != nil {
		return nil, err
	}
	rows, err := c.answer(sql, args)
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows, idx: -1}, nil
}

func (c *Conn) begin(sql string) (string, error) {
	stmt := strings.ToLower(strings.TrimSpace(sql))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.statements = append(c.statements, sql)
	if c.destroyed {
		return "", fmt.Errorf("leasetest: connection %d destroyed", c.id)
	}
	if c.broken {
		return "", ErrConnBroken
	}
	for fragment, err := range c.failOn {
		if strings.Contains(stmt, fragment) {
			if c.txStatus == 'T' {
				c.txStatus = 'E'
			}
			return "", err
		}
	}
	if c.txStatus == 'E' && stmt != "rollback" {
		return "", errors.New("leasetest: current transaction is aborted")
	}
	return stmt, nil
}

func (c *Conn) answer(sql string, args []any) ([][]any, error) {
	h := c.pool.handler()
	if h == nil {
		return nil, nil
	}
	return h(c, sql, args)
}

// Row is a single fake result row.
type Row struct {
	values []any
	err    error
}

// Scan copies the row into dest.
func (r *Row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(r.values, dest)
}

// Rows is a fake result set.
type Rows struct {
	rows   [][]any
	idx    int
	closed bool
}

func (r *Rows) Close() { r.closed = true }
func (r *Rows) Err() error { return nil }
func (r *Rows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }
func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *Rows) Conn() *pgx.Conn { return nil }
func (r *Rows) RawValues() [][]byte { return nil }

func (r *Rows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	if r.idx >= len(r.rows) {
		r.closed = true
		return false
	}
	return true
}

func (r *Rows) Scan(dest ...any) error {
	if r.idx < 0 || r.idx >= len(r.rows) {
		return errors.New("leasetest: scan outside of row")
	}
	return scanInto(r.rows[r.idx], dest)
}

func (r *Rows) Values() ([]any, error) {
	if r.idx < 0 || r.idx >= len(r.rows) {
		return nil, errors.New("leasetest: values outside of row")
	}
	return r.rows[r.idx], nil
}

func scanInto(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("leasetest: %d values for %d destinations", len(values), len(dest))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("leasetest: destination %d is not a pointer", i)
		}
		target := dv.Elem()
		if values[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		v := reflect.ValueOf(values[i])
		switch {
		case v.Type().AssignableTo(target.Type()):
			target.Set(v)
		case target.Kind() == reflect.Pointer && v.Type().AssignableTo(target.Type().Elem()):
			p := reflect.New(target.Type().Elem())
			p.Elem().Set(v)
			target.Set(p)
		case v.Type().ConvertibleTo(target.Type()):
			target.Set(v.Convert(target.Type()))
		default:
			return fmt.Errorf("leasetest: cannot scan %T into %s", values[i], target.Type())
		}
	}
	return nil
}

func firstArg(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	}
	return 0, false
}
