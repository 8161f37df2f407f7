package gate

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/tenantkit/pkg/pg"
	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

// CounterFunc returns the current usage of a resource. It runs on the request's bound
// connection, so unqualified names resolve inside the tenant's partition.
type CounterFunc func(ctx context.Context, db pg.Querier) (int64, error)

// Registry maps a Resource to its CounterFunc.
// Not thread-safe: register all counters at startup only.
type Registry map[tenant.Resource]CounterFunc

// NewRegistry returns an empty Registry.
func NewRegistry() Registry {
	return make(Registry)
}

// Register sets or replaces the counter for res. Panics if fn is nil.
func (r Registry) Register(res tenant.Resource, fn CounterFunc) Registry {
	if fn == nil {
		panic(fmt.Sprintf("gate: CounterFunc for resource %q cannot be nil", res))
	}
	r[res] = fn
	return r
}

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// CountRows counts the rows of an unqualified partition table. Panics on an invalid table name,
// which is a wiring mistake.
func CountRows(table string) CounterFunc {
	if !tableName.MatchString(table) {
		panic(fmt.Sprintf("%v: %q", ErrInvalidTable, table))
	}
	query := "SELECT count(*) FROM " + pgx.Identifier{table}.Sanitize()
	return func(ctx context.Context, db pg.Querier) (int64, error) {
		var n int64
		if err := db.QueryRow(ctx, query).Scan(&n); err != nil {
			return 0, err
		}
		return n, nil
	}
}
