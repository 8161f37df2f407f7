package partition_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantkit/pkg/lease"
	"github.com/dmitrymomot/tenantkit/pkg/lease/leasetest"
	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/partition"
)

func TestNameFor(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")
	name := partition.NameFor(id)

	assert.Equal(t, "t_0f8fad5bd9cb469fa16570867728950e", name)
	assert.Equal(t, name, partition.NameFor(id), "derivation is deterministic")
	assert.NotEqual(t, name, partition.NameFor(uuid.New()))
	require.NoError(t, partition.Validate(name))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	bad := []string{
		"",
		"public",
		"t_",
		"t_0F8FAD5BD9CB469FA16570867728950E",
		"t_0f8fad5bd9cb469fa16570867728950",
		"t_0f8fad5bd9cb469fa16570867728950e0",
		`t_0f8fad5bd9cb469fa16570867728950e"; DROP SCHEMA public; --`,
		"t_0f8fad5b-d9cb-469f-a165-70867728950e",
		"x_0f8fad5bd9cb469fa16570867728950e",
		" t_0f8fad5bd9cb469fa16570867728950e",
	}
	for _, name := range bad {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			require.ErrorIs(t, partition.Validate(name), partition.ErrInvalidName)
		})
	}
}

func TestSearchPath(t *testing.T) {
	t.Parallel()

	name := partition.NameFor(uuid.New())
	path, err := partition.SearchPath(name)
	require.NoError(t, err)
	assert.Equal(t, `"`+name+`"`, path)
	assert.NotContains(t, path, "public")
}

func setup(t *testing.T) (*lease.Manager, *leasetest.Pool) {
	t.Helper()
	pool := leasetest.NewPool(1)
	return lease.NewManager(pool, lease.WithLogger(logger.Discard())), pool
}

func TestBinderBind(t *testing.T) {
	t.Parallel()

	t.Run("binds exactly the partition", func(t *testing.T) {
		t.Parallel()
		mgr, pool := setup(t)
		ctx := context.Background()
		name := partition.NameFor(uuid.New())

		l, err := mgr.Acquire(ctx)
		require.NoError(t, err)
		require.NoError(t, partition.NewBinder(logger.Discard()).Bind(ctx, l, name))
		assert.Equal(t, `"`+name+`"`, pool.Conns()[0].SearchPath())

		l.Release()
		assert.Equal(t, lease.NeutralSearchPath, pool.Conns()[0].SearchPath())
		assert.False(t, pool.Conns()[0].Destroyed())
	})

	t.Run("invalid name discards the connection", func(t *testing.T) {
		t.Parallel()
		mgr, pool := setup(t)
		ctx := context.Background()

		l, err := mgr.Acquire(ctx)
		require.NoError(t, err)
		err = partition.NewBinder(logger.Discard()).Bind(ctx, l, "public; SELECT 1")
		require.ErrorIs(t, err, partition.ErrBindFailed)
		require.ErrorIs(t, err, partition.ErrInvalidName)

		l.Release()
		assert.True(t, pool.Conns()[0].Destroyed())
	})

	t.Run("statement failure discards the connection", func(t *testing.T) {
		t.Parallel()
		mgr, pool := setup(t)
		ctx := context.Background()

		l, err := mgr.Acquire(ctx)
		require.NoError(t, err)
		pool.Conns()[0].FailOn("set_config", errors.New("server closed the connection"))

		err = partition.NewBinder(logger.Discard()).Bind(ctx, l, partition.NameFor(uuid.New()))
		require.ErrorIs(t, err, partition.ErrBindFailed)

		l.Release()
		assert.True(t, pool.Conns()[0].Destroyed())
		assert.Equal(t, int64(1), mgr.Stats().Destroyed)
	})

	t.Run("reused connection is fully rebound", func(t *testing.T) {
		t.Parallel()
		mgr, pool := setup(t)
		ctx := context.Background()
		binder := partition.NewBinder(logger.Discard())
		a, b := partition.NameFor(uuid.New()), partition.NameFor(uuid.New())

		first, err := mgr.Acquire(ctx)
		require.NoError(t, err)
		require.NoError(t, binder.Bind(ctx, first, a))
		first.Release()

		second, err := mgr.Acquire(ctx)
		require.NoError(t, err)
		defer second.Release()
		require.NoError(t, binder.Bind(ctx, second, b))

		conn := pool.Conns()[0]
		assert.Equal(t, 2, conn.Leases())
		assert.Equal(t, `"`+b+`"`, conn.SearchPath())
		assert.NotContains(t, conn.SearchPath(), a)
	})
}

func TestProvisioner(t *testing.T) {
	t.Parallel()

	t.Run("embedded schema", func(t *testing.T) {
		t.Parallel()
		p, err := partition.NewProvisioner(partition.WithProvisionerLogger(logger.Discard()))
		require.NoError(t, err)

		stmts := p.Statements()
		require.NotEmpty(t, stmts)
		for _, s := range stmts {
			assert.Contains(t, s, "IF NOT EXISTS", "partition DDL must be re-runnable")
		}
	})

	t.Run("create runs inside the partition and is repeatable", func(t *testing.T) {
		t.Parallel()
		mgr, pool := setup(t)
		ctx := context.Background()
		name := partition.NameFor(uuid.New())

		fsys := fstest.MapFS{
			"001_items.sql": {Data: []byte("CREATE TABLE IF NOT EXISTS items (id int);\nCREATE INDEX IF NOT EXISTS items_id ON items (id);")},
		}
		p, err := partition.NewProvisioner(partition.WithSchema(fsys), partition.WithProvisionerLogger(logger.Discard()))
		require.NoError(t, err)
		require.Len(t, p.Statements(), 2)

		var pathsSeen []string
		pool.OnQuery(func(c *leasetest.Conn, sql string, _ []any) ([][]any, error) {
			if strings.HasPrefix(sql, "CREATE TABLE") {
				pathsSeen = append(pathsSeen, c.SearchPath())
			}
			return nil, nil
		})

		for range 2 {
			l, err := mgr.Acquire(ctx)
			require.NoError(t, err)
			require.NoError(t, p.Create(ctx, l, name))
			l.Release()
		}

		require.Len(t, pathsSeen, 2)
		for _, seen := range pathsSeen {
			assert.Equal(t, `"`+name+`"`, seen)
		}
		stmts := pool.Conns()[0].Statements()
		assert.Contains(t, stmts, `CREATE SCHEMA IF NOT EXISTS "`+name+`"`)
		assert.Contains(t, stmts, "COMMIT")
		assert.Equal(t, lease.NeutralSearchPath, pool.Conns()[0].SearchPath())
	})

	t.Run("failed statement rolls back", func(t *testing.T) {
		t.Parallel()
		mgr, pool := setup(t)
		ctx := context.Background()

		p, err := partition.NewProvisioner(partition.WithProvisionerLogger(logger.Discard()))
		require.NoError(t, err)

		l, err := mgr.Acquire(ctx)
		require.NoError(t, err)
		pool.Conns()[0].FailOn("create table", errors.New("permission denied"))

		err = p.Create(ctx, l, partition.NameFor(uuid.New()))
		require.ErrorIs(t, err, partition.ErrProvisionFailed)
		l.Release()

		assert.Equal(t, byte('I'), pool.Conns()[0].TxStatus())
		assert.Contains(t, pool.Conns()[0].Statements(), "ROLLBACK")
	})

	t.Run("drop and exists", func(t *testing.T) {
		t.Parallel()
		mgr, pool := setup(t)
		ctx := context.Background()
		name := partition.NameFor(uuid.New())

		p, err := partition.NewProvisioner(partition.WithProvisionerLogger(logger.Discard()))
		require.NoError(t, err)

		pool.OnQuery(func(_ *leasetest.Conn, sql string, args []any) ([][]any, error) {
			if strings.Contains(sql, "pg_namespace") {
				return [][]any{{args[0] == name}}, nil
			}
			return nil, nil
		})

		l, err := mgr.Acquire(ctx)
		require.NoError(t, err)
		defer l.Release()

		ok, err := p.Exists(ctx, l, name)
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, p.Drop(ctx, l, name))
		assert.Contains(t, pool.Conns()[0].Statements(), `DROP SCHEMA IF EXISTS "`+name+`" CASCADE`)

		require.ErrorIs(t, p.Drop(ctx, l, "public"), partition.ErrInvalidName)
	})
}
