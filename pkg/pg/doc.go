// Package pg bootstraps the PostgreSQL layer shared by every tenant.
//
// Connect opens a pgxpool with retry, Migrate applies the shared-registry migrations with goose
// from an embedded filesystem, and Healthcheck exposes a ping probe. Querier is the minimal
// query interface implemented by pools, pooled connections, transactions and leases, which lets
// stores run on whichever connection the caller owns.
//
// # Usage
//
//	cfg := config.MustLoad[pg.Config]()
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, migrations.FS, cfg, log); err != nil {
//		return err
//	}
//
// # Errors
//
// IsDuplicateKey, IsUndefinedTable and IsInvalidSchemaName classify *pgconn.PgError values by
// SQLSTATE using github.com/jackc/pgerrcode.
package pg
