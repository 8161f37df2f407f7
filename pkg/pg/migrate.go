package pg

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrate applies the shared-registry migrations found at the root of fsys.
// Tenant partitions are not migrated here; they are created by the partition provisioner.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, cfg Config, log migrationLogger) error {
	if fsys == nil {
		return errors.Join(ErrFailedToApplyMigrations, ErrMigrationsNotProvided)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			log.ErrorContext(ctx, "failed to close migration db handle", "error", err)
		}
	}(db)

	goose.SetBaseFS(fsys)
	goose.SetLogger(gooseLogger{log: log, ctx: ctx})
	goose.SetTableName(cfg.MigrationsTable)

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	return nil
}
