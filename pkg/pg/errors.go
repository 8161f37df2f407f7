package pg

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrFailedToOpenDBConnection = errors.New("pg.failed_to_open_connection")
	ErrHealthcheckFailed        = errors.New("pg.healthcheck_failed")
	ErrFailedToParseDBConfig    = errors.New("pg.failed_to_parse_config")
	ErrFailedToApplyMigrations  = errors.New("pg.failed_to_apply_migrations")
	ErrMigrationsNotProvided    = errors.New("pg.migrations_not_provided")
)

// IsNoRows reports whether err is pgx.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsDuplicateKey reports a unique constraint violation.
func IsDuplicateKey(err error) bool {
	return hasCode(err, pgerrcode.UniqueViolation)
}

// IsUndefinedTable reports a query against a relation that does not exist in the current
// search_path. Inside a bound partition this usually means the partition was never provisioned.
func IsUndefinedTable(err error) bool {
	return hasCode(err, pgerrcode.UndefinedTable)
}

// IsInvalidSchemaName reports a reference to a schema that does not exist.
func IsInvalidSchemaName(err error) bool {
	return hasCode(err, pgerrcode.InvalidSchemaName)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
