package pg

import "time"

// Config controls the shared connection pool. Every tenant's requests draw from the same pool,
// so MaxConns is the ceiling on concurrently leased requests.
type Config struct {
	ConnectionString  string        `env:"PG_CONN_URL,required"`
	MaxConns          int32         `env:"PG_MAX_CONNS" envDefault:"10"`
	MinConns          int32         `env:"PG_MIN_CONNS" envDefault:"2"`
	HealthCheckPeriod time.Duration `env:"PG_HEALTHCHECK_PERIOD" envDefault:"1m"`
	MaxConnIdleTime   time.Duration `env:"PG_MAX_CONN_IDLE_TIME" envDefault:"10m"`
	MaxConnLifetime   time.Duration `env:"PG_MAX_CONN_LIFETIME" envDefault:"30m"`

	RetryAttempts uint          `env:"PG_RETRY_ATTEMPTS" envDefault:"5"`
	RetryInterval time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"1s"`

	MigrationsTable string `env:"PG_MIGRATIONS_TABLE" envDefault:"schema_migrations"`
}
