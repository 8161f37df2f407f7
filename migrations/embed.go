// Package migrations embeds the shared-registry schema applied by pg.Migrate.
package migrations

import "embed"

// FS holds the goose migrations for the public schema.
//
//go:embed *.sql
var FS embed.FS
