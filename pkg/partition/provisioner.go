package partition

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/dmitrymomot/tenantkit/pkg/lease"
	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/pg"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Provisioner creates and drops partition schemas.
type Provisioner struct {
	fsys       fs.FS
	dir        string
	statements []string
	logger     *slog.Logger
}

// ProvisionerOption configures a Provisioner.
type ProvisionerOption func(*Provisioner)

// WithSchema replaces the embedded partition DDL with the .sql files found at the root of fsys,
// applied in lexical order. Every statement must be idempotent.
func WithSchema(fsys fs.FS) ProvisionerOption {
	return func(p *Provisioner) {
		p.fsys, p.dir = fsys, "."
	}
}

// WithProvisionerLogger sets the logger.
func WithProvisionerLogger(l *slog.Logger) ProvisionerOption {
	return func(p *Provisioner) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProvisioner creates a Provisioner using the embedded partition DDL.
func NewProvisioner(opts ...ProvisionerOption) (*Provisioner, error) {
	p := &Provisioner{fsys: schemaFS, dir: "schema", logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	stmts, err := loadStatements(p.fsys, p.dir)
	if err != nil {
		return nil, err
	}
	p.statements = stmts
	p.logger = p.logger.With(logger.Component("partition"))
	return p, nil
}

// Create makes partition name and all of its objects. Running it again on an existing
// partition is a no-op. The objects are created while l is bound to the partition alone, so
// unqualified DDL cannot land anywhere else.
func (p *Provisioner) Create(ctx context.Context, l *lease.Lease, name string) error {
	ctx, span := tracer.Start(ctx, "partition.Create")
	defer span.End()

	quoted, err := SearchPath(name)
	if err != nil {
		return err
	}

	if _, err := l.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoted); err != nil {
		return fmt.Errorf("%w: create schema: %w", ErrProvisionFailed, err)
	}

	if err := l.SetSearchPath(ctx, quoted); err != nil {
		l.Discard()
		return fmt.Errorf("%w: %w", ErrProvisionFailed, err)
	}

	err = l.InTx(ctx, func(ctx context.Context) error {
		for i, stmt := range p.statements {
			if _, err := l.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("statement %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProvisionFailed, err)
	}

	p.logger.InfoContext(ctx, "partition ready", logger.Partition(name))
	return nil
}

// Drop removes partition name and everything in it.
func (p *Provisioner) Drop(ctx context.Context, q pg.Querier, name string) error {
	quoted, err := SearchPath(name)
	if err != nil {
		return err
	}
	if _, err := q.Exec(ctx, "DROP SCHEMA IF EXISTS "+quoted+" CASCADE"); err != nil {
		return fmt.Errorf("%w: %w", ErrDropFailed, err)
	}
	p.logger.InfoContext(ctx, "partition dropped", logger.Partition(name))
	return nil
}

// Exists reports whether partition name is present in the catalog.
func (p *Provisioner) Exists(ctx context.Context, q pg.Querier, name string) (bool, error) {
	if err := Validate(name); err != nil {
		return false, err
	}
	var exists bool
	err := q.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_catalog.pg_namespace WHERE nspname = $1)", name,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Statements returns the DDL applied inside every partition.
func (p *Provisioner) Statements() []string {
	return append([]string(nil), p.statements...)
}

func loadStatements(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read partition schema: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var stmts []string
	for _, n := range names {
		raw, err := fs.ReadFile(fsys, path.Join(dir, n))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", n, err)
		}
		for _, s := range strings.Split(string(raw), ";") {
			if s = strings.TrimSpace(s); s != "" {
				stmts = append(stmts, s)
			}
		}
	}
	return stmts, nil
}
