package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Migration is one versioned SQL file, e.g. "0001_init.sql" is version 1.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrator applies pending migrations from files and records them in
// schema_migrations. Each file runs in its own transaction.
type Migrator struct {
	db    *sqlx.DB
	files fs.FS
}

func NewMigrator(db *sqlx.DB, files fs.FS) *Migrator {
	return &Migrator{db: db, files: files}
}

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

// Load reads *.sql files with a numeric prefix, sorted by version. Files
// without one are skipped.
func (m *Migrator) Load() ([]Migration, error) {
	names, err := fs.Glob(m.files, "*.sql")
	if err != nil {
		return nil, err
	}

	var out []Migration
	for _, name := range names {
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		body, err := fs.ReadFile(m.files, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		out = append(out, Migration{Version: version, Name: name, SQL: string(body)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	for i := 1; i < len(out); i++ {
		if out[i].Version == out[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", out[i].Version, out[i-1].Name, out[i].Name)
		}
	}
	return out, nil
}

// Up applies every migration not yet recorded and returns the names applied.
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	migrations, err := m.Load()
	if err != nil {
		return nil, err
	}
	if _, err := m.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	var versions []int
	if err := m.db.SelectContext(ctx, &versions, `SELECT version FROM schema_migrations`); err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}

	var done []string
	for _, mig := range migrations {
		if applied[mig.Version] {
			continue
		}
		if err := m.apply(ctx, mig); err != nil {
			return done, err
		}
		done = append(done, mig.Name)
	}
	return done, nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		tx.Rollback()
		return fmt.Errorf("apply %s: %w", mig.Name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name); err != nil {
		tx.Rollback()
		return fmt.Errorf("record %s: %w", mig.Name, err)
	}
	return tx.Commit()
}
