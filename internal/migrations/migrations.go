// Package migrations applies the embedded SQL schema files in version order
// and records each applied file in schema_migrations.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
)

//go:embed sql/*.sql
var embedded embed.FS

type migration struct {
	Name    string
	Version string
	Path    string
}

// Apply runs the embedded migrations that have not been applied yet.
func Apply(ctx context.Context, db *sqlx.DB) ([]string, error) {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		return nil, err
	}
	return ApplyFS(ctx, db, sub)
}

// ApplyFS runs the *.sql files at the root of fsys, each in its own
// transaction, and returns the names it applied.
func ApplyFS(ctx context.Context, db *sqlx.DB, fsys fs.FS) ([]string, error) {
	if err := ensureTable(ctx, db); err != nil {
		return nil, err
	}
	migs, err := listMigrations(fsys)
	if err != nil {
		return nil, err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}
	done := []string{}
	for _, mig := range migs {
		if applied[mig.Name] || (mig.Version != "" && applied[mig.Version]) {
			continue
		}
		if err := applyMigration(ctx, db, fsys, mig); err != nil {
			return done, err
		}
		done = append(done, mig.Name)
	}
	return done, nil
}

func ensureTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  id SERIAL PRIMARY KEY,
  version TEXT NULL UNIQUE,
  name TEXT NOT NULL UNIQUE,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func listMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	migs := make([]migration, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		name := entry.Name()
		migs = append(migs, migration{
			Name:    name,
			Version: parseVersion(name),
			Path:    path.Clean(name),
		})
	}
	sort.Slice(migs, func(i, j int) bool {
		iVersion, iOk := parseVersionNumber(migs[i].Name)
		jVersion, jOk := parseVersionNumber(migs[j].Name)
		switch {
		case iOk && jOk && iVersion != jVersion:
			return iVersion < jVersion
		case iOk != jOk:
			return iOk
		default:
			return migs[i].Name < migs[j].Name
		}
	})
	return migs, nil
}

// appliedVersions holds both the names and the versions already recorded.
func appliedVersions(ctx context.Context, db *sqlx.DB) (map[string]bool, error) {
	rows := []struct {
		Name    string  `db:"name"`
		Version *string `db:"version"`
	}{}
	if err := db.SelectContext(ctx, &rows, `SELECT name, version FROM schema_migrations`); err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	applied := map[string]bool{}
	for _, row := range rows {
		applied[row.Name] = true
		if row.Version != nil {
			applied[*row.Version] = true
		}
	}
	return applied, nil
}

func applyMigration(ctx context.Context, db *sqlx.DB, fsys fs.FS, mig migration) (err error) {
	content, err := fs.ReadFile(fsys, mig.Path)
	if err != nil {
		return err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("apply %s: %w", mig.Name, err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, nullIfEmpty(mig.Version), mig.Name); err != nil {
		return fmt.Errorf("record %s: %w", mig.Name, err)
	}
	return tx.Commit()
}

// parseVersion extracts "12" from "V12__add_index.sql".
func parseVersion(name string) string {
	if !strings.HasPrefix(name, "V") {
		return ""
	}
	parts := strings.SplitN(name[1:], "__", 2)
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[0])
}

func parseVersionNumber(name string) (int, bool) {
	raw := parseVersion(name)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}

func nullIfEmpty(value string) interface{} {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
