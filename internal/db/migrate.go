package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// Migration is one numbered schema step.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

// LoadMigrations reads files named NNN_description.sql from dir in fsys,
// ordered by version.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var migrations []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		data, err := fs.ReadFile(fsys, dir+"/"+e.Name())
		if err != nil {
			return nil, err
		}
		var v int
		if _, err := fmt.Sscanf(e.Name(), "%d_", &v); err != nil {
			return nil, fmt.Errorf("invalid migration filename %s: %w", e.Name(), err)
		}
		migrations = append(migrations, Migration{Version: v, Name: e.Name(), UpSQL: string(data)})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// Migrate applies the migrations of one component in a single transaction.
// Each component tracks its own version row so that components can evolve
// their schemas independently inside the same database file.
func Migrate(ctx context.Context, conn *sql.DB, component string, migrations []Migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_versions(component TEXT PRIMARY KEY, version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	var current int
	err = tx.QueryRowContext(ctx, `SELECT version FROM schema_versions WHERE component=?`, component).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_versions(component, version) VALUES (?, 0)`, component); err != nil {
			return fmt.Errorf("init schema version for %s: %w", component, err)
		}
	} else if err != nil {
		return fmt.Errorf("read schema version for %s: %w", component, err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			return fmt.Errorf("apply %s migration %s: %w", component, m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE schema_versions SET version=? WHERE component=?`, m.Version, component); err != nil {
			return fmt.Errorf("update schema version for %s: %w", component, err)
		}
		current = m.Version
	}

	return tx.Commit()
}

// Version returns the applied schema version of a component, or 0.
func Version(ctx context.Context, conn *sql.DB, component string) (int, error) {
	var v int
	err := conn.QueryRowContext(ctx, `SELECT version FROM schema_versions WHERE component=?`, component).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}
