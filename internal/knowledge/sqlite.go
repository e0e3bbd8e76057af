package knowledge

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/proposald/internal/db"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

const migrationComponent = "knowledge"

// SQLiteRepository stores record versions in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository migrates the records schema on conn and returns a
// repository using it. The caller owns conn.
func NewSQLiteRepository(ctx context.Context, conn *sql.DB) (*SQLiteRepository, error) {
	migrations, err := db.LoadMigrations(migrationsFS, "sql")
	if err != nil {
		return nil, fmt.Errorf("load knowledge migrations: %w", err)
	}
	if err := db.Migrate(ctx, conn, migrationComponent, migrations); err != nil {
		return nil, err
	}
	return &SQLiteRepository{db: conn}, nil
}

// Append implements Repository. The version is computed inside the insert
// transaction.
func (r *SQLiteRepository) Append(ctx context.Context, rec Record) (Record, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, err
	}
	defer tx.Rollback()

	var current int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM records WHERE namespace=? AND key=?`,
		rec.SessionID, rec.Key,
	).Scan(&current); err != nil {
		return Record{}, fmt.Errorf("read current version: %w", err)
	}

	rec.Version = current + 1
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO records(namespace, key, version, value, written_by, written_at) VALUES (?,?,?,?,?,?)`,
		rec.SessionID, rec.Key, rec.Version, string(rec.Value), rec.WrittenBy, rec.WrittenAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return Record{}, fmt.Errorf("insert record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Latest implements Repository.
func (r *SQLiteRepository) Latest(ctx context.Context, namespace, key string) (Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT namespace, key, version, value, written_by, written_at FROM records
		 WHERE namespace=? AND key=? ORDER BY version DESC LIMIT 1`,
		namespace, key)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// History implements Repository.
func (r *SQLiteRepository) History(ctx context.Context, namespace, key string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT namespace, key, version, value, written_by, written_at FROM records
		 WHERE namespace=? AND key=? ORDER BY version ASC`,
		namespace, key)
	if err != nil {
		return nil, err
	}
	out, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// List implements Repository.
func (r *SQLiteRepository) List(ctx context.Context, namespace string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.namespace, r.key, r.version, r.value, r.written_by, r.written_at
		 FROM records r
		 JOIN (SELECT key, MAX(version) AS version FROM records WHERE namespace=? GROUP BY key) cur
		   ON r.key = cur.key AND r.version = cur.version
		 WHERE r.namespace=?
		 ORDER BY r.key`,
		namespace, namespace)
	if err != nil {
		return nil, err
	}
	out, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Record{}
	}
	return out, nil
}

// Close implements Repository. The shared connection is closed by its owner.
func (r *SQLiteRepository) Close() error { return nil }

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		rec       Record
		value     string
		writtenAt string
	)
	if err := s.Scan(&rec.SessionID, &rec.Key, &rec.Version, &value, &rec.WrittenBy, &writtenAt); err != nil {
		return Record{}, err
	}
	rec.Value = []byte(value)
	ts, err := time.Parse(time.RFC3339Nano, writtenAt)
	if err != nil {
		return Record{}, fmt.Errorf("parse written_at: %w", err)
	}
	rec.WrittenAt = ts
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
