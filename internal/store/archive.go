// Package store archives terminal sessions in SQLite so their results
// outlive the in-memory orchestrator.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/proposald/internal/db"
	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

const migrationComponent = "archive"

// ErrNotFound is returned for sessions or artifacts missing from the archive.
var ErrNotFound = errors.New("not found in archive")

// Summary is one archived session row.
type Summary struct {
	SessionID   string               `json:"session_id"`
	OwnerID     string               `json:"owner_id"`
	Outcome     orchestrator.Outcome `json:"outcome"`
	FailedPhase string               `json:"failed_phase,omitempty"`
	Reason      string               `json:"reason,omitempty"`
	Rounds      int                  `json:"clarification_rounds"`
	CreatedAt   time.Time            `json:"created_at"`
	FinishedAt  time.Time            `json:"finished_at"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	OwnerID string
	Outcome orchestrator.Outcome
	Limit   int
}

// Archive persists terminal session status. It implements
// orchestrator.Finalizer.
type Archive struct {
	db *sql.DB
}

// NewArchive migrates the archive schema on conn. The caller owns conn.
func NewArchive(ctx context.Context, conn *sql.DB) (*Archive, error) {
	migrations, err := db.LoadMigrations(migrationsFS, "sql")
	if err != nil {
		return nil, fmt.Errorf("load archive migrations: %w", err)
	}
	if err := db.Migrate(ctx, conn, migrationComponent, migrations); err != nil {
		return nil, err
	}
	return &Archive{db: conn}, nil
}

// Finalize implements orchestrator.Finalizer.
func (a *Archive) Finalize(ctx context.Context, st orchestrator.Status) error {
	return a.Save(ctx, st)
}

// Save upserts the session and its artifacts.
func (a *Archive) Save(ctx context.Context, st orchestrator.Status) error {
	res := st.Session.Result
	if res == nil {
		return fmt.Errorf("session %s is not terminal", st.Session.ID)
	}
	status, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions(session_id, owner_id, outcome, failed_phase, reason, rounds, created_at, finished_at, status)
		 VALUES (?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   outcome=excluded.outcome, failed_phase=excluded.failed_phase, reason=excluded.reason,
		   rounds=excluded.rounds, finished_at=excluded.finished_at, status=excluded.status`,
		st.Session.ID, st.Session.OwnerID, string(res.Outcome), res.FailedPhase, res.Reason,
		st.Session.ClarificationRounds, formatTime(st.Session.CreatedAt), formatTime(res.FinishedAt), string(status),
	); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	for _, art := range st.Artifacts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO artifacts(artifact_id, session_id, kind, name, content, produced_by, created_at)
			 VALUES (?,?,?,?,?,?,?)
			 ON CONFLICT(artifact_id) DO NOTHING`,
			art.ID, st.Session.ID, string(art.Kind), art.Name, art.Content, art.ProducedBy, formatTime(art.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert artifact %s: %w", art.ID, err)
		}
	}
	return tx.Commit()
}

// Get returns the archived status of a session.
func (a *Archive) Get(ctx context.Context, sessionID string) (orchestrator.Status, error) {
	var raw string
	err := a.db.QueryRowContext(ctx, `SELECT status FROM sessions WHERE session_id=?`, sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return orchestrator.Status{}, ErrNotFound
	}
	if err != nil {
		return orchestrator.Status{}, err
	}
	var st orchestrator.Status
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return orchestrator.Status{}, fmt.Errorf("decode archived status: %w", err)
	}
	return st, nil
}

// List returns archived sessions, most recently finished first.
func (a *Archive) List(ctx context.Context, f Filter) ([]Summary, error) {
	var (
		where []string
		args  []any
	)
	if f.OwnerID != "" {
		where = append(where, "owner_id=?")
		args = append(args, f.OwnerID)
	}
	if f.Outcome != "" {
		where = append(where, "outcome=?")
		args = append(args, string(f.Outcome))
	}
	q := `SELECT session_id, owner_id, outcome, failed_phase, reason, rounds, created_at, finished_at FROM sessions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY finished_at DESC, session_id"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			s                 Summary
			outcome           string
			created, finished string
		)
		if err := rows.Scan(&s.SessionID, &s.OwnerID, &outcome, &s.FailedPhase, &s.Reason, &s.Rounds, &created, &finished); err != nil {
			return nil, err
		}
		s.Outcome = orchestrator.Outcome(outcome)
		s.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		s.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Artifact returns one archived artifact of a session.
func (a *Archive) Artifact(ctx context.Context, sessionID, artifactID string) (orchestrator.Artifact, error) {
	var (
		art     orchestrator.Artifact
		kind    string
		created string
	)
	err := a.db.QueryRowContext(ctx,
		`SELECT artifact_id, session_id, kind, name, content, produced_by, created_at
		 FROM artifacts WHERE session_id=? AND artifact_id=?`,
		sessionID, artifactID,
	).Scan(&art.ID, &art.SessionID, &kind, &art.Name, &art.Content, &art.ProducedBy, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return orchestrator.Artifact{}, ErrNotFound
	}
	if err != nil {
		return orchestrator.Artifact{}, err
	}
	art.Kind = orchestrator.ArtifactKind(kind)
	art.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return art, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
