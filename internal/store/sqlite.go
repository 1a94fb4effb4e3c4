package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/recon-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	doc           TEXT NOT NULL,
	latest_run_id TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL REFERENCES sessions(id),
	mode         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	comparisons  INTEGER NOT NULL DEFAULT 0,
	partial      INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	summary      TEXT,
	started_at   DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS records (
	run_id                TEXT NOT NULL REFERENCES runs(id),
	seq                   INTEGER NOT NULL,
	session_id            TEXT NOT NULL,
	presentation_value_id TEXT NOT NULL,
	source_value_id       TEXT,
	category              TEXT NOT NULL,
	payload               TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id, started_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_records_session ON records(session_id, run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSession(ctx context.Context, sess *model.Session) error {
	doc, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal session")
	}
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, name, doc, latest_run_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   doc = excluded.doc,
		   latest_run_id = excluded.latest_run_id,
		   updated_at = excluded.updated_at`,
		sess.ID, sess.Name, string(doc), nullString(sess.LatestRunID), sess.CreatedAt, sess.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save session %s", sess.ID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var doc string
	var createdAt, updatedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT doc, created_at, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&doc, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "session %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", id)
	}

	var sess model.Session
	if err := json.Unmarshal([]byte(doc), &sess); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal session")
	}
	sess.CreatedAt, sess.UpdatedAt = createdAt.UTC(), updatedAt.UTC()
	return &sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(latest_run_id, '') FROM sessions ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.LatestRunID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		out = append(out, info)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, session_id, mode, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.SessionID, string(run.Mode), string(run.Status), run.StartedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.Run, records []model.ReconciliationRecord) error {
	summary, err := marshalSummary(run.Summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, comparisons = ?, partial = ?, error = ?, summary = ?, completed_at = ?
		 WHERE id = ?`,
		string(run.Status), run.Comparisons, run.Partial, run.Error, summary, completedAt(run), run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", run.ID)
	}
	if err := checkRowsAffected(res, "run", run.ID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (run_id, seq, session_id, presentation_value_id, source_value_id, category, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare record insert")
	}
	defer stmt.Close()

	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal record")
		}
		if _, err := stmt.ExecContext(ctx,
			r.RunID, r.Seq, run.SessionID, r.PresentationValueID, r.SourceValueID, string(r.Category), string(payload),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert record %d of run %s", r.Seq, run.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit run")
}

const runColumns = `id, session_id, mode, status, comparisons, partial, error, summary, started_at, completed_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, filter.SessionID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC, id LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) ListRecords(ctx context.Context, runID string) ([]model.ReconciliationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM records WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list records for run %s", runID)
	}
	defer rows.Close()

	var out []model.ReconciliationRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		var r model.ReconciliationRecord
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row scannable) (*model.Run, error) {
	var r model.Run
	var summary sql.NullString
	var completed sql.NullTime

	err := row.Scan(&r.ID, &r.SessionID, &r.Mode, &r.Status, &r.Comparisons, &r.Partial, &r.Error,
		&summary, &r.StartedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	r.StartedAt = r.StartedAt.UTC()
	if completed.Valid {
		t := completed.Time.UTC()
		r.CompletedAt = &t
	}
	if summary.Valid && summary.String != "" {
		r.Summary = &model.SessionSummary{}
		if err := json.Unmarshal([]byte(summary.String), r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	return &r, nil
}

func marshalSummary(s *model.SessionSummary) (*string, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	str := string(b)
	return &str, nil
}

func completedAt(run *model.Run) any {
	if run.CompletedAt == nil {
		return nil
	}
	return run.CompletedAt.UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
