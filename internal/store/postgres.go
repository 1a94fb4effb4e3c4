package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/recon-cli/internal/db"
	"github.com/sells-group/recon-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// recordColumns is the COPY column list for records.
var recordColumns = []string{
	"run_id", "seq", "session_id", "presentation_value_id", "source_value_id", "category", "payload",
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	doc           JSONB NOT NULL,
	latest_run_id TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	session_id   TEXT NOT NULL REFERENCES sessions(id),
	mode         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	comparisons  INTEGER NOT NULL DEFAULT 0,
	partial      BOOLEAN NOT NULL DEFAULT false,
	error        TEXT NOT NULL DEFAULT '',
	summary      JSONB,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS records (
	run_id                TEXT NOT NULL REFERENCES runs(id),
	seq                   INTEGER NOT NULL,
	session_id            TEXT NOT NULL,
	presentation_value_id TEXT NOT NULL,
	source_value_id       TEXT,
	category              TEXT NOT NULL,
	payload               JSONB NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_records_session ON records(session_id, run_id);
CREATE INDEX IF NOT EXISTS idx_records_category ON records(run_id, category);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, sess *model.Session) error {
	doc, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal session")
	}
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, name, doc, latest_run_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   doc = EXCLUDED.doc,
		   latest_run_id = EXCLUDED.latest_run_id,
		   updated_at = EXCLUDED.updated_at`,
		sess.ID, sess.Name, doc, nullString(sess.LatestRunID), sess.CreatedAt, sess.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save session %s", sess.ID)
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var doc []byte
	var createdAt, updatedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT doc, created_at, updated_at FROM sessions WHERE id = $1`, id,
	).Scan(&doc, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "session %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", id)
	}

	var sess model.Session
	if err := json.Unmarshal(doc, &sess); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal session")
	}
	sess.CreatedAt, sess.UpdatedAt = createdAt.UTC(), updatedAt.UTC()
	return &sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, COALESCE(latest_run_id, '') FROM sessions ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.LatestRunID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		out = append(out, info)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, session_id, mode, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.SessionID, string(run.Mode), string(run.Status), run.StartedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

// FinishRun updates the run and COPYs its records in one transaction.
func (s *PostgresStore) FinishRun(ctx context.Context, run *model.Run, records []model.ReconciliationRecord) error {
	var summary []byte
	if run.Summary != nil {
		b, err := json.Marshal(run.Summary)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal summary")
		}
		summary = b
	}

	rows := make([][]any, len(records))
	for i, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal record")
		}
		rows[i] = []any{r.RunID, int32(r.Seq), run.SessionID, r.PresentationValueID, r.SourceValueID, string(r.Category), payload}
	}

	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE runs SET status = $1, comparisons = $2, partial = $3, error = $4, summary = $5, completed_at = $6
			 WHERE id = $7`,
			string(run.Status), run.Comparisons, run.Partial, run.Error, summary, run.CompletedAt, run.ID,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: finish run %s", run.ID)
		}
		if tag.RowsAffected() == 0 {
			return eris.Wrapf(ErrNotFound, "run %s", run.ID)
		}
		_, err = db.CopyFrom(ctx, tx, "records", recordColumns, rows)
		return err
	})
}

const pgRunColumns = `id, session_id, mode, status, comparisons, partial, error, summary, started_at, completed_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgRunColumns+` FROM runs WHERE id = $1`, runID)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRunColumns+` FROM runs
		 WHERE ($1 = '' OR session_id = $1) AND ($2 = '' OR status = $2)
		 ORDER BY started_at DESC, id LIMIT $3 OFFSET $4`,
		filter.SessionID, string(filter.Status), listLimit(filter.Limit), filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) ListRecords(ctx context.Context, runID string) ([]model.ReconciliationRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT payload FROM records WHERE run_id = $1 ORDER BY seq`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list records for run %s", runID)
	}
	defer rows.Close()

	var out []model.ReconciliationRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		var r model.ReconciliationRecord
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var mode, status string
	var comparisons int32
	var summary []byte

	if err := row.Scan(&r.ID, &r.SessionID, &mode, &status, &comparisons, &r.Partial, &r.Error,
		&summary, &r.StartedAt, &r.CompletedAt); err != nil {
		return nil, err
	}
	r.Mode, r.Status, r.Comparisons = model.Mode(mode), model.RunStatus(status), int(comparisons)
	if len(summary) > 0 {
		r.Summary = &model.SessionSummary{}
		if err := json.Unmarshal(summary, r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	return &r, nil
}
