// Package store persists sessions, runs and reconciliation records.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/recon-cli/internal/model"
)

// ErrNotFound is returned when a session or run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	SessionID string          `json:"session_id,omitempty"`
	Status    model.RunStatus `json:"status,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Offset    int             `json:"offset,omitempty"`
}

// SessionInfo is a session listing row.
type SessionInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	LatestRunID string `json:"latest_run_id,omitempty"`
}

// Store defines the persistence interface for reconciliation sessions.
// Records are append-only: a run's records are written once, together
// with its final status.
type Store interface {
	// Sessions
	SaveSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context) ([]SessionInfo, error)

	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, run *model.Run, records []model.ReconciliationRecord) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Records
	ListRecords(ctx context.Context, runID string) ([]model.ReconciliationRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
