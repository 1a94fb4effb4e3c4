package model

import "time"

// Mode selects how the executor builds its pairs.
type Mode string

const (
	// ModeMapped reconciles confirmed or edited candidate mappings only.
	ModeMapped Mode = "mapped"
	// ModeDirect checks every presentation value against every source value.
	ModeDirect Mode = "direct"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeMapped || m == ModeDirect
}

// RunStatus represents the state of a reconciliation run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusCanceled  RunStatus = "canceled"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one reconciliation pass over a session. Its records are keyed by
// (SessionID, ID).
type Run struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	Mode        Mode            `json:"mode"`
	Status      RunStatus       `json:"status"`
	Comparisons int             `json:"comparisons"`
	Partial     bool            `json:"partial"`
	Error       string          `json:"error,omitempty"`
	Summary     *SessionSummary `json:"summary,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Duration returns how long the run took, or zero while it is running.
func (r Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
