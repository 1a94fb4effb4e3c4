package reconcile

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Session-level errors. They abort the operation and are returned to the
// caller, usually wrapped in a *StageError.
var (
	ErrExtractionUnavailable = eris.New("reconcile: extraction unavailable")
	ErrRunInProgress         = eris.New("reconcile: run already in progress for session")
	ErrSessionNotFound       = eris.New("reconcile: session not found")
	ErrValueNotFound         = eris.New("reconcile: value not found")
	ErrNoRuns                = eris.New("reconcile: session has no runs")
	ErrInvalidInput          = eris.New("reconcile: invalid input")
)

// Stages a fatal error can be attributed to.
const (
	StageLoad      = "load"
	StageExtract   = "extract"
	StagePlan      = "plan"
	StageExecute   = "execute"
	StagePersist   = "persist"
	StageMapping   = "mapping"
	StageUpdate    = "update"
	StageSummarize = "summarize"
)

// StageError carries enough context to retry a failed session operation.
type StageError struct {
	SessionID string
	Stage     string
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("session %s: %s: %v", e.SessionID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(sessionID, stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{SessionID: sessionID, Stage: stage, Err: err}
}
