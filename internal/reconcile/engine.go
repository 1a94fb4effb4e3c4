package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/aggregate"
	"github.com/sells-group/recon-cli/internal/mapping"
	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/policy"
	"github.com/sells-group/recon-cli/internal/store"
)

// Options selects what a run reconciles.
type Options struct {
	Mode model.Mode `json:"mode"`
	// Pairs overrides the confirmed mappings in mapped mode.
	Pairs []model.PairRef `json:"pairs,omitempty"`
}

// Outcome is what a run produced.
type Outcome struct {
	Run     *model.Run                   `json:"run"`
	Records []model.ReconciliationRecord `json:"records"`
	Summary model.SessionSummary         `json:"summary"`
}

// Status reports where a session stands.
type Status struct {
	SessionID          string     `json:"session_id"`
	ExtractionComplete bool       `json:"extraction_complete"`
	Running            bool       `json:"running"`
	LatestRun          *model.Run `json:"latest_run,omitempty"`
	Stale              []string   `json:"stale,omitempty"`
	ActiveMappings     int        `json:"active_mappings"`
	PresentationValues int        `json:"presentation_values"`
	SourceValues       int        `json:"source_values"`
}

// Engine coordinates sessions, mappings and runs. Mutations of one
// session are serialized by a per-session mutex; at most one run per
// session is in flight.
type Engine struct {
	store      store.Store
	gen        *mapping.Generator
	exec       *Executor
	runTimeout time.Duration

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	running map[string]string

	now   func() time.Time
	newID func() string
}

// NewEngine wires an engine. runTimeout of zero leaves runs uncapped.
func NewEngine(st store.Store, gen *mapping.Generator, exec *Executor, runTimeout time.Duration) *Engine {
	return &Engine{
		store:      st,
		gen:        gen,
		exec:       exec,
		runTimeout: runTimeout,
		locks:      make(map[string]*sync.Mutex),
		running:    make(map[string]string),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

func (e *Engine) lock(sessionID string) func() {
	e.mu.Lock()
	l, ok := e.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[sessionID] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// acquireRun claims the run slot for a session or fails fast.
func (e *Engine) acquireRun(sessionID, runID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if other, busy := e.running[sessionID]; busy {
		return eris.Wrapf(ErrRunInProgress, "run %s", other)
	}
	e.running[sessionID] = runID
	return nil
}

func (e *Engine) releaseRun(sessionID string) {
	e.mu.Lock()
	delete(e.running, sessionID)
	e.mu.Unlock()
}

func (e *Engine) isRunning(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[sessionID]
	return ok
}

func (e *Engine) load(ctx context.Context, id string) (*model.Session, error) {
	s, err := e.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, stageErr(id, StageLoad, eris.Wrapf(ErrSessionNotFound, "session %s", id))
	}
	if err != nil {
		return nil, stageErr(id, StageLoad, err)
	}
	return s, nil
}

// Session returns the stored session.
func (e *Engine) Session(ctx context.Context, id string) (*model.Session, error) {
	return e.load(ctx, id)
}

// Sessions lists stored sessions.
func (e *Engine) Sessions(ctx context.Context) ([]store.SessionInfo, error) {
	return e.store.ListSessions(ctx)
}

// Import creates a session or replaces its values. Mappings that still
// point at existing values survive a re-import.
func (e *Engine) Import(ctx context.Context, in *model.Session) (*model.Session, error) {
	if in.ID == "" {
		return nil, eris.Wrap(ErrInvalidInput, "session id is required")
	}
	if err := validateValues(in); err != nil {
		return nil, stageErr(in.ID, StageLoad, err)
	}
	unlock := e.lock(in.ID)
	defer unlock()

	sess, err := e.store.GetSession(ctx, in.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		sess = &model.Session{ID: in.ID}
	case err != nil:
		return nil, stageErr(in.ID, StageLoad, err)
	}

	if in.Name != "" {
		sess.Name = in.Name
	}
	sess.Presentation = in.Presentation
	sess.Sources = in.Sources
	sess.ExtractionComplete = in.ExtractionComplete
	sess.Mappings = keepResolvable(append(sess.Mappings, in.Mappings...), sess)
	sess.Stale = nil

	if err := e.store.SaveSession(ctx, sess); err != nil {
		return nil, stageErr(in.ID, StagePersist, err)
	}
	zap.L().Info("reconcile: session imported",
		zap.String("session_id", sess.ID),
		zap.Int("presentation_values", len(sess.Presentation)),
		zap.Int("source_values", len(sess.Sources)),
		zap.Bool("extraction_complete", sess.ExtractionComplete),
	)
	return sess, nil
}

func validateValues(s *model.Session) error {
	for _, origin := range []model.Origin{model.OriginPresentation, model.OriginSource} {
		seen := make(map[string]struct{})
		for i, v := range s.Values(origin) {
			if v.ID == "" {
				return eris.Wrapf(ErrInvalidInput, "%s value %d has no id", origin, i)
			}
			if _, dup := seen[v.ID]; dup {
				return eris.Wrapf(ErrInvalidInput, "duplicate %s value id %s", origin, v.ID)
			}
			if v.Origin != "" && v.Origin != origin {
				return eris.Wrapf(ErrInvalidInput, "value %s listed as %s but tagged %s", v.ID, origin, v.Origin)
			}
			seen[v.ID] = struct{}{}
		}
	}
	for i := range s.Presentation {
		s.Presentation[i].Origin = model.OriginPresentation
	}
	for i := range s.Sources {
		s.Sources[i].Origin = model.OriginSource
	}
	return nil
}

// keepResolvable drops mappings whose values are gone and any second
// active mapping for the same presentation value.
func keepResolvable(ms []model.CandidateMapping, s *model.Session) []model.CandidateMapping {
	out := make([]model.CandidateMapping, 0, len(ms))
	active := make(map[string]struct{})
	for _, m := range ms {
		if _, ok := s.FindValue(model.OriginPresentation, m.PresentationValueID); !ok {
			continue
		}
		if _, ok := s.FindValue(model.OriginSource, m.SourceValueID); !ok {
			continue
		}
		if m.Disposition.Active() {
			if _, dup := active[m.PresentationValueID]; dup {
				continue
			}
			active[m.PresentationValueID] = struct{}{}
		}
		out = append(out, m)
	}
	return out
}

// Suggest regenerates candidate mappings. Confirmed and edited mappings
// are kept as they are.
func (e *Engine) Suggest(ctx context.Context, sessionID string) ([]model.CandidateMapping, error) {
	unlock := e.lock(sessionID)
	defer unlock()

	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cands, err := e.gen.Generate(ctx, sess.Presentation, sess.Sources)
	if err != nil {
		return nil, stageErr(sessionID, StageMapping, err)
	}
	tr := mapping.NewTracker(sess.Mappings, e.exec.th)
	sess.Mappings = tr.Regenerate(cands)
	if err := e.store.SaveSession(ctx, sess); err != nil {
		return nil, stageErr(sessionID, StagePersist, err)
	}
	return sess.Mappings, nil
}

// Mappings returns every mapping of a session.
func (e *Engine) Mappings(ctx context.Context, sessionID string) ([]model.CandidateMapping, error) {
	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Mappings, nil
}

// Confirm confirms a mapping.
func (e *Engine) Confirm(ctx context.Context, sessionID, mappingID string) (model.CandidateMapping, error) {
	return e.mutateMapping(ctx, sessionID, func(_ *model.Session, tr *mapping.Tracker) (model.CandidateMapping, error) {
		return tr.Confirm(mappingID)
	})
}

// Reject rejects a mapping.
func (e *Engine) Reject(ctx context.Context, sessionID, mappingID string) (model.CandidateMapping, error) {
	return e.mutateMapping(ctx, sessionID, func(_ *model.Session, tr *mapping.Tracker) (model.CandidateMapping, error) {
		return tr.Reject(mappingID)
	})
}

// Edit repoints a mapping at another source value or locator.
func (e *Engine) Edit(ctx context.Context, sessionID, mappingID string, ed mapping.Edit) (model.CandidateMapping, error) {
	return e.mutateMapping(ctx, sessionID, func(s *model.Session, tr *mapping.Tracker) (model.CandidateMapping, error) {
		if ed.SourceValueID != nil {
			if _, ok := s.FindValue(model.OriginSource, *ed.SourceValueID); !ok {
				return model.CandidateMapping{}, eris.Wrapf(ErrValueNotFound, "source value %s", *ed.SourceValueID)
			}
		}
		return tr.Edit(mappingID, ed)
	})
}

// AddMapping records a manual mapping.
func (e *Engine) AddMapping(ctx context.Context, sessionID string, ref model.PairRef) (model.CandidateMapping, error) {
	return e.mutateMapping(ctx, sessionID, func(s *model.Session, tr *mapping.Tracker) (model.CandidateMapping, error) {
		if _, ok := s.FindValue(model.OriginPresentation, ref.PresentationValueID); !ok {
			return model.CandidateMapping{}, eris.Wrapf(ErrValueNotFound, "presentation value %s", ref.PresentationValueID)
		}
		i, ok := s.FindValue(model.OriginSource, ref.SourceValueID)
		if !ok {
			return model.CandidateMapping{}, eris.Wrapf(ErrValueNotFound, "source value %s", ref.SourceValueID)
		}
		loc := s.Sources[i].Locator
		return tr.Add(ref.PresentationValueID, ref.SourceValueID, &loc)
	})
}

func (e *Engine) mutateMapping(ctx context.Context, sessionID string, fn func(*model.Session, *mapping.Tracker) (model.CandidateMapping, error)) (model.CandidateMapping, error) {
	unlock := e.lock(sessionID)
	defer unlock()

	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return model.CandidateMapping{}, err
	}
	tr := mapping.NewTracker(sess.Mappings, e.exec.th)
	m, err := fn(sess, tr)
	if err != nil {
		return model.CandidateMapping{}, err
	}
	sess.Mappings = tr.Mappings()
	if err := e.store.SaveSession(ctx, sess); err != nil {
		return model.CandidateMapping{}, stageErr(sessionID, StagePersist, err)
	}
	zap.L().Info("reconcile: mapping updated",
		zap.String("session_id", sessionID),
		zap.String("mapping_id", m.ID),
		zap.String("disposition", string(m.Disposition)),
	)
	return m, nil
}

// UpdateValue applies a user edit to one extracted value and marks it
// stale. Records of earlier runs are left untouched.
func (e *Engine) UpdateValue(ctx context.Context, sessionID string, origin model.Origin, valueID string, patch model.ValuePatch) (model.ExtractedValue, error) {
	if !origin.Valid() {
		return model.ExtractedValue{}, eris.Wrapf(ErrInvalidInput, "unknown origin %q", origin)
	}
	if patch.Empty() {
		return model.ExtractedValue{}, eris.Wrap(ErrInvalidInput, "patch changes nothing")
	}
	unlock := e.lock(sessionID)
	defer unlock()

	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return model.ExtractedValue{}, err
	}
	i, ok := sess.FindValue(origin, valueID)
	if !ok {
		return model.ExtractedValue{}, stageErr(sessionID, StageUpdate, eris.Wrapf(ErrValueNotFound, "%s value %s", origin, valueID))
	}

	values := sess.Values(origin)
	values[i] = patch.Apply(values[i], e.now())
	sess.MarkStale(valueID)
	if err := e.store.SaveSession(ctx, sess); err != nil {
		return model.ExtractedValue{}, stageErr(sessionID, StagePersist, err)
	}
	zap.L().Info("reconcile: value updated",
		zap.String("session_id", sessionID),
		zap.String("origin", string(origin)),
		zap.String("value_id", valueID),
	)
	return values[i], nil
}

// Reconcile runs one reconciliation over a snapshot of the session. A
// second call for the same session while one is in flight fails with
// ErrRunInProgress. Cancellation persists the completed batches as a
// partial, canceled run and returns the outcome with an error wrapping
// ctx.Err().
func (e *Engine) Reconcile(ctx context.Context, sessionID string, opts Options) (*Outcome, error) {
	if opts.Mode == "" {
		opts.Mode = model.ModeMapped
	}
	if !opts.Mode.Valid() {
		return nil, stageErr(sessionID, StagePlan, eris.Wrapf(ErrInvalidInput, "unknown mode %q", opts.Mode))
	}

	runID := e.newID()
	if err := e.acquireRun(sessionID, runID); err != nil {
		return nil, stageErr(sessionID, StageExecute, err)
	}
	defer e.releaseRun(sessionID)

	snap, err := e.snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !snap.ExtractionComplete || len(snap.Presentation) == 0 {
		return nil, stageErr(sessionID, StageExtract, eris.Wrapf(ErrExtractionUnavailable, "%d presentation values, extraction complete %t",
			len(snap.Presentation), snap.ExtractionComplete))
	}

	plan, err := buildPlan(snap, runID, opts)
	if err != nil {
		return nil, stageErr(sessionID, StagePlan, err)
	}

	run := &model.Run{
		ID:        runID,
		SessionID: sessionID,
		Mode:      opts.Mode,
		Status:    model.RunStatusRunning,
		StartedAt: e.now().UTC(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, stageErr(sessionID, StagePersist, err)
	}
	zap.L().Info("reconcile: run started",
		zap.String("session_id", sessionID),
		zap.String("run_id", runID),
		zap.String("mode", string(opts.Mode)),
	)

	execCtx := ctx
	if e.runTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.runTimeout)
		defer cancel()
	}
	res, execErr := e.exec.Execute(execCtx, plan)

	summary := aggregate.Aggregate(runID, res.Records, len(snap.Presentation), e.exec.th)
	done := e.now().UTC()
	run.Comparisons = res.Comparisons
	run.Partial = res.Partial
	run.Summary = &summary
	run.CompletedAt = &done
	run.Status = model.RunStatusCompleted
	if execErr != nil {
		run.Status = model.RunStatusCanceled
		if !errors.Is(execErr, context.Canceled) && !errors.Is(execErr, context.DeadlineExceeded) {
			run.Status = model.RunStatusFailed
		}
		run.Error = execErr.Error()
	}

	// Persist even when the caller canceled; the completed batches are the
	// audit trail of this run.
	persistCtx := context.WithoutCancel(ctx)
	if err := e.store.FinishRun(persistCtx, run, res.Records); err != nil {
		return nil, stageErr(sessionID, StagePersist, err)
	}
	if err := e.markLatest(persistCtx, sessionID, runID, snap.Stale); err != nil {
		return nil, err
	}

	zap.L().Info("reconcile: run finished",
		zap.String("session_id", sessionID),
		zap.String("run_id", runID),
		zap.String("status", string(run.Status)),
		zap.Int("records", summary.Total),
		zap.Float64("accuracy", summary.OverallAccuracy),
		zap.String("risk", string(summary.RiskLevel)),
		zap.Duration("duration", run.Duration()),
	)

	out := &Outcome{Run: run, Records: res.Records, Summary: summary}
	if execErr != nil {
		return out, stageErr(sessionID, StageExecute, execErr)
	}
	return out, nil
}

func (e *Engine) snapshot(ctx context.Context, sessionID string) (*model.Session, error) {
	unlock := e.lock(sessionID)
	defer unlock()
	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// markLatest points the session at runID and clears the stale marks the
// run consumed. Values edited during the run stay stale.
func (e *Engine) markLatest(ctx context.Context, sessionID, runID string, consumed []string) error {
	unlock := e.lock(sessionID)
	defer unlock()

	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.LatestRunID = runID
	if len(consumed) > 0 {
		used := make(map[string]struct{}, len(consumed))
		for _, id := range consumed {
			used[id] = struct{}{}
		}
		var still []string
		for _, id := range sess.Stale {
			if _, ok := used[id]; !ok {
				still = append(still, id)
			}
		}
		sess.Stale = still
	}
	return stageErr(sessionID, StagePersist, e.store.SaveSession(ctx, sess))
}

// buildPlan turns a snapshot into executor input.
func buildPlan(s *model.Session, runID string, opts Options) (Plan, error) {
	plan := Plan{RunID: runID, Mode: opts.Mode}
	if opts.Mode == model.ModeDirect {
		plan.Presentation = s.Presentation
		plan.Sources = s.Sources
		return plan, nil
	}

	if len(opts.Pairs) > 0 {
		for _, ref := range opts.Pairs {
			pair, err := resolvePair(s, ref)
			if err != nil {
				return Plan{}, err
			}
			plan.Pairs = append(plan.Pairs, pair)
		}
		return plan, nil
	}

	for _, m := range mapping.NewTracker(s.Mappings, policy.Default()).Active() {
		pair, err := resolvePair(s, model.PairRef{PresentationValueID: m.PresentationValueID, SourceValueID: m.SourceValueID})
		if err != nil {
			return Plan{}, err
		}
		pair.MappingID = m.ID
		plan.Pairs = append(plan.Pairs, pair)
	}
	return plan, nil
}

func resolvePair(s *model.Session, ref model.PairRef) (model.Pair, error) {
	pi, ok := s.FindValue(model.OriginPresentation, ref.PresentationValueID)
	if !ok {
		return model.Pair{}, eris.Wrapf(ErrValueNotFound, "presentation value %s", ref.PresentationValueID)
	}
	pair := model.Pair{Presentation: s.Presentation[pi]}
	if ref.SourceValueID == "" {
		return pair, nil
	}
	si, ok := s.FindValue(model.OriginSource, ref.SourceValueID)
	if !ok {
		return model.Pair{}, eris.Wrapf(ErrValueNotFound, "source value %s", ref.SourceValueID)
	}
	src := s.Sources[si]
	pair.Source = &src
	return pair, nil
}

// Summary returns the summary of the session's latest run.
func (e *Engine) Summary(ctx context.Context, sessionID string) (model.SessionSummary, error) {
	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return model.SessionSummary{}, err
	}
	if sess.LatestRunID == "" {
		return model.SessionSummary{}, stageErr(sessionID, StageSummarize, eris.Wrapf(ErrNoRuns, "session %s", sessionID))
	}
	run, err := e.store.GetRun(ctx, sess.LatestRunID)
	if err != nil {
		return model.SessionSummary{}, stageErr(sessionID, StageSummarize, err)
	}
	if run.Summary == nil {
		return model.SessionSummary{}, stageErr(sessionID, StageSummarize, eris.Errorf("run %s has no summary", run.ID))
	}
	return *run.Summary, nil
}

// Runs lists runs of a session, newest first.
func (e *Engine) Runs(ctx context.Context, sessionID string, limit int) ([]model.Run, error) {
	if _, err := e.load(ctx, sessionID); err != nil {
		return nil, err
	}
	return e.store.ListRuns(ctx, store.RunFilter{SessionID: sessionID, Limit: limit})
}

// Run returns one run.
func (e *Engine) Run(ctx context.Context, runID string) (*model.Run, error) {
	return e.store.GetRun(ctx, runID)
}

// Records returns the records of a run in sequence order.
func (e *Engine) Records(ctx context.Context, runID string) ([]model.ReconciliationRecord, error) {
	if _, err := e.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return e.store.ListRecords(ctx, runID)
}

// Status reports the session's extraction state, latest run and stale
// values.
func (e *Engine) Status(ctx context.Context, sessionID string) (*Status, error) {
	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	st := &Status{
		SessionID:          sessionID,
		ExtractionComplete: sess.ExtractionComplete,
		Running:            e.isRunning(sessionID),
		Stale:              sess.Stale,
		PresentationValues: len(sess.Presentation),
		SourceValues:       len(sess.Sources),
	}
	for _, m := range sess.Mappings {
		if m.Disposition.Reconcilable() {
			st.ActiveMappings++
		}
	}
	if sess.LatestRunID != "" {
		run, err := e.store.GetRun(ctx, sess.LatestRunID)
		if err != nil {
			return nil, stageErr(sessionID, StageLoad, err)
		}
		st.LatestRun = run
	}
	return st, nil
}
