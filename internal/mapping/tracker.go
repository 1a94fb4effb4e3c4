package mapping

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/policy"
)

var (
	// ErrInvalidMappingState is returned for a transition the lifecycle
	// does not allow. The mapping is left untouched.
	ErrInvalidMappingState = eris.New("mapping: invalid mapping state")
	// ErrMappingNotFound is returned for an unknown mapping id.
	ErrMappingNotFound = eris.New("mapping: not found")
)

// transitions lists the dispositions reachable from each state.
var transitions = map[model.Disposition][]model.Disposition{
	model.DispositionSuggested: {model.DispositionConfirmed, model.DispositionRejected, model.DispositionEdited},
	model.DispositionConfirmed: {model.DispositionEdited},
	model.DispositionEdited:    {model.DispositionConfirmed, model.DispositionRejected},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to model.Disposition) bool {
	for _, d := range transitions[from] {
		if d == to {
			return true
		}
	}
	return false
}

// ConfirmBoost is the confidence a mapping carries once a person confirms
// it: at least floor, never lower than before.
func ConfirmBoost(current, floor float64) float64 {
	return math.Max(current, floor)
}

// Edit overrides where a mapping points. Nil fields keep their value.
type Edit struct {
	SourceValueID *string        `json:"source_value_id,omitempty"`
	Locator       *model.Locator `json:"source_locator,omitempty"`
}

// Tracker applies user dispositions to a session's mappings. It is not
// safe for concurrent use; callers hold the session lock.
type Tracker struct {
	th       policy.Thresholds
	mappings []model.CandidateMapping
	now      func() time.Time
}

// NewTracker takes ownership of mappings.
func NewTracker(mappings []model.CandidateMapping, th policy.Thresholds) *Tracker {
	return &Tracker{th: th.WithDefaults(), mappings: mappings, now: time.Now}
}

// Mappings returns a copy of every mapping, rejected ones included.
func (t *Tracker) Mappings() []model.CandidateMapping {
	return append([]model.CandidateMapping(nil), t.mappings...)
}

// Active returns exactly the confirmed and edited mappings, in order.
func (t *Tracker) Active() []model.CandidateMapping {
	var out []model.CandidateMapping
	for _, m := range t.mappings {
		if m.Disposition.Reconcilable() {
			out = append(out, m)
		}
	}
	return out
}

// Get returns the mapping with id.
func (t *Tracker) Get(id string) (model.CandidateMapping, error) {
	i, err := t.index(id)
	if err != nil {
		return model.CandidateMapping{}, err
	}
	return t.mappings[i], nil
}

// Confirm marks a mapping confirmed and applies ConfirmBoost.
func (t *Tracker) Confirm(id string) (model.CandidateMapping, error) {
	return t.move(id, model.DispositionConfirmed, func(m *model.CandidateMapping) {
		m.SimilarityConfidence = ConfirmBoost(m.SimilarityConfidence, t.th.ConfirmBoost)
	})
}

// Reject takes a mapping out of the active set for good.
func (t *Tracker) Reject(id string) (model.CandidateMapping, error) {
	return t.move(id, model.DispositionRejected, nil)
}

// Edit repoints a mapping and resets its confidence to the neutral
// default. The generator's original score stays in GeneratorConfidence.
func (t *Tracker) Edit(id string, e Edit) (model.CandidateMapping, error) {
	if e.SourceValueID == nil && e.Locator == nil {
		return model.CandidateMapping{}, eris.Wrap(ErrInvalidMappingState, "edit changes nothing")
	}
	if e.SourceValueID != nil && *e.SourceValueID == "" {
		return model.CandidateMapping{}, eris.Wrap(ErrInvalidMappingState, "edit clears the source value")
	}
	return t.move(id, model.DispositionEdited, func(m *model.CandidateMapping) {
		if e.SourceValueID != nil {
			m.SourceValueID = *e.SourceValueID
		}
		if e.Locator != nil {
			loc := *e.Locator
			m.SourceLocator = &loc
		}
		m.SimilarityConfidence = t.th.EditResetConfidence
	})
}

// Add records a manual mapping as suggested. It fails when the
// presentation value already has an active mapping.
func (t *Tracker) Add(presentationID, sourceID string, loc *model.Locator) (model.CandidateMapping, error) {
	if presentationID == "" || sourceID == "" {
		return model.CandidateMapping{}, eris.Wrap(ErrInvalidMappingState, "manual mapping needs both value ids")
	}
	for _, m := range t.mappings {
		if m.PresentationValueID == presentationID && m.Disposition.Active() {
			return model.CandidateMapping{}, eris.Wrapf(ErrInvalidMappingState,
				"presentation value %s already has active mapping %s", presentationID, m.ID)
		}
	}
	m := model.CandidateMapping{
		ID:                   uuid.NewString(),
		PresentationValueID:  presentationID,
		SourceValueID:        sourceID,
		SourceLocator:        loc,
		SimilarityConfidence: t.th.EditResetConfidence,
		GeneratorConfidence:  t.th.EditResetConfidence,
		Rationale:            "added manually",
		Disposition:          model.DispositionSuggested,
		UpdatedAt:            t.now().UTC(),
	}
	t.mappings = append(t.mappings, m)
	return m, nil
}

// Regenerate replaces suggested and rejected mappings with fresh
// candidates. Confirmed and edited mappings survive, and candidates for
// presentation values they cover are dropped.
func (t *Tracker) Regenerate(candidates []model.CandidateMapping) []model.CandidateMapping {
	kept := make([]model.CandidateMapping, 0, len(t.mappings)+len(candidates))
	covered := make(map[string]struct{})
	for _, m := range t.mappings {
		if m.Disposition.Reconcilable() {
			kept = append(kept, m)
			covered[m.PresentationValueID] = struct{}{}
		}
	}
	for _, c := range candidates {
		if _, ok := covered[c.PresentationValueID]; ok {
			continue
		}
		covered[c.PresentationValueID] = struct{}{}
		kept = append(kept, c)
	}
	t.mappings = kept
	return t.Mappings()
}

func (t *Tracker) move(id string, to model.Disposition, apply func(*model.CandidateMapping)) (model.CandidateMapping, error) {
	i, err := t.index(id)
	if err != nil {
		return model.CandidateMapping{}, err
	}
	m := t.mappings[i]
	if !CanTransition(m.Disposition, to) {
		return model.CandidateMapping{}, eris.Wrapf(ErrInvalidMappingState, "mapping %s: %s → %s", id, m.Disposition, to)
	}
	if apply != nil {
		apply(&m)
	}
	m.Disposition = to
	m.UpdatedAt = t.now().UTC()
	t.mappings[i] = m
	return m, nil
}

func (t *Tracker) index(id string) (int, error) {
	for i, m := range t.mappings {
		if m.ID == id {
			return i, nil
		}
	}
	return -1, eris.Wrapf(ErrMappingNotFound, "mapping %s", id)
}
