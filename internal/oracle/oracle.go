// Package oracle defines the semantic-equivalence judgment the executor
// relies on and provides Claude-backed and offline implementations.
package oracle

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/recon-cli/internal/model"
)

// Errors an oracle call can fail with. The executor absorbs all of them
// into an unverifiable record.
var (
	ErrTimeout           = eris.New("oracle: call timed out")
	ErrMalformedResponse = eris.New("oracle: malformed response")
	ErrUnavailable       = eris.New("oracle: unavailable")
)

// Subject is one side of a comparison as the oracle sees it.
type Subject struct {
	ID         string                `json:"id"`
	Raw        string                `json:"raw"`
	DataType   model.DataType        `json:"data_type"`
	Normalized model.NormalizedValue `json:"normalized"`
	Context    model.BusinessContext `json:"context"`
	Locator    string                `json:"locator,omitempty"`
}

// NewSubject pairs a value with its normalized form.
func NewSubject(v model.ExtractedValue, nv model.NormalizedValue) Subject {
	return Subject{
		ID:         v.ID,
		Raw:        v.RawText,
		DataType:   v.DataType,
		Normalized: nv,
		Context:    v.Context,
		Locator:    v.Locator.String(),
	}
}

// Verdict is the oracle's judgment on one pair. Abstained means the oracle
// declined to judge; Equivalent and Confidence are then meaningless.
type Verdict struct {
	Equivalent bool    `json:"equivalent"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
	Abstained  bool    `json:"abstained,omitempty"`
}

// Match is the oracle's pick for one presentation value in a batch call.
// SourceID is empty when no source value fits.
type Match struct {
	PresentationID string  `json:"presentation_id"`
	SourceID       string  `json:"source_id,omitempty"`
	Verdict        Verdict `json:"verdict"`
}

// Oracle judges whether values denote the same fact.
type Oracle interface {
	// Compare judges a single presentation/source pair.
	Compare(ctx context.Context, presentation, source Subject) (Verdict, error)
	// CompareBatch finds the best source for each presentation value and
	// judges it. The result has one Match per presentation value, in input
	// order.
	CompareBatch(ctx context.Context, presentation, sources []Subject) ([]Match, error)
}

// Scorer rates how semantically related each source value is to one
// presentation value, in [0,1]. The result is parallel to sources. The
// mapping generator blends it into its similarity score.
type Scorer interface {
	Score(ctx context.Context, presentation Subject, sources []Subject) ([]float64, error)
}

// AsScorer returns o as a Scorer, or nil when o cannot score. A Guard
// scores only when the oracle it wraps does, and keeps its limits on the
// scoring calls.
func AsScorer(o Oracle) Scorer {
	switch v := o.(type) {
	case nil:
		return nil
	case *Guard:
		if AsScorer(v.next) == nil {
			return nil
		}
		return v
	case Scorer:
		return v
	default:
		return nil
	}
}

// align orders matches to follow presentation and fills gaps with
// abstentions, so a short or shuffled reply never drops a value.
func align(presentation []Subject, matches []Match, sources []Subject) []Match {
	known := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		known[s.ID] = struct{}{}
	}
	byID := make(map[string]Match, len(matches))
	for _, m := range matches {
		if _, dup := byID[m.PresentationID]; !dup {
			byID[m.PresentationID] = m
		}
	}

	out := make([]Match, len(presentation))
	for i, p := range presentation {
		m, ok := byID[p.ID]
		switch {
		case !ok:
			m = Match{PresentationID: p.ID, Verdict: Verdict{Abstained: true, Rationale: "no result returned for value"}}
		case m.SourceID != "":
			if _, exists := known[m.SourceID]; !exists {
				m = Match{PresentationID: p.ID, Verdict: Verdict{Abstained: true, Rationale: "oracle named unknown source " + m.SourceID}}
			}
		case !m.Verdict.Abstained:
			m.Verdict.Abstained = true
			if m.Verdict.Rationale == "" {
				m.Verdict.Rationale = "no corresponding source value found"
			}
		}
		out[i] = m
	}
	return out
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
