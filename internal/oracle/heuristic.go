package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/normalize"
)

// Heuristic is a deterministic offline oracle. It judges equivalence from
// the normalized delta and business context alone, which makes it suitable
// for tests, demos and runs without API access.
type Heuristic struct {
	tol normalize.Tolerance
	// MinScore is the relatedness a source needs to be picked in a batch.
	MinScore float64
}

// NewHeuristic creates a Heuristic oracle using tol for numeric equality.
func NewHeuristic(tol normalize.Tolerance) *Heuristic {
	return &Heuristic{tol: tol, MinScore: 0.3}
}

// Compare implements Oracle.
func (h *Heuristic) Compare(_ context.Context, presentation, source Subject) (Verdict, error) {
	return h.judge(presentation, source), nil
}

// CompareBatch implements Oracle.
func (h *Heuristic) CompareBatch(ctx context.Context, presentation, sources []Subject) ([]Match, error) {
	out := make([]Match, len(presentation))
	for i, p := range presentation {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		best, bestScore := -1, h.MinScore
		for j, s := range sources {
			if score := h.relatedness(p, s); score > bestScore {
				best, bestScore = j, score
			}
		}
		if best < 0 {
			out[i] = Match{PresentationID: p.ID, Verdict: Verdict{Abstained: true, Rationale: "no corresponding source value found"}}
			continue
		}
		out[i] = Match{PresentationID: p.ID, SourceID: sources[best].ID, Verdict: h.judge(p, sources[best])}
	}
	return out, nil
}

// Score implements Scorer from category agreement and description overlap.
func (h *Heuristic) Score(ctx context.Context, presentation Subject, sources []Subject) ([]float64, error) {
	out := make([]float64, len(sources))
	for i, s := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = contextScore(presentation, s)
	}
	return out, nil
}

func contextScore(presentation, source Subject) float64 {
	score := 0.5 * normalize.TokenOverlap(presentation.Context.Description, source.Context.Description)
	pc, sc := presentation.Context.Category, source.Context.Category
	if pc != "" && strings.EqualFold(pc, sc) {
		score += 0.5
	}
	return score
}

// relatedness ranks sources in a batch: numeric closeness first, then
// context.
func (h *Heuristic) relatedness(p, s Subject) float64 {
	sem := contextScore(p, s)
	d := normalize.Compare(p.Normalized, s.Normalized, h.tol)
	switch {
	case !d.Comparable:
		return 0.5 * sem
	case d.Exact:
		return 0.6 + 0.4*sem
	case d.Near:
		return 0.45 + 0.4*sem
	default:
		return 0.5 * sem
	}
}

func (h *Heuristic) judge(p, s Subject) Verdict {
	d := normalize.Compare(p.Normalized, s.Normalized, h.tol)
	if !d.Comparable {
		return Verdict{Abstained: true, Rationale: "values are not comparable"}
	}

	switch d.Kind {
	case model.DiscrepancyNone:
		return Verdict{Equivalent: true, Confidence: 0.95, Rationale: fmt.Sprintf("%s and %s agree", p.Raw, s.Raw)}
	case model.DiscrepancyRounding:
		return Verdict{Equivalent: true, Confidence: 0.85, Rationale: fmt.Sprintf("%s and %s differ by %.2f%%, within display rounding", p.Raw, s.Raw, d.RelativeDifference*100)}
	case model.DiscrepancyRepresentation:
		return Verdict{Equivalent: true, Confidence: 0.8, Rationale: "same text with different punctuation or spacing"}
	case model.DiscrepancyUnit:
		if d.Exact {
			return Verdict{Equivalent: true, Confidence: 0.6, Rationale: fmt.Sprintf("same figure in different units (%s vs %s)", p.Normalized.Unit, s.Normalized.Unit)}
		}
		return Verdict{Equivalent: false, Confidence: 0.7, Rationale: "different figures in different units"}
	case model.DiscrepancyScale:
		return Verdict{Equivalent: true, Confidence: 0.6, Rationale: fmt.Sprintf("%s and %s differ only by a power of ten", p.Raw, s.Raw)}
	default:
		if !p.Normalized.IsNumeric() {
			return Verdict{Equivalent: false, Confidence: 0.9, Rationale: fmt.Sprintf("%q and %q are different text", p.Raw, s.Raw)}
		}
		return Verdict{Equivalent: false, Confidence: 0.9, Rationale: fmt.Sprintf("%s and %s differ by %.1f%%", p.Raw, s.Raw, d.RelativeDifference*100)}
	}
}
