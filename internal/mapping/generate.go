// Package mapping proposes and tracks links between presentation values
// and the source values they were derived from.
package mapping

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/normalize"
	"github.com/sells-group/recon-cli/internal/oracle"
	"github.com/sells-group/recon-cli/internal/policy"
)

// Blend weights. Numeric proximity dominates when both sides read as
// numbers of compatible type; context dominates otherwise.
const (
	numericWeight         = 0.6
	numericContextWeight  = 0.25
	numericSemanticWeight = 0.15

	textContextWeight  = 0.6
	textSemanticWeight = 0.4

	// proximitySpan is the relative difference at which numeric proximity
	// reaches zero.
	proximitySpan = 0.25

	maxAlternatives = 3
)

// Generator scores every presentation/source pair and proposes the best
// source for each presentation value.
type Generator struct {
	th          policy.Thresholds
	scorer      oracle.Scorer
	concurrency int
	newID       func() string
	now         func() time.Time
}

// NewGenerator creates a Generator. scorer may be nil.
func NewGenerator(th policy.Thresholds, scorer oracle.Scorer, concurrency int) *Generator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Generator{
		th:          th.WithDefaults(),
		scorer:      scorer,
		concurrency: concurrency,
		newID:       uuid.NewString,
		now:         time.Now,
	}
}

type prepared struct {
	value model.ExtractedValue
	subj  oracle.Subject
}

type scored struct {
	source    int
	score     float64
	rationale string
	category  bool
}

// Generate returns at most one suggested mapping per presentation value,
// sorted by confidence descending. Presentation values with no candidate
// at or above the floor get no mapping.
func (g *Generator) Generate(ctx context.Context, presentation, sources []model.ExtractedValue) ([]model.CandidateMapping, error) {
	srcs := prepare(sources)
	pres := prepare(presentation)

	results := make([]*model.CandidateMapping, len(pres))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i := range pres {
		eg.Go(func() error {
			m, err := g.best(ctx, pres[i], srcs)
			if err != nil {
				return err
			}
			results[i] = m
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.CandidateMapping, 0, len(results))
	for _, m := range results {
		if m != nil {
			out = append(out, *m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SimilarityConfidence > out[j].SimilarityConfidence
	})

	zap.L().Info("mapping: generated candidates",
		zap.Int("presentation_values", len(presentation)),
		zap.Int("source_values", len(sources)),
		zap.Int("candidates", len(out)),
	)
	return out, nil
}

func prepare(values []model.ExtractedValue) []prepared {
	out := make([]prepared, len(values))
	for i, v := range values {
		out[i] = prepared{value: v, subj: oracle.NewSubject(v, normalize.Normalize(v.RawText, v.DataType))}
	}
	return out
}

func (g *Generator) best(ctx context.Context, p prepared, srcs []prepared) (*model.CandidateMapping, error) {
	semantic := g.semantic(ctx, p, srcs)
	var cands []scored
	for j, s := range srcs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var sem *float64
		if semantic != nil {
			sem = &semantic[j]
		}
		c := g.score(p, s, sem)
		if c.score < g.th.CandidateFloor {
			continue
		}
		c.source = j
		cands = append(cands, c)
	}
	if len(cands) == 0 {
		return nil, nil
	}

	// Highest score first; within the tie window prefer a category match,
	// then source order.
	top := cands[0].score
	for _, c := range cands[1:] {
		top = math.Max(top, c.score)
	}
	pick := -1
	for i, c := range cands {
		if top-c.score > g.th.TieEpsilon {
			continue
		}
		if pick < 0 || (c.category && !cands[pick].category) {
			pick = i
		}
	}
	chosen := cands[pick]

	rest := make([]scored, 0, len(cands)-1)
	for i, c := range cands {
		if i != pick {
			rest = append(rest, c)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].score > rest[j].score })
	if len(rest) > maxAlternatives {
		rest = rest[:maxAlternatives]
	}
	alts := make([]model.Alternative, len(rest))
	for i, c := range rest {
		alts[i] = model.Alternative{SourceValueID: srcs[c.source].value.ID, Confidence: round4(c.score)}
	}

	src := srcs[chosen.source].value
	loc := src.Locator
	conf := round4(chosen.score)
	return &model.CandidateMapping{
		ID:                   g.newID(),
		PresentationValueID:  p.value.ID,
		SourceValueID:        src.ID,
		SourceLocator:        &loc,
		SimilarityConfidence: conf,
		GeneratorConfidence:  conf,
		Rationale:            chosen.rationale,
		Disposition:          model.DispositionSuggested,
		Alternatives:         alts,
		UpdatedAt:            g.now().UTC(),
	}, nil
}

// semantic asks the scorer about every source at once. It returns nil when
// there is no scorer or the call fails, and the blend then drops the
// semantic weight.
func (g *Generator) semantic(ctx context.Context, p prepared, srcs []prepared) []float64 {
	if g.scorer == nil || len(srcs) == 0 {
		return nil
	}
	subjs := make([]oracle.Subject, len(srcs))
	for i, s := range srcs {
		subjs[i] = s.subj
	}
	scores, err := g.scorer.Score(ctx, p.subj, subjs)
	if err == nil && len(scores) != len(srcs) {
		err = eris.Errorf("mapping: scorer returned %d scores for %d sources", len(scores), len(srcs))
	}
	if err != nil {
		zap.L().Debug("mapping: semantic score unavailable",
			zap.String("presentation_id", p.value.ID),
			zap.Error(err),
		)
		return nil
	}
	return scores
}

func (g *Generator) score(p, s prepared, sem *float64) scored {
	numeric, numericOK := proximity(p.subj, s.subj)
	contextual := normalize.TokenOverlap(p.value.Context.Text(), s.value.Context.Text())

	semantic, semanticOK := 0.0, false
	if sem != nil {
		semantic, semanticOK = math.Max(0, math.Min(1, *sem)), true
	}

	var wn, wc, ws float64
	if numericOK {
		wn, wc, ws = numericWeight, numericContextWeight, numericSemanticWeight
	} else {
		wc, ws = textContextWeight, textSemanticWeight
	}
	if !semanticOK {
		ws = 0
	}
	total := wn*numeric + wc*contextual + ws*semantic
	if sum := wn + wc + ws; sum > 0 {
		total /= sum
	}

	parts := make([]string, 0, 3)
	if numericOK {
		parts = append(parts, fmt.Sprintf("numeric proximity %.2f", numeric))
	}
	parts = append(parts, fmt.Sprintf("context overlap %.2f", contextual))
	if semanticOK {
		parts = append(parts, fmt.Sprintf("semantic score %.2f", semantic))
	}

	pc, sc := p.value.Context.Category, s.value.Context.Category
	return scored{
		score:     total,
		rationale: strings.Join(parts, ", "),
		category:  pc != "" && strings.EqualFold(pc, sc),
	}
}

// proximity is 1 for equal numbers, falling linearly to 0 at
// proximitySpan relative difference. ok is false when either side is not
// numeric or the data types are incompatible.
func proximity(p, s oracle.Subject) (float64, bool) {
	if !p.Normalized.IsNumeric() || !s.Normalized.IsNumeric() || !compatible(p.DataType, s.DataType) {
		return 0, false
	}
	if !normalize.UnitsCompatible(p.Normalized.Unit, s.Normalized.Unit) {
		return 0, true
	}
	rel := normalize.RelativeDifference(*p.Normalized.Numeric, *s.Normalized.Numeric)
	return math.Max(0, 1-rel/proximitySpan), true
}

// compatible treats count and metric as interchangeable; every other type
// only matches itself.
func compatible(a, b model.DataType) bool {
	if a == b {
		return true
	}
	quantity := func(t model.DataType) bool { return t == model.DataTypeCount || t == model.DataTypeMetric }
	return quantity(a) && quantity(b)
}

func round4(f float64) float64 {
	return math.Round(f*1e4) / 1e4
}
