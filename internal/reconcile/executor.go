// Package reconcile runs reconciliation over a session: it pairs values,
// asks the oracle, classifies every pair and keeps the audit trail.
package reconcile

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/recon-cli/internal/classify"
	"github.com/sells-group/recon-cli/internal/config"
	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/normalize"
	"github.com/sells-group/recon-cli/internal/oracle"
	"github.com/sells-group/recon-cli/internal/policy"
)

const (
	defaultBatchSize   = 5
	defaultConcurrency = 3
)

// Plan is the input of one execution. Mapped mode reads Pairs; direct
// mode reads Presentation and Sources.
type Plan struct {
	RunID        string
	Mode         model.Mode
	Pairs        []model.Pair
	Presentation []model.ExtractedValue
	Sources      []model.ExtractedValue
}

// Result holds the records of one execution in batch order.
type Result struct {
	Records []model.ReconciliationRecord
	// Comparisons counts values handed to the oracle.
	Comparisons int
	Batches     int
	// Partial is set when cancellation dropped at least one batch.
	Partial bool
}

// Executor runs a Plan against an oracle with bounded parallelism.
type Executor struct {
	oracle      oracle.Oracle
	th          policy.Thresholds
	batchSize   int
	concurrency int
}

// NewExecutor creates an Executor. Zero config values fall back to a
// batch size of 5 and 3 concurrent batches.
func NewExecutor(o oracle.Oracle, th policy.Thresholds, cfg config.ExecutorConfig) *Executor {
	e := &Executor{
		oracle:      o,
		th:          th.WithDefaults(),
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
	}
	if e.batchSize <= 0 {
		e.batchSize = defaultBatchSize
	}
	if e.concurrency <= 0 {
		e.concurrency = defaultConcurrency
	}
	return e
}

type batchOutcome struct {
	records     []model.ReconciliationRecord
	comparisons int
	done        bool
}

// Execute reconciles every pair of the plan. Oracle failures become
// unverifiable records and never fail the run. If ctx is canceled,
// batches that already finished keep their records, the rest are dropped,
// Result.Partial is set and the returned error wraps ctx.Err().
func (e *Executor) Execute(ctx context.Context, plan Plan) (Result, error) {
	if !plan.Mode.Valid() {
		return Result{}, eris.Wrapf(ErrInvalidInput, "unknown mode %q", plan.Mode)
	}

	var run func(ctx context.Context, batch int) batchOutcome
	var batches int
	switch plan.Mode {
	case model.ModeDirect:
		sources := prepareSources(plan.Sources)
		chunks := chunk(len(plan.Presentation), e.batchSize)
		batches = len(chunks)
		run = func(ctx context.Context, b int) batchOutcome {
			lo, hi := chunks[b][0], chunks[b][1]
			return e.runDirect(ctx, plan.RunID, b, plan.Presentation[lo:hi], sources)
		}
	default:
		chunks := chunk(len(plan.Pairs), e.batchSize)
		batches = len(chunks)
		run = func(ctx context.Context, b int) batchOutcome {
			lo, hi := chunks[b][0], chunks[b][1]
			return e.runMapped(ctx, plan.RunID, b, plan.Pairs[lo:hi])
		}
	}

	outcomes := make([]batchOutcome, batches)
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for b := 0; b < batches; b++ {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outcomes[b] = run(oracle.WithBatch(ctx, b+1), b)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Batches: batches}
	for _, o := range outcomes {
		if !o.done {
			res.Partial = true
			continue
		}
		res.Records = append(res.Records, o.records...)
		res.Comparisons += o.comparisons
	}
	for i := range res.Records {
		res.Records[i].Seq = i
	}

	zap.L().Info("reconcile: execution finished",
		zap.String("run_id", plan.RunID),
		zap.String("mode", string(plan.Mode)),
		zap.Int("batches", batches),
		zap.Int("records", len(res.Records)),
		zap.Int("comparisons", res.Comparisons),
		zap.Bool("partial", res.Partial),
	)

	if res.Partial {
		return res, eris.Wrap(ctx.Err(), "reconcile: execution interrupted")
	}
	return res, nil
}

// chunk splits n items into [lo, hi) ranges of at most size.
func chunk(n, size int) [][2]int {
	var out [][2]int
	for lo := 0; lo < n; lo += size {
		hi := min(lo+size, n)
		out = append(out, [2]int{lo, hi})
	}
	return out
}

type side struct {
	value model.ExtractedValue
	norm  model.NormalizedValue
}

func (s side) subject() oracle.Subject {
	return oracle.NewSubject(s.value, s.norm)
}

func newSide(v model.ExtractedValue) side {
	return side{value: v, norm: normalize.Normalize(v.RawText, v.DataType)}
}

type preparedSources struct {
	byID     map[string]side
	subjects []oracle.Subject
}

// prepareSources normalizes sources once per run. Only parseable sources
// are offered to the oracle.
func prepareSources(values []model.ExtractedValue) preparedSources {
	ps := preparedSources{byID: make(map[string]side, len(values))}
	for _, v := range values {
		s := newSide(v)
		if !s.norm.IsParseable {
			continue
		}
		ps.byID[v.ID] = s
		ps.subjects = append(ps.subjects, s.subject())
	}
	return ps
}

func (e *Executor) runMapped(ctx context.Context, runID string, batch int, pairs []model.Pair) batchOutcome {
	out := batchOutcome{records: make([]model.ReconciliationRecord, 0, len(pairs))}
	for _, p := range pairs {
		pres := newSide(p.Presentation)
		if p.Source == nil {
			out.records = append(out.records, e.unverifiable(runID, batch, p.MappingID, pres, nil, "no source value associated with this presentation value"))
			continue
		}
		src := newSide(*p.Source)
		if reason := unparseable(pres, src); reason != "" {
			out.records = append(out.records, e.unverifiable(runID, batch, p.MappingID, pres, &src, reason))
			continue
		}

		out.comparisons++
		verdict, err := e.oracle.Compare(ctx, pres.subject(), src.subject())
		if err != nil {
			if ctx.Err() != nil {
				return batchOutcome{}
			}
			zap.L().Warn("reconcile: oracle compare failed",
				zap.String("run_id", runID),
				zap.Int("batch", batch+1),
				zap.String("presentation_id", p.Presentation.ID),
				zap.String("source_id", p.Source.ID),
				zap.Error(err),
			)
			out.records = append(out.records, e.unverifiable(runID, batch, p.MappingID, pres, &src, "oracle call failed: "+err.Error()))
			continue
		}
		out.records = append(out.records, e.record(runID, batch, p.MappingID, pres, &src, &verdict))
	}
	out.done = true
	return out
}

func (e *Executor) runDirect(ctx context.Context, runID string, batch int, values []model.ExtractedValue, sources preparedSources) batchOutcome {
	out := batchOutcome{records: make([]model.ReconciliationRecord, len(values))}

	var send []oracle.Subject
	slots := make(map[string]int, len(values))
	for i, v := range values {
		pres := newSide(v)
		switch {
		case !pres.norm.IsParseable:
			out.records[i] = e.unverifiable(runID, batch, "", pres, nil, unparseable(pres))
		case len(sources.subjects) == 0:
			out.records[i] = e.unverifiable(runID, batch, "", pres, nil, "no parseable source values to compare against")
		default:
			slots[v.ID] = i
			send = append(send, pres.subject())
		}
	}
	if len(send) == 0 {
		out.done = true
		return out
	}

	out.comparisons = len(send)
	matches, err := e.oracle.CompareBatch(ctx, send, sources.subjects)
	if err != nil && ctx.Err() != nil {
		return batchOutcome{}
	}
	if err != nil {
		zap.L().Warn("reconcile: oracle batch failed",
			zap.String("run_id", runID),
			zap.Int("batch", batch+1),
			zap.Int("values", len(send)),
			zap.Error(err),
		)
	}

	byID := make(map[string]oracle.Match, len(matches))
	for _, m := range matches {
		byID[m.PresentationID] = m
	}
	for _, s := range send {
		i := slots[s.ID]
		pres := newSide(values[i])
		if err != nil {
			out.records[i] = e.unverifiable(runID, batch, "", pres, nil, "oracle call failed: "+err.Error())
			continue
		}
		m, ok := byID[s.ID]
		if !ok {
			out.records[i] = e.unverifiable(runID, batch, "", pres, nil, "no result returned for value")
			continue
		}
		src, found := sources.byID[m.SourceID]
		if m.SourceID == "" || !found {
			reason := m.Verdict.Rationale
			if reason == "" {
				reason = "no corresponding source value found"
			}
			out.records[i] = e.unverifiable(runID, batch, "", pres, nil, reason)
			continue
		}
		v := m.Verdict
		out.records[i] = e.record(runID, batch, "", pres, &src, &v)
	}
	out.done = true
	return out
}

// unparseable explains the first side that failed to normalize, or
// returns "" when all sides parsed.
func unparseable(sides ...side) string {
	for _, s := range sides {
		if !s.norm.IsParseable {
			issue := s.norm.Issue
			if issue == "" {
				issue = "not parseable"
			}
			return fmt.Sprintf("%s value %s could not be normalized: %s", originLabel(s.value), s.value.ID, issue)
		}
	}
	return ""
}

func originLabel(v model.ExtractedValue) string {
	if v.Origin == "" {
		return "extracted"
	}
	return string(v.Origin)
}

// record classifies a judged pair. verdict is nil when no judgment exists.
func (e *Executor) record(runID string, batch int, mappingID string, pres side, src *side, verdict *oracle.Verdict) model.ReconciliationRecord {
	r := model.ReconciliationRecord{
		RunID:                  runID,
		PresentationValueID:    pres.value.ID,
		MappingID:              mappingID,
		NormalizedPresentation: pres.norm,
		Batch:                  batch + 1,
	}
	delta := model.Delta{Kind: model.DiscrepancyIncomparable, RelativeDifference: 1}
	if src != nil {
		id := src.value.ID
		r.SourceValueID = &id
		r.NormalizedSource = src.norm
		delta = normalize.Compare(pres.norm, src.norm, e.th.Tolerance())
	}
	r.Discrepancy = delta
	r.Category = classify.Classify(delta, verdict)
	r.SuggestedAction = classify.SuggestedAction(r.Category)
	if verdict != nil {
		r.VerdictConfidence = verdict.Confidence
		r.Rationale = verdict.Rationale
	}
	r.Rationale = rationale(r.Category, delta, r.Rationale)
	return r
}

func (e *Executor) unverifiable(runID string, batch int, mappingID string, pres side, src *side, reason string) model.ReconciliationRecord {
	r := e.record(runID, batch, mappingID, pres, src, nil)
	r.Rationale = reason
	return r
}

// rationale prefixes the oracle's explanation with what normalization
// found, so formatting errors say which display difference was seen.
func rationale(c model.Category, d model.Delta, oracleText string) string {
	var prefix string
	switch c {
	case model.CategoryFormattingError:
		prefix = fmt.Sprintf("same fact, %s (relative difference %.4f)", d.Kind, d.RelativeDifference)
	case model.CategoryMatched:
		prefix = "values agree"
	case model.CategoryMismatched:
		prefix = "different facts"
	default:
		prefix = "insufficient signal"
	}
	if oracleText == "" {
		return prefix
	}
	return prefix + ": " + oracleText
}
