// Package aggregate rolls the records of one run up into a session
// summary.
package aggregate

import (
	"fmt"
	"math"
	"sort"

	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/policy"
)

// Aggregate computes the summary of one run from scratch. presentationTotal
// is the number of presentation values in the session snapshot and only
// feeds Coverage.
func Aggregate(runID string, records []model.ReconciliationRecord, presentationTotal int, th policy.Thresholds) model.SessionSummary {
	th = th.WithDefaults()
	s := model.SessionSummary{
		RunID:  runID,
		Total:  len(records),
		Counts: make(map[model.Category]int, 4),
	}
	for _, c := range model.AllCategories() {
		s.Counts[c] = 0
	}
	for _, r := range records {
		s.Counts[r.Category]++
	}

	s.Coverage = coverage(records, presentationTotal)
	if s.Total == 0 {
		s.RiskLevel = model.RiskLow
		s.Recommendations = []string{"No values were reconciled; confirm mappings or run a direct reconciliation."}
		return s
	}

	total := float64(s.Total)
	s.OverallAccuracy = round2(float64(s.Count(model.CategoryMatched)) / total * 100)

	mismatched := float64(s.Count(model.CategoryMismatched))
	formatting := float64(s.Count(model.CategoryFormattingError))
	switch {
	case mismatched/total > th.HighRiskRatio:
		s.RiskLevel = model.RiskHigh
	case (mismatched+formatting)/total > th.MediumRiskRatio:
		s.RiskLevel = model.RiskMedium
	default:
		s.RiskLevel = model.RiskLow
	}

	s.Recommendations = recommendations(s, records, presentationTotal, th)
	return s
}

func recommendations(s model.SessionSummary, records []model.ReconciliationRecord, presentationTotal int, th policy.Thresholds) []string {
	var out []string
	if n := s.Count(model.CategoryMismatched); n >= th.RecommendationMinCount {
		out = append(out, fmt.Sprintf("Review %d mismatched value(s) against their source and correct the presentation.", n))
	}
	if n := s.Count(model.CategoryFormattingError); n >= th.RecommendationMinCount {
		out = append(out, fmt.Sprintf("Standardize number formatting for %d value(s) that match their source but display differently.", n))
	}
	if n := s.Count(model.CategoryUnverifiable); n >= th.RecommendationMinCount {
		out = append(out, fmt.Sprintf("Manually confirm %d value(s) that could not be verified automatically.", n))
	}
	if n := s.Count(model.CategoryMatched); n >= th.RecommendationMinCount && n == s.Total {
		out = append(out, fmt.Sprintf("All %d reconciled value(s) match their source.", n))
	}
	if n := belowFloor(records, th.ConfidenceFloor); n > 0 {
		out = append(out, fmt.Sprintf("Spot-check %d verdict(s) the oracle gave with under %.0f%% confidence.", n, th.ConfidenceFloor*100))
	}
	if s.OverallAccuracy < th.AccuracyTarget {
		out = append(out, fmt.Sprintf("Overall accuracy is %.1f%%, below the %.0f%% target; review before publishing.", s.OverallAccuracy, th.AccuracyTarget))
	}
	if kind, n := commonDiscrepancy(records); n > 0 {
		out = append(out, fmt.Sprintf("Most common discrepancy: %s (%d occurrence(s)).", kind, n))
	}
	if presentationTotal > 0 && s.Coverage < th.CoverageTarget {
		out = append(out, fmt.Sprintf("Only %.0f%% of presentation values were compared against a source; map the remaining values.", s.Coverage*100))
	}
	return out
}

// commonDiscrepancy returns the most frequent discrepancy kind among
// records that are not matched. Ties break alphabetically.
func commonDiscrepancy(records []model.ReconciliationRecord) (model.DiscrepancyKind, int) {
	counts := make(map[model.DiscrepancyKind]int)
	for _, r := range records {
		if r.Category == model.CategoryMatched {
			continue
		}
		k := r.Discrepancy.Kind
		if k == "" || k == model.DiscrepancyNone {
			continue
		}
		counts[k]++
	}
	kinds := make([]model.DiscrepancyKind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if counts[kinds[i]] != counts[kinds[j]] {
			return counts[kinds[i]] > counts[kinds[j]]
		}
		return kinds[i] < kinds[j]
	})
	if len(kinds) == 0 {
		return "", 0
	}
	return kinds[0], counts[kinds[0]]
}

// belowFloor counts committed verdicts whose confidence is under floor.
// Unverifiable records carry no committed verdict.
func belowFloor(records []model.ReconciliationRecord, floor float64) int {
	n := 0
	for _, r := range records {
		if r.Category != model.CategoryUnverifiable && r.VerdictConfidence < floor {
			n++
		}
	}
	return n
}

// coverage is the share of presentation values that were compared against
// at least one source value.
func coverage(records []model.ReconciliationRecord, presentationTotal int) float64 {
	if presentationTotal <= 0 {
		return 0
	}
	seen := make(map[string]struct{})
	for _, r := range records {
		if r.SourceValueID != nil {
			seen[r.PresentationValueID] = struct{}{}
		}
	}
	return round4(math.Min(1, float64(len(seen))/float64(presentationTotal)))
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }

func round4(f float64) float64 { return math.Round(f*1e4) / 1e4 }
