package aggregate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/policy"
)

func rec(pres string, src string, c model.Category, kind model.DiscrepancyKind) model.ReconciliationRecord {
	r := model.ReconciliationRecord{
		PresentationValueID: pres,
		Category:            c,
		Discrepancy:         model.Delta{Kind: kind},
	}
	if c != model.CategoryUnverifiable {
		r.VerdictConfidence = 0.9
	}
	if src != "" {
		r.SourceValueID = &src
	}
	return r
}

func repeat(n int, c model.Category, kind model.DiscrepancyKind) []model.ReconciliationRecord {
	out := make([]model.ReconciliationRecord, n)
	for i := range out {
		out[i] = rec("p"+strings.Repeat("x", i), "s", c, kind)
	}
	return out
}

func hasLine(lines []string, substr string) bool {
	for _, l := range lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func TestAggregate_Empty(t *testing.T) {
	t.Parallel()
	s := Aggregate("run-1", nil, 4, policy.Default())
	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, 0, s.Total)
	assert.Equal(t, 0.0, s.OverallAccuracy)
	assert.Equal(t, model.RiskLow, s.RiskLevel)
	require.Len(t, s.Recommendations, 1)
	assert.Contains(t, s.Recommendations[0], "No values were reconciled")
	assert.Equal(t, 0, s.Count(model.CategoryMatched))
}

func TestAggregate_CountsSumToTotal(t *testing.T) {
	t.Parallel()
	var records []model.ReconciliationRecord
	records = append(records, repeat(7, model.CategoryMatched, model.DiscrepancyNone)...)
	records = append(records, repeat(2, model.CategoryFormattingError, model.DiscrepancyRounding)...)
	records = append(records, repeat(1, model.CategoryUnverifiable, model.DiscrepancyIncomparable)...)

	s := Aggregate("r", records, 10, policy.Default())
	sum := 0
	for _, c := range model.AllCategories() {
		sum += s.Count(c)
	}
	assert.Equal(t, s.Total, sum)
	assert.Equal(t, 10, s.Total)
	assert.Equal(t, 70.0, s.OverallAccuracy)
}

func TestAggregate_Risk(t *testing.T) {
	t.Parallel()
	build := func(matched, mismatched, formatting int) []model.ReconciliationRecord {
		var out []model.ReconciliationRecord
		out = append(out, repeat(matched, model.CategoryMatched, model.DiscrepancyNone)...)
		out = append(out, repeat(mismatched, model.CategoryMismatched, model.DiscrepancyValue)...)
		out = append(out, repeat(formatting, model.CategoryFormattingError, model.DiscrepancyScale)...)
		return out
	}

	tests := []struct {
		name       string
		matched    int
		mismatched int
		formatting int
		want       model.RiskLevel
	}{
		{"high", 8, 2, 0, model.RiskHigh},
		{"ratios exactly at the cutoff stay low", 17, 3, 0, model.RiskLow},
		{"medium from formatting", 8, 1, 1, model.RiskMedium},
		{"low", 19, 1, 0, model.RiskLow},
		{"all matched", 5, 0, 0, model.RiskLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Aggregate("r", build(tt.matched, tt.mismatched, tt.formatting), 0, policy.Default())
			assert.Equal(t, tt.want, s.RiskLevel)
		})
	}
}

func TestAggregate_Recommendations(t *testing.T) {
	t.Parallel()
	records := []model.ReconciliationRecord{
		rec("p1", "s1", model.CategoryMatched, model.DiscrepancyNone),
		rec("p2", "s2", model.CategoryMismatched, model.DiscrepancyValue),
		rec("p3", "s3", model.CategoryFormattingError, model.DiscrepancyRounding),
		rec("p4", "s4", model.CategoryFormattingError, model.DiscrepancyRounding),
		rec("p5", "", model.CategoryUnverifiable, model.DiscrepancyIncomparable),
	}
	s := Aggregate("r", records, 10, policy.Default())

	assert.True(t, hasLine(s.Recommendations, "1 mismatched"))
	assert.True(t, hasLine(s.Recommendations, "Standardize number formatting for 2"))
	assert.True(t, hasLine(s.Recommendations, "Manually confirm 1"))
	assert.True(t, hasLine(s.Recommendations, "below the 90% target"))
	assert.True(t, hasLine(s.Recommendations, "Most common discrepancy: rounding_difference (2"))
	assert.True(t, hasLine(s.Recommendations, "Only 40% of presentation values"))
	assert.Equal(t, 0.4, s.Coverage)
}

func TestAggregate_AllMatched(t *testing.T) {
	t.Parallel()
	records := []model.ReconciliationRecord{
		rec("p1", "s1", model.CategoryMatched, model.DiscrepancyNone),
		rec("p2", "s2", model.CategoryMatched, model.DiscrepancyNone),
	}
	s := Aggregate("r", records, 2, policy.Default())
	assert.Equal(t, 100.0, s.OverallAccuracy)
	assert.Equal(t, 1.0, s.Coverage)
	assert.Equal(t, []string{"All 2 reconciled value(s) match their source."}, s.Recommendations)
}

func TestAggregate_MinCount(t *testing.T) {
	t.Parallel()
	th := policy.Default()
	th.RecommendationMinCount = 2
	records := []model.ReconciliationRecord{
		rec("p1", "s1", model.CategoryMatched, model.DiscrepancyNone),
		rec("p2", "s2", model.CategoryMatched, model.DiscrepancyNone),
		rec("p3", "s3", model.CategoryMatched, model.DiscrepancyNone),
		rec("p4", "s4", model.CategoryMatched, model.DiscrepancyNone),
		rec("p5", "s5", model.CategoryMatched, model.DiscrepancyNone),
		rec("p6", "s6", model.CategoryMatched, model.DiscrepancyNone),
		rec("p7", "s7", model.CategoryMatched, model.DiscrepancyNone),
		rec("p8", "s8", model.CategoryMatched, model.DiscrepancyNone),
		rec("p9", "s9", model.CategoryMatched, model.DiscrepancyNone),
		rec("p10", "s10", model.CategoryMismatched, model.DiscrepancyValue),
	}
	s := Aggregate("r", records, 10, th)
	assert.False(t, hasLine(s.Recommendations, "mismatched value"))
	assert.True(t, hasLine(s.Recommendations, "Most common discrepancy: value_mismatch"))
}

func TestAggregate_LowConfidenceVerdicts(t *testing.T) {
	t.Parallel()
	low := rec("p1", "s1", model.CategoryMatched, model.DiscrepancyNone)
	low.VerdictConfidence = 0.4
	lowMismatch := rec("p2", "s2", model.CategoryMismatched, model.DiscrepancyValue)
	lowMismatch.VerdictConfidence = 0.2
	records := []model.ReconciliationRecord{
		low,
		lowMismatch,
		rec("p3", "s3", model.CategoryMatched, model.DiscrepancyNone),
		rec("p4", "", model.CategoryUnverifiable, model.DiscrepancyIncomparable),
	}

	s := Aggregate("r", records, 4, policy.Default())
	assert.Equal(t, 2, s.Count(model.CategoryMatched), "confidence never moves a category")
	assert.True(t, hasLine(s.Recommendations, "Spot-check 2 verdict(s)"))
	assert.True(t, hasLine(s.Recommendations, "under 50% confidence"))

	th := policy.Default()
	th.ConfidenceFloor = 0.3
	s = Aggregate("r", records, 4, th)
	assert.True(t, hasLine(s.Recommendations, "Spot-check 1 verdict(s)"))
}

func TestAggregate_CoverageCountsDistinctValues(t *testing.T) {
	t.Parallel()
	records := []model.ReconciliationRecord{
		rec("p1", "s1", model.CategoryMatched, model.DiscrepancyNone),
		rec("p1", "s2", model.CategoryMismatched, model.DiscrepancyValue),
		rec("p2", "", model.CategoryUnverifiable, model.DiscrepancyIncomparable),
	}
	s := Aggregate("r", records, 4, policy.Default())
	assert.Equal(t, 0.25, s.Coverage)
}
