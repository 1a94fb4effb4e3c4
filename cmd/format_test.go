package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-cli/internal/model"
)

func TestFormatSummary(t *testing.T) {
	s := model.SessionSummary{
		RunID:           "run-1",
		Total:           3,
		Counts:          map[model.Category]int{model.CategoryMatched: 1, model.CategoryMismatched: 1, model.CategoryFormattingError: 1},
		OverallAccuracy: 33.33,
		RiskLevel:       model.RiskHigh,
		Coverage:        1,
		Recommendations: []string{"Verify 1 mismatched value(s) against the source."},
	}

	var buf bytes.Buffer
	formatSummary(&buf, s)

	output := buf.String()
	assert.Contains(t, output, "run-1")
	assert.Contains(t, output, "matched:")
	assert.Contains(t, output, "unverifiable:")
	assert.Contains(t, output, "33.33%")
	assert.Contains(t, output, "100.0%")
	assert.Contains(t, output, "high")
	assert.Contains(t, output, "Recommendations:")
	assert.Contains(t, output, "- Verify 1 mismatched")
}

func TestFormatRecords(t *testing.T) {
	src := "c7"
	recs := []model.ReconciliationRecord{
		{Seq: 1, PresentationValueID: "rev", SourceValueID: &src, Category: model.CategoryMatched,
			Discrepancy: model.Delta{Kind: model.DiscrepancyNone}, VerdictConfidence: 0.95, Rationale: "values agree"},
		{Seq: 2, PresentationValueID: "note", Category: model.CategoryUnverifiable,
			Discrepancy: model.Delta{Kind: model.DiscrepancyIncomparable}, Rationale: "insufficient signal"},
	}

	var buf bytes.Buffer
	formatRecords(&buf, recs)

	output := buf.String()
	assert.Contains(t, output, "rev")
	assert.Contains(t, output, "c7")
	assert.Contains(t, output, "exact_match")
	assert.Contains(t, output, "0.95")
	assert.Contains(t, output, "unverifiable")
}

func TestFormatMappings(t *testing.T) {
	var buf bytes.Buffer
	formatMappings(&buf, nil)
	assert.Equal(t, "No mappings.\n", buf.String())

	buf.Reset()
	formatMappings(&buf, []model.CandidateMapping{{
		ID:                   "5b0f8a7e-0000-0000-0000-000000000000",
		PresentationValueID:  "rev",
		SourceValueID:        "c7",
		SimilarityConfidence: 0.9,
		Disposition:          model.DispositionConfirmed,
	}})
	output := buf.String()
	assert.Contains(t, output, "5b0f8a7e-0000-0000-0000-000000000000", "full id is needed to confirm")
	assert.Contains(t, output, "confirmed")
	assert.Contains(t, output, "0.90")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "a b", truncate("a\nb", 10))
}

func TestParsePairs(t *testing.T) {
	pairs, err := parsePairs([]string{"rev=c7", "margin=c8"})
	require.NoError(t, err)
	assert.Equal(t, []model.PairRef{
		{PresentationValueID: "rev", SourceValueID: "c7"},
		{PresentationValueID: "margin", SourceValueID: "c8"},
	}, pairs)

	for _, bad := range []string{"rev", "=c7", "rev="} {
		_, err := parsePairs([]string{bad})
		assert.Error(t, err, bad)
	}
}
