package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/normalize"
	"github.com/sells-group/recon-cli/internal/oracle"
)

func delta(a string, adt model.DataType, b string, bdt model.DataType) model.Delta {
	return normalize.Compare(normalize.Normalize(a, adt), normalize.Normalize(b, bdt), normalize.DefaultTolerance())
}

func TestClassify_Rules(t *testing.T) {
	t.Parallel()
	exact := model.Delta{Comparable: true, Exact: true, Near: true, DisplayAgrees: true, Kind: model.DiscrepancyNone}
	near := model.Delta{Comparable: true, Near: true, RelativeDifference: 0.02, Kind: model.DiscrepancyRounding}

	tests := []struct {
		name    string
		delta   model.Delta
		verdict *oracle.Verdict
		want    model.Category
	}{
		{"no verdict", exact, nil, model.CategoryUnverifiable},
		{"abstained", exact, &oracle.Verdict{Abstained: true, Equivalent: true, Confidence: 0.99}, model.CategoryUnverifiable},
		{"not equivalent", exact, &oracle.Verdict{Equivalent: false, Confidence: 0.95}, model.CategoryMismatched},
		{"not equivalent low confidence", exact, &oracle.Verdict{Equivalent: false, Confidence: 0.1}, model.CategoryMismatched},
		{"equivalent exact low confidence", exact, &oracle.Verdict{Equivalent: true, Confidence: 0.4}, model.CategoryMatched},
		{"equivalent exact zero confidence", exact, &oracle.Verdict{Equivalent: true}, model.CategoryMatched},
		{"equivalent near low confidence", near, &oracle.Verdict{Equivalent: true, Confidence: 0.2}, model.CategoryFormattingError},
		{"abstained not equivalent", near, &oracle.Verdict{Abstained: true, Confidence: 0.9}, model.CategoryUnverifiable},
		{"near only", near, &oracle.Verdict{Equivalent: true, Confidence: 0.9}, model.CategoryFormattingError},
		{"exact without display agreement", model.Delta{Comparable: true, Exact: true, Near: true, Kind: model.DiscrepancyRounding}, &oracle.Verdict{Equivalent: true, Confidence: 0.9}, model.CategoryFormattingError},
		{"incomparable but equivalent", model.Delta{Kind: model.DiscrepancyIncomparable}, &oracle.Verdict{Equivalent: true, Confidence: 0.9}, model.CategoryFormattingError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.delta, tt.verdict))
		})
	}
}

func TestClassify_DisplayBoundary(t *testing.T) {
	t.Parallel()
	v := &oracle.Verdict{Equivalent: true, Confidence: 0.9}

	assert.Equal(t, model.CategoryMatched,
		Classify(delta("$1.2M", model.DataTypeCurrency, "1,200,000", model.DataTypeCurrency), v))
	assert.Equal(t, model.CategoryMatched,
		Classify(delta("15%", model.DataTypePercentage, "0.15", model.DataTypePercentage), v))
	assert.Equal(t, model.CategoryFormattingError,
		Classify(delta("$1.20M", model.DataTypeCurrency, "1,205,000", model.DataTypeCurrency), v))
	assert.Equal(t, model.CategoryMatched,
		Classify(delta("Net  Revenue", model.DataTypeText, "net revenue", model.DataTypeText), v))
}

func TestClassify_Deterministic(t *testing.T) {
	t.Parallel()
	d := delta("$4.5B", model.DataTypeCurrency, "4,480,000,000", model.DataTypeCurrency)
	v := &oracle.Verdict{Equivalent: true, Confidence: 0.8}
	first := Classify(d, v)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(d, v))
	}
}

func TestClassify_LowConfidenceEquivalentDisplayMatch(t *testing.T) {
	t.Parallel()
	d := delta("$1.2M", model.DataTypeCurrency, "1,200,000", model.DataTypeCurrency)
	assert.Equal(t, model.CategoryMatched, Classify(d, &oracle.Verdict{Equivalent: true, Confidence: 0.4}))
}

func TestSuggestedAction(t *testing.T) {
	t.Parallel()
	assert.Nil(t, SuggestedAction(model.CategoryMatched))

	a := SuggestedAction(model.CategoryMismatched)
	require.NotNil(t, a)
	assert.Equal(t, ActionVerifySource, *a)

	a = SuggestedAction(model.CategoryFormattingError)
	require.NotNil(t, a)
	assert.Equal(t, ActionStandardize, *a)

	a = SuggestedAction(model.CategoryUnverifiable)
	require.NotNil(t, a)
	assert.Equal(t, ActionManualConfirm, *a)
}
