package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokens(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"total", "revenue", "fy2024"}, Tokens("Total Revenue for the FY2024, total"))
	assert.Empty(t, Tokens(" - "))
}

func TestTokenOverlap(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, TokenOverlap("Gross margin", "gross MARGIN"), 1e-12)
	assert.InDelta(t, 1.0/3, TokenOverlap("gross margin", "net margin"), 1e-12)
	assert.Zero(t, TokenOverlap("", "revenue"))
	assert.Zero(t, TokenOverlap("headcount", "revenue"))
}
