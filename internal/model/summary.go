package model

// RiskLevel rates a session from its discrepancy ratios.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// SessionSummary aggregates every record of one run. It is always
// recomputed from the full record set.
type SessionSummary struct {
	RunID           string           `json:"run_id,omitempty"`
	Total           int              `json:"total"`
	Counts          map[Category]int `json:"counts"`
	OverallAccuracy float64          `json:"overall_accuracy"`
	RiskLevel       RiskLevel        `json:"risk_level"`
	Recommendations []string         `json:"recommendations"`
	Coverage        float64          `json:"coverage"`
}

// Count returns the number of records in category c.
func (s SessionSummary) Count(c Category) int {
	return s.Counts[c]
}
