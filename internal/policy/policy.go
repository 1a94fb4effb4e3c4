// Package policy holds the tunable thresholds shared by the normalizer,
// mapping tracker, classifier and aggregator.
package policy

import "github.com/sells-group/recon-cli/internal/normalize"

// Thresholds collects every confidence and ratio cutoff used while
// reconciling a session. The zero value is not useful; start from Default.
//
// Tolerances, ConfirmBoost and RecommendationMinCount must be positive and
// are defaulted when zero. Every other field accepts zero as a real
// setting (a zero ConfidenceFloor flags nothing, a zero TieEpsilon
// disables tie-breaking) and is defaulted only when negative.
type Thresholds struct {
	// ExactTolerance is the relative difference below which two numbers are
	// considered equal.
	ExactTolerance float64 `yaml:"exact_tolerance" mapstructure:"exact_tolerance"`
	// NearTolerance is the relative difference below which two numbers are
	// considered the same figure with a display difference.
	NearTolerance float64 `yaml:"near_tolerance" mapstructure:"near_tolerance"`
	// ConfidenceFloor is the verdict confidence below which a committed
	// verdict is flagged for a spot check.
	ConfidenceFloor float64 `yaml:"confidence_floor" mapstructure:"confidence_floor"`

	HighRiskRatio   float64 `yaml:"high_risk_ratio" mapstructure:"high_risk_ratio"`
	MediumRiskRatio float64 `yaml:"medium_risk_ratio" mapstructure:"medium_risk_ratio"`
	AccuracyTarget  float64 `yaml:"accuracy_target" mapstructure:"accuracy_target"`
	CoverageTarget  float64 `yaml:"coverage_target" mapstructure:"coverage_target"`
	// RecommendationMinCount is how many records a category needs before it
	// earns a recommendation line.
	RecommendationMinCount int `yaml:"recommendation_min_count" mapstructure:"recommendation_min_count"`

	ConfirmBoost        float64 `yaml:"confirm_boost" mapstructure:"confirm_boost"`
	EditResetConfidence float64 `yaml:"edit_reset_confidence" mapstructure:"edit_reset_confidence"`
	CandidateFloor      float64 `yaml:"candidate_floor" mapstructure:"candidate_floor"`
	TieEpsilon          float64 `yaml:"tie_epsilon" mapstructure:"tie_epsilon"`
}

// Default returns the thresholds the engine ships with.
func Default() Thresholds {
	return Thresholds{
		ExactTolerance:         0.005,
		NearTolerance:          0.05,
		ConfidenceFloor:        0.5,
		HighRiskRatio:          0.15,
		MediumRiskRatio:        0.15,
		AccuracyTarget:         90,
		CoverageTarget:         0.8,
		RecommendationMinCount: 1,
		ConfirmBoost:           0.9,
		EditResetConfidence:    0.5,
		CandidateFloor:         0.1,
		TieEpsilon:             0.01,
	}
}

// WithDefaults fills unset fields from Default.
func (t Thresholds) WithDefaults() Thresholds {
	d := Default()
	if t.ExactTolerance <= 0 {
		t.ExactTolerance = d.ExactTolerance
	}
	if t.NearTolerance <= 0 {
		t.NearTolerance = d.NearTolerance
	}
	if t.ConfidenceFloor < 0 {
		t.ConfidenceFloor = d.ConfidenceFloor
	}
	if t.HighRiskRatio < 0 {
		t.HighRiskRatio = d.HighRiskRatio
	}
	if t.MediumRiskRatio < 0 {
		t.MediumRiskRatio = d.MediumRiskRatio
	}
	if t.AccuracyTarget < 0 {
		t.AccuracyTarget = d.AccuracyTarget
	}
	if t.CoverageTarget < 0 {
		t.CoverageTarget = d.CoverageTarget
	}
	if t.RecommendationMinCount <= 0 {
		t.RecommendationMinCount = d.RecommendationMinCount
	}
	if t.ConfirmBoost <= 0 {
		t.ConfirmBoost = d.ConfirmBoost
	}
	if t.EditResetConfidence < 0 {
		t.EditResetConfidence = d.EditResetConfidence
	}
	if t.CandidateFloor < 0 {
		t.CandidateFloor = d.CandidateFloor
	}
	if t.TieEpsilon < 0 {
		t.TieEpsilon = d.TieEpsilon
	}
	return t
}

// Tolerance returns the numeric equality policy.
func (t Thresholds) Tolerance() normalize.Tolerance {
	return normalize.Tolerance{Exact: t.ExactTolerance, Near: t.NearTolerance}
}
