package model

// NormalizedValue is the comparable form of a raw extracted value.
type NormalizedValue struct {
	Numeric     *float64 `json:"numeric,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	DisplayForm string   `json:"display_form"`
	IsParseable bool     `json:"is_parseable"`
	// Precision is the step of the least significant displayed digit, in
	// canonical units. Zero for text.
	Precision float64 `json:"precision,omitempty"`
	Issue     string  `json:"issue,omitempty"`
}

// IsNumeric reports whether the value carries a numeric reading.
func (n NormalizedValue) IsNumeric() bool {
	return n.IsParseable && n.Numeric != nil
}

// Category is the final outcome of one comparison.
type Category string

const (
	CategoryMatched         Category = "matched"
	CategoryMismatched      Category = "mismatched"
	CategoryFormattingError Category = "formatting_error"
	CategoryUnverifiable    Category = "unverifiable"
)

// AllCategories returns categories in reporting order.
func AllCategories() []Category {
	return []Category{
		CategoryMatched,
		CategoryMismatched,
		CategoryFormattingError,
		CategoryUnverifiable,
	}
}

// DiscrepancyKind explains how two normalized values differ.
type DiscrepancyKind string

const (
	DiscrepancyNone           DiscrepancyKind = "exact_match"
	DiscrepancyRounding       DiscrepancyKind = "rounding_difference"
	DiscrepancyScale          DiscrepancyKind = "scale_difference"
	DiscrepancyUnit           DiscrepancyKind = "unit_difference"
	DiscrepancyRepresentation DiscrepancyKind = "representation_difference"
	DiscrepancyValue          DiscrepancyKind = "value_mismatch"
	DiscrepancyIncomparable   DiscrepancyKind = "incomparable"
)

// Delta is the normalization-level comparison of two values.
type Delta struct {
	Comparable         bool            `json:"comparable"`
	RelativeDifference float64         `json:"relative_difference"`
	Exact              bool            `json:"exact"`
	Near               bool            `json:"near"`
	DisplayAgrees      bool            `json:"display_agrees"`
	Kind               DiscrepancyKind `json:"kind"`
}

// ReconciliationRecord is the auditable verdict for one compared pair.
// Records are never updated after creation.
type ReconciliationRecord struct {
	RunID                  string          `json:"run_id"`
	Seq                    int             `json:"seq"`
	PresentationValueID    string          `json:"presentation_value_id"`
	SourceValueID          *string         `json:"source_value_id"`
	MappingID              string          `json:"mapping_id,omitempty"`
	NormalizedPresentation NormalizedValue `json:"normalized_presentation_value"`
	NormalizedSource       NormalizedValue `json:"normalized_source_value"`
	VerdictConfidence      float64         `json:"verdict_confidence"`
	Category               Category        `json:"category"`
	Discrepancy            Delta           `json:"discrepancy"`
	Rationale              string          `json:"rationale"`
	SuggestedAction        *string         `json:"suggested_action"`
	Batch                  int             `json:"batch"`
}
