package model

import "time"

// Disposition is the lifecycle state of a candidate mapping.
type Disposition string

const (
	DispositionSuggested Disposition = "suggested"
	DispositionConfirmed Disposition = "confirmed"
	DispositionRejected  Disposition = "rejected"
	DispositionEdited    Disposition = "edited"
)

// Active reports whether a mapping in this state still occupies its
// presentation value.
func (d Disposition) Active() bool {
	return d != DispositionRejected
}

// Reconcilable reports whether a mapping in this state is handed to the
// executor in mapped mode.
func (d Disposition) Reconcilable() bool {
	return d == DispositionConfirmed || d == DispositionEdited
}

// Alternative is a runner-up source value considered for a mapping.
type Alternative struct {
	SourceValueID string  `json:"source_value_id"`
	Confidence    float64 `json:"confidence"`
}

// CandidateMapping proposes that a presentation value was derived from a
// source value.
type CandidateMapping struct {
	ID                   string        `json:"id"`
	PresentationValueID  string        `json:"presentation_value_id"`
	SourceValueID        string        `json:"source_value_id"`
	SourceLocator        *Locator      `json:"source_locator,omitempty"`
	SimilarityConfidence float64       `json:"similarity_confidence"`
	GeneratorConfidence  float64       `json:"generator_confidence"`
	Rationale            string        `json:"rationale"`
	Disposition          Disposition   `json:"disposition"`
	Alternatives         []Alternative `json:"alternatives,omitempty"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// Pair is one presentation/source value pair to reconcile. Source is nil
// when no source value could be associated.
type Pair struct {
	Presentation ExtractedValue  `json:"presentation"`
	Source       *ExtractedValue `json:"source,omitempty"`
	MappingID    string          `json:"mapping_id,omitempty"`
}

// PairRef names a pair by value ids.
type PairRef struct {
	PresentationValueID string `json:"presentation_value_id"`
	SourceValueID       string `json:"source_value_id"`
}
