package model

import (
	"sort"
	"time"
)

// Session holds everything reconciled together: both value sets, the
// candidate mappings and a pointer to the latest run.
type Session struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Presentation       []ExtractedValue   `json:"presentation"`
	Sources            []ExtractedValue   `json:"sources"`
	Mappings           []CandidateMapping `json:"mappings,omitempty"`
	ExtractionComplete bool               `json:"extraction_complete"`
	// Stale lists value ids edited after the latest run used them.
	Stale       []string  `json:"stale,omitempty"`
	LatestRunID string    `json:"latest_run_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Values returns the value set for origin.
func (s *Session) Values(origin Origin) []ExtractedValue {
	if origin == OriginSource {
		return s.Sources
	}
	return s.Presentation
}

// FindValue looks a value up by origin and id.
func (s *Session) FindValue(origin Origin, id string) (int, bool) {
	for i, v := range s.Values(origin) {
		if v.ID == id {
			return i, true
		}
	}
	return -1, false
}

// MarkStale records that id changed after the latest run.
func (s *Session) MarkStale(id string) {
	for _, existing := range s.Stale {
		if existing == id {
			return
		}
	}
	s.Stale = append(s.Stale, id)
	sort.Strings(s.Stale)
}

// Clone returns a deep copy, used as the immutable snapshot a run works on.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Presentation = append([]ExtractedValue(nil), s.Presentation...)
	cp.Sources = append([]ExtractedValue(nil), s.Sources...)
	cp.Mappings = make([]CandidateMapping, len(s.Mappings))
	for i, m := range s.Mappings {
		m.Alternatives = append([]Alternative(nil), m.Alternatives...)
		cp.Mappings[i] = m
	}
	cp.Stale = append([]string(nil), s.Stale...)
	return &cp
}
