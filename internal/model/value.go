package model

import (
	"strconv"
	"strings"
	"time"
)

// DataType tags an extracted value with the normalization rules that apply to it.
type DataType string

const (
	DataTypeCurrency   DataType = "currency"
	DataTypePercentage DataType = "percentage"
	DataTypeCount      DataType = "count"
	DataTypeRatio      DataType = "ratio"
	DataTypeMetric     DataType = "metric"
	DataTypeText       DataType = "text"
)

// AllDataTypes returns all supported data types.
func AllDataTypes() []DataType {
	return []DataType{
		DataTypeCurrency,
		DataTypePercentage,
		DataTypeCount,
		DataTypeRatio,
		DataTypeMetric,
		DataTypeText,
	}
}

// ParseDataType maps a free-form type label onto a DataType. Unknown labels
// fall back to text.
func ParseDataType(s string) DataType {
	dt := DataType(strings.ToLower(strings.TrimSpace(s)))
	for _, t := range AllDataTypes() {
		if t == dt {
			return t
		}
	}
	return DataTypeText
}

// IsNumeric reports whether values of this type normalize to a number.
func (d DataType) IsNumeric() bool {
	return d != DataTypeText && d != ""
}

// Origin identifies which side of the reconciliation a value came from.
type Origin string

const (
	OriginPresentation Origin = "presentation"
	OriginSource       Origin = "source"
)

// Valid reports whether o is a known origin.
func (o Origin) Valid() bool {
	return o == OriginPresentation || o == OriginSource
}

// BoundingBox is a rectangle on a presentation page, in page coordinates.
type BoundingBox struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Locator points at where a value was observed: a page region for
// presentation values, a workbook cell for source values.
type Locator struct {
	Page  int          `json:"page,omitempty" yaml:"page,omitempty"`
	BBox  *BoundingBox `json:"bbox,omitempty" yaml:"bbox,omitempty"`
	File  string       `json:"file,omitempty" yaml:"file,omitempty"`
	Sheet string       `json:"sheet,omitempty" yaml:"sheet,omitempty"`
	Cell  string       `json:"cell,omitempty" yaml:"cell,omitempty"`
}

// String renders the locator for rationales and logs.
func (l Locator) String() string {
	switch {
	case l.Sheet != "" || l.Cell != "":
		var b strings.Builder
		if l.File != "" {
			b.WriteString(l.File)
			b.WriteString(":")
		}
		b.WriteString(l.Sheet)
		if l.Cell != "" {
			b.WriteString("!")
			b.WriteString(l.Cell)
		}
		return b.String()
	case l.Page > 0:
		return "page " + strconv.Itoa(l.Page)
	default:
		return ""
	}
}

// BusinessContext is the semantic description attached to a value.
type BusinessContext struct {
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string `json:"category,omitempty" yaml:"category,omitempty"`
}

// Text joins description and category for prompts and token overlap.
func (c BusinessContext) Text() string {
	switch {
	case c.Description == "":
		return c.Category
	case c.Category == "":
		return c.Description
	default:
		return c.Description + " (" + c.Category + ")"
	}
}

// ExtractedValue is one fact observed in either the presentation or a source
// workbook. Values are produced by the extraction collaborator and only
// changed through an explicit user edit.
type ExtractedValue struct {
	ID                   string          `json:"id" yaml:"id"`
	Origin               Origin          `json:"origin" yaml:"origin"`
	RawText              string          `json:"raw_text" yaml:"raw_text"`
	DataType             DataType        `json:"data_type" yaml:"data_type"`
	Locator              Locator         `json:"locator" yaml:"locator"`
	Context              BusinessContext `json:"context" yaml:"context"`
	ExtractionConfidence float64         `json:"extraction_confidence" yaml:"extraction_confidence"`
	UserModified         bool            `json:"user_modified" yaml:"user_modified"`
	ModifiedAt           *time.Time      `json:"modified_at,omitempty" yaml:"modified_at,omitempty"`
}

// ValuePatch is a user edit to an extracted value. Nil fields are untouched.
type ValuePatch struct {
	RawText  *string          `json:"raw_text,omitempty"`
	DataType *DataType        `json:"data_type,omitempty"`
	Context  *BusinessContext `json:"context,omitempty"`
	Locator  *Locator         `json:"locator,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ValuePatch) Empty() bool {
	return p.RawText == nil && p.DataType == nil && p.Context == nil && p.Locator == nil
}

// Apply returns a copy of v with the patch applied and UserModified set.
func (p ValuePatch) Apply(v ExtractedValue, now time.Time) ExtractedValue {
	if p.RawText != nil {
		v.RawText = *p.RawText
	}
	if p.DataType != nil {
		v.DataType = *p.DataType
	}
	if p.Context != nil {
		v.Context = *p.Context
	}
	if p.Locator != nil {
		v.Locator = *p.Locator
	}
	v.UserModified = true
	t := now.UTC()
	v.ModifiedAt = &t
	return v
}
