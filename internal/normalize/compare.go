package normalize

import (
	"math"
	"strings"
	"unicode"

	"github.com/sells-group/recon-cli/internal/model"
)

// Tolerance is the relative-difference policy for numeric equality.
type Tolerance struct {
	Exact float64
	Near  float64
}

// DefaultTolerance is 0.5% exact, 5% near.
func DefaultTolerance() Tolerance {
	return Tolerance{Exact: 0.005, Near: 0.05}
}

// Powers of ten checked when deciding whether two numbers differ only in
// scale (percent vs fraction, thousands vs units and so on).
var scaleSteps = []int{2, 3, 6, 9, 12}

// Compare measures how far apart two normalized values are. Values that
// cannot be compared (either side unparseable, or number against text)
// come back with Comparable false and kind incomparable.
func Compare(a, b model.NormalizedValue, tol Tolerance) model.Delta {
	if !a.IsParseable || !b.IsParseable || a.IsNumeric() != b.IsNumeric() {
		return model.Delta{Kind: model.DiscrepancyIncomparable, RelativeDifference: 1}
	}
	if !a.IsNumeric() {
		return compareText(a, b)
	}

	x, y := *a.Numeric, *b.Numeric
	d := model.Delta{Comparable: true, RelativeDifference: RelativeDifference(x, y)}
	d.Exact = d.RelativeDifference < tol.Exact
	d.Near = d.RelativeDifference < tol.Near

	units := UnitsCompatible(a.Unit, b.Unit)
	step := math.Max(a.Precision, b.Precision)
	if step > 0 {
		d.DisplayAgrees = units && math.Round(x/step) == math.Round(y/step)
	} else {
		d.DisplayAgrees = units && d.Exact
	}

	switch {
	case !units:
		d.Kind = model.DiscrepancyUnit
	case d.Exact && d.DisplayAgrees:
		d.Kind = model.DiscrepancyNone
	case d.Near:
		d.Kind = model.DiscrepancyRounding
	case scaleOnly(x, y, tol):
		d.Kind = model.DiscrepancyScale
	default:
		d.Kind = model.DiscrepancyValue
	}
	return d
}

// RelativeDifference is |x-y| over the larger magnitude; zero when both are
// zero.
func RelativeDifference(x, y float64) float64 {
	den := math.Max(math.Abs(x), math.Abs(y))
	if den == 0 {
		return 0
	}
	return math.Abs(x-y) / den
}

// UnitsCompatible treats a missing unit as matching anything.
func UnitsCompatible(a, b string) bool {
	return a == "" || b == "" || strings.EqualFold(a, b)
}

func scaleOnly(x, y float64, tol Tolerance) bool {
	if x == 0 || y == 0 || (x < 0) != (y < 0) {
		return false
	}
	r := math.Abs(x / y)
	if r < 1 {
		r = 1 / r
	}
	for _, p := range scaleSteps {
		if math.Abs(r/math.Pow10(p)-1) < tol.Near {
			return true
		}
	}
	return false
}

func compareText(a, b model.NormalizedValue) model.Delta {
	d := model.Delta{Comparable: true}
	switch {
	case a.DisplayForm == b.DisplayForm:
		d.Exact, d.Near, d.DisplayAgrees = true, true, true
		d.Kind = model.DiscrepancyNone
	case alnum(a.DisplayForm) == alnum(b.DisplayForm):
		d.Near = true
		d.RelativeDifference = 1
		d.Kind = model.DiscrepancyRepresentation
	default:
		d.RelativeDifference = 1
		d.Kind = model.DiscrepancyValue
	}
	return d
}

func alnum(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
