// Package normalize turns raw extracted text into comparable values.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/recon-cli/internal/model"
)

// ErrNormalizationFailure marks a raw value that could not be read as its
// declared data type.
var ErrNormalizationFailure = eris.New("normalize: value is not parseable")

var (
	numberRe = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?|\.\d+`)
	ratioRe  = regexp.MustCompile(`^(\d[\d,]*(?:\.\d+)?)\s*:\s*(\d[\d,]*(?:\.\d+)?)$`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// Scale words and the power of ten they apply.
var scaleWords = map[string]int{
	"k": 3, "thousand": 3, "thousands": 3,
	"m": 6, "mm": 6, "mn": 6, "million": 6, "millions": 6,
	"b": 9, "bn": 9, "billion": 9, "billions": 9,
	"t": 12, "tn": 12, "trillion": 12, "trillions": 12,
}

// Currency symbols mapped to ISO codes. Longer symbols first.
var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"US$", "USD"},
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
}

// Normalize reads raw as dataType. It never fails: unreadable input comes
// back with IsParseable false and the reason in Issue.
func Normalize(raw string, dataType model.DataType) model.NormalizedValue {
	nv, err := Parse(raw, dataType)
	if err != nil {
		zap.L().Debug("normalize: value not parseable",
			zap.String("raw", raw),
			zap.String("data_type", string(dataType)),
			zap.Error(err),
		)
	}
	return nv
}

// Parse is Normalize with the failure surfaced. The returned value is
// always usable; the error wraps ErrNormalizationFailure.
func Parse(raw string, dataType model.DataType) (model.NormalizedValue, error) {
	s := strings.TrimSpace(norm.NFKC.String(raw))
	if s == "" {
		return failed(raw, "empty value")
	}

	switch dataType {
	case model.DataTypeText, "":
		return parseText(s)
	case model.DataTypeCurrency:
		return parseCurrency(raw, s)
	case model.DataTypePercentage:
		return parsePercentage(raw, s)
	case model.DataTypeRatio:
		return parseRatio(raw, s)
	case model.DataTypeCount:
		return parseQuantity(raw, s, true)
	default:
		return parseQuantity(raw, s, false)
	}
}

// Canonical is the text canonical form: NFKC, case folded, whitespace
// collapsed.
func Canonical(s string) string {
	// Casers carry state, so each call gets its own.
	s = cases.Fold().String(norm.NFKC.String(s))
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func failed(raw, issue string) (model.NormalizedValue, error) {
	return model.NormalizedValue{
		DisplayForm: strings.TrimSpace(raw),
		Issue:       issue,
	}, eris.Wrapf(ErrNormalizationFailure, "%s: %q", issue, raw)
}

func parseText(s string) (model.NormalizedValue, error) {
	c := Canonical(s)
	return model.NormalizedValue{DisplayForm: c, IsParseable: c != ""}, nil
}

// reading is one numeric token and what surrounds it.
type reading struct {
	mantissa string
	decimals int
	exp      int
	negative bool
	prefix   string
	suffix   string
}

func scan(s string) (reading, bool) {
	loc := numberRe.FindStringIndex(s)
	if loc == nil {
		return reading{}, false
	}
	r := reading{
		mantissa: strings.ReplaceAll(s[loc[0]:loc[1]], ",", ""),
		prefix:   s[:loc[0]],
		suffix:   s[loc[1]:],
	}
	if i := strings.IndexByte(r.mantissa, '.'); i >= 0 {
		r.decimals = len(r.mantissa) - i - 1
	}
	parens := strings.Contains(r.prefix, "(") && strings.Contains(r.suffix, ")")
	r.negative = parens || strings.ContainsAny(r.prefix, "-−")
	r.prefix = strings.TrimSpace(strings.Trim(r.prefix, " (-+−"))
	r.suffix = strings.TrimSpace(strings.Trim(r.suffix, " )"))
	return r, true
}

// value parses mantissa*10^exp in one step so scaled values stay exact.
func (r reading) value() float64 {
	f, err := strconv.ParseFloat(r.mantissa+"e"+strconv.Itoa(r.exp), 64)
	if err != nil {
		return math.NaN()
	}
	if r.negative {
		f = -f
	}
	return f
}

func (r reading) precision() float64 {
	return math.Pow10(r.exp - r.decimals)
}

// takeScale consumes a leading scale word from the suffix.
func (r *reading) takeScale() {
	word, rest := leadingWord(r.suffix)
	if exp, ok := scaleWords[strings.ToLower(word)]; ok {
		r.exp += exp
		r.suffix = strings.TrimSpace(rest)
	}
}

func leadingWord(s string) (string, string) {
	i := strings.IndexFunc(s, func(c rune) bool { return !unicode.IsLetter(c) })
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

func numeric(r reading, unit string, precision float64) (model.NormalizedValue, error) {
	v := r.value()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return failed(r.mantissa, "numeric overflow")
	}
	return model.NormalizedValue{
		Numeric:     &v,
		Unit:        unit,
		DisplayForm: display(v, unit),
		IsParseable: true,
		Precision:   precision,
	}, nil
}

func display(v float64, unit string) string {
	n := strconv.FormatFloat(v, 'f', -1, 64)
	switch {
	case unit == "":
		return n
	case unit == "%":
		return n + "%"
	case len(unit) == 3 && strings.ToUpper(unit) == unit:
		return unit + " " + n
	default:
		return n + " " + unit
	}
}

func parseCurrency(raw, s string) (model.NormalizedValue, error) {
	r, ok := scan(s)
	if !ok {
		return failed(raw, "no numeric token")
	}
	r.takeScale()
	return numeric(r, currencyCode(r.prefix+" "+r.suffix), r.precision())
}

func currencyCode(s string) string {
	for _, cs := range currencySymbols {
		if strings.Contains(s, cs.symbol) {
			return cs.code
		}
	}
	for _, f := range strings.Fields(s) {
		if len(f) == 3 && strings.IndexFunc(f, func(c rune) bool { return c < 'A' || c > 'Z' }) < 0 {
			return f
		}
	}
	return ""
}

func parsePercentage(raw, s string) (model.NormalizedValue, error) {
	r, ok := scan(s)
	if !ok {
		return failed(raw, "no numeric token")
	}
	lower := strings.ToLower(r.suffix)
	switch {
	case strings.Contains(s, "%") || strings.HasPrefix(lower, "percent") || strings.HasPrefix(lower, "pct"):
	case strings.HasPrefix(lower, "bp") || strings.HasPrefix(lower, "basis point"):
		r.exp -= 2
	default:
		if math.Abs(r.value()) <= 1 {
			r.exp += 2
		}
	}
	return numeric(r, "%", r.precision())
}

func parseRatio(raw, s string) (model.NormalizedValue, error) {
	if m := ratioRe.FindStringSubmatch(s); m != nil {
		a, errA := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		b, errB := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
		if errA != nil || errB != nil {
			return failed(raw, "malformed ratio")
		}
		if b == 0 {
			return failed(raw, "zero denominator")
		}
		v := a / b
		return model.NormalizedValue{
			Numeric:     &v,
			DisplayForm: display(v, ""),
			IsParseable: true,
		}, nil
	}
	r, ok := scan(s)
	if !ok {
		return failed(raw, "no numeric token")
	}
	return numeric(r, unitOf(r.suffix), r.precision())
}

func parseQuantity(raw, s string, scaled bool) (model.NormalizedValue, error) {
	r, ok := scan(s)
	if !ok {
		return failed(raw, "no numeric token")
	}
	if scaled {
		r.takeScale()
	}
	return numeric(r, unitOf(r.suffix), r.precision())
}

func unitOf(s string) string {
	return Canonical(strings.Trim(s, " .,;"))
}
