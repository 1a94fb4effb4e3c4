package ingest

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/model"
)

// WorkbookOptions configures cell harvesting.
type WorkbookOptions struct {
	Sheets   []string // if set, only these sheets are read
	MaxRows  int      // default 2000
	MaxCols  int      // default 200
	IDPrefix string   // prepended to generated value ids
}

func (o WorkbookOptions) withDefaults() WorkbookOptions {
	if o.MaxRows <= 0 {
		o.MaxRows = 2000
	}
	if o.MaxCols <= 0 {
		o.MaxCols = 200
	}
	return o
}

var currencyMarks = []string{"$", "€", "£", "¥"}

var currencyWords = []string{"revenue", "sales", "income", "cost", "ebitda", "profit", "price", "expense", "cash", "arr", "mrr"}

var percentWords = []string{"margin", "rate", "growth", "share", "yield", "%"}

// ReadWorkbook harvests every non-zero numeric cell of the workbook at path as
// a source value. Row labels and column headers become the business context.
func ReadWorkbook(path string, opts WorkbookOptions) ([]model.ExtractedValue, error) {
	opts = opts.withDefaults()

	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open workbook")
	}

	sheets, err := selectSheets(f, opts.Sheets)
	if err != nil {
		return nil, err
	}

	file := filepath.Base(path)
	var out []model.ExtractedValue
	for _, sheet := range sheets {
		vals := harvestSheet(sheet, file, opts)
		zap.L().Debug("ingest: sheet harvested",
			zap.String("file", file),
			zap.String("sheet", sheet.Name),
			zap.Int("values", len(vals)),
		)
		out = append(out, vals...)
	}
	return out, nil
}

func selectSheets(f *xlsx.File, names []string) ([]*xlsx.Sheet, error) {
	if len(names) == 0 {
		return f.Sheets, nil
	}
	out := make([]*xlsx.Sheet, 0, len(names))
	for _, name := range names {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found", name)
		}
		out = append(out, sheet)
	}
	return out, nil
}

func harvestSheet(sheet *xlsx.Sheet, file string, opts WorkbookOptions) []model.ExtractedValue {
	rows := sheet.Rows
	if len(rows) > opts.MaxRows {
		rows = rows[:opts.MaxRows]
	}

	// headers[c] is the closest text cell above the current row in column c.
	headers := make(map[int]string)
	var out []model.ExtractedValue
	for r, row := range rows {
		if row == nil {
			continue
		}
		label := ""
		for c, cell := range row.Cells {
			if c >= opts.MaxCols {
				break
			}
			if cell == nil {
				continue
			}
			if cell.Type() != xlsx.CellTypeNumeric {
				if text := strings.TrimSpace(cell.String()); text != "" {
					label = text
					headers[c] = text
				}
				continue
			}
			n, err := cell.Float()
			if err != nil || n == 0 || math.IsNaN(n) {
				continue
			}

			ref := xlsx.GetCellIDStringFromCoords(c, r)
			desc := describe(label, headers[c])
			out = append(out, model.ExtractedValue{
				ID:       opts.IDPrefix + sheet.Name + "!" + ref,
				Origin:   model.OriginSource,
				RawText:  rawText(cell, n),
				DataType: inferType(cell.GetNumberFormat(), desc, n),
				Locator: model.Locator{
					File:  file,
					Sheet: sheet.Name,
					Cell:  ref,
				},
				Context: model.BusinessContext{
					Description: desc,
					Category:    sheet.Name,
				},
				ExtractionConfidence: 1,
			})
		}
	}
	return out
}

func rawText(cell *xlsx.Cell, n float64) string {
	if s, err := cell.FormattedValue(); err == nil && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	return fmt.Sprintf("%g", n)
}

func describe(label, header string) string {
	switch {
	case label == "":
		return header
	case header == "" || header == label:
		return label
	default:
		return label + " / " + header
	}
}

// inferType reads the number format first and falls back to label keywords.
func inferType(format, desc string, n float64) model.DataType {
	switch {
	case strings.Contains(format, "%"):
		return model.DataTypePercentage
	case containsAny(format, currencyMarks):
		return model.DataTypeCurrency
	}

	lower := strings.ToLower(desc)
	switch {
	case containsWord(lower, percentWords) && math.Abs(n) <= 1:
		return model.DataTypePercentage
	case containsWord(lower, currencyWords):
		return model.DataTypeCurrency
	case n == math.Trunc(n):
		return model.DataTypeCount
	default:
		return model.DataTypeMetric
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func containsWord(s string, words []string) bool {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '/' || r == '(' || r == ')' || r == '-' || r == '_' || r == ','
	})
	for _, f := range fields {
		for _, w := range words {
			if f == w {
				return true
			}
		}
	}
	return false
}
