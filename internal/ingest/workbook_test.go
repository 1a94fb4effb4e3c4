package ingest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/recon-cli/internal/model"
)

// cellSpec is one test cell: a string, an int, or a float with a format.
type cellSpec struct {
	text   string
	num    float64
	isNum  bool
	format string
}

func txt(s string) cellSpec { return cellSpec{text: s} }

func num(n float64, format string) cellSpec { return cellSpec{num: n, isNum: true, format: format} }

func createTestWorkbook(t *testing.T, dir, name string, sheets map[string][][]cellSpec) string {
	t.Helper()
	f := xlsx.NewFile()
	for sheetName, rows := range sheets {
		sheet, err := f.AddSheet(sheetName)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, c := range rowData {
				cell := row.AddCell()
				switch {
				case !c.isNum:
					cell.SetString(c.text)
				case c.format != "":
					cell.SetFloatWithFormat(c.num, c.format)
				default:
					cell.SetFloat(c.num)
				}
			}
		}
	}
	path := filepath.Join(dir, name)
	require.NoError(t, f.Save(path))
	return path
}

func plSheet() map[string][][]cellSpec {
	return map[string][][]cellSpec{
		"PL": {
			{txt(""), txt("FY2024")},
			{txt("Revenue"), num(1200000, "")},
			{txt("Gross margin"), num(0.15, "0%")},
			{txt("Headcount"), num(42, "")},
			{txt("Unused"), num(0, "")},
			{txt("Multiple"), num(3.5, "")},
		},
	}
}

func byID(vals []model.ExtractedValue) map[string]model.ExtractedValue {
	out := make(map[string]model.ExtractedValue, len(vals))
	for _, v := range vals {
		out[v.ID] = v
	}
	return out
}

func TestReadWorkbook_HarvestsNumericCells(t *testing.T) {
	path := createTestWorkbook(t, t.TempDir(), "model.xlsx", plSheet())

	vals, err := ReadWorkbook(path, WorkbookOptions{})
	require.NoError(t, err)
	require.Len(t, vals, 4, "zero cell is skipped")

	got := byID(vals)

	rev, ok := got["PL!B2"]
	require.True(t, ok)
	assert.Equal(t, model.OriginSource, rev.Origin)
	assert.Equal(t, model.DataTypeCurrency, rev.DataType)
	assert.Equal(t, "Revenue / FY2024", rev.Context.Description)
	assert.Equal(t, "PL", rev.Context.Category)
	assert.Equal(t, model.Locator{File: "model.xlsx", Sheet: "PL", Cell: "B2"}, rev.Locator)
	assert.InDelta(t, 1.0, rev.ExtractionConfidence, 1e-9)

	assert.Equal(t, model.DataTypePercentage, got["PL!B3"].DataType)
	assert.Equal(t, model.DataTypeCount, got["PL!B4"].DataType)
	assert.Equal(t, model.DataTypeMetric, got["PL!B6"].DataType)
}

func TestReadWorkbook_SheetFilter(t *testing.T) {
	sheets := plSheet()
	sheets["Notes"] = [][]cellSpec{{txt("Scratch"), num(7, "")}}
	path := createTestWorkbook(t, t.TempDir(), "model.xlsx", sheets)

	vals, err := ReadWorkbook(path, WorkbookOptions{Sheets: []string{"Notes"}, IDPrefix: "wb1:"})
	require.NoError(t, err)
	require.Len(t, vals, 1)
	assert.Equal(t, "wb1:Notes!B1", vals[0].ID)
	assert.Equal(t, "Scratch", vals[0].Context.Description)
}

func TestReadWorkbook_MissingSheet(t *testing.T) {
	path := createTestWorkbook(t, t.TempDir(), "model.xlsx", plSheet())

	_, err := ReadWorkbook(path, WorkbookOptions{Sheets: []string{"Nope"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "Nope" not found`)
}

func TestReadWorkbook_MaxRows(t *testing.T) {
	path := createTestWorkbook(t, t.TempDir(), "model.xlsx", plSheet())

	vals, err := ReadWorkbook(path, WorkbookOptions{MaxRows: 2})
	require.NoError(t, err)
	require.Len(t, vals, 1)
	assert.Equal(t, "PL!B2", vals[0].ID)
}

func TestReadWorkbook_MissingFile(t *testing.T) {
	_, err := ReadWorkbook(filepath.Join(t.TempDir(), "absent.xlsx"), WorkbookOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest: open workbook")
}

func TestInferType(t *testing.T) {
	tests := []struct {
		name   string
		format string
		desc   string
		n      float64
		want   model.DataType
	}{
		{"percent format", "0.0%", "", 0.2, model.DataTypePercentage},
		{"currency format", `"$"#,##0`, "", 100, model.DataTypeCurrency},
		{"margin fraction", "general", "EBITDA margin", 0.21, model.DataTypePercentage},
		{"margin above one is not a fraction", "general", "Operating margin", 21, model.DataTypeCount},
		{"revenue label", "general", "Net revenue", 1.5e6, model.DataTypeCurrency},
		{"integer", "general", "Stores", 12, model.DataTypeCount},
		{"decimal", "general", "Turns", 4.2, model.DataTypeMetric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inferType(tt.format, tt.desc, tt.n))
		})
	}
}
