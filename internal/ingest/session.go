// Package ingest turns extraction output on disk into sessions: a session
// document (YAML or JSON) listing extracted values, optionally pointing at
// workbooks whose numeric cells become source values.
package ingest

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/recon-cli/internal/model"
)

// Document is the on-disk form of a session.
type Document struct {
	ID                 string                 `yaml:"id"`
	Name               string                 `yaml:"name"`
	ExtractionComplete *bool                  `yaml:"extraction_complete"`
	Presentation       []model.ExtractedValue `yaml:"presentation"`
	Sources            []model.ExtractedValue `yaml:"sources"`
	Workbooks          []WorkbookRef          `yaml:"workbooks"`
}

// WorkbookRef points at a workbook to harvest. Relative paths resolve
// against the document's directory.
type WorkbookRef struct {
	Path   string   `yaml:"path"`
	Sheets []string `yaml:"sheets"`
}

// LoadSession reads the session document at path.
func LoadSession(path string) (*model.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read session document")
	}
	return DecodeSession(bytes.NewReader(data), filepath.Dir(path))
}

// DecodeSession parses a session document from r. YAML and JSON are both
// accepted. Workbook paths are resolved against baseDir.
func DecodeSession(r io.Reader, baseDir string) (*model.Session, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, eris.New("ingest: empty session document")
		}
		return nil, eris.Wrap(err, "ingest: decode session document")
	}
	return doc.Session(baseDir)
}

// Session converts the document, harvesting any referenced workbooks.
func (d *Document) Session(baseDir string) (*model.Session, error) {
	if d.ID == "" {
		return nil, eris.New("ingest: session document has no id")
	}

	sess := &model.Session{
		ID:                 d.ID,
		Name:               d.Name,
		Presentation:       tag(d.Presentation, model.OriginPresentation),
		Sources:            tag(d.Sources, model.OriginSource),
		ExtractionComplete: d.ExtractionComplete == nil || *d.ExtractionComplete,
	}

	for _, wb := range d.Workbooks {
		path := wb.Path
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		vals, err := ReadWorkbook(path, WorkbookOptions{Sheets: wb.Sheets})
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: workbook %s", wb.Path)
		}
		sess.Sources = append(sess.Sources, vals...)
	}

	zap.L().Debug("ingest: session decoded",
		zap.String("session_id", sess.ID),
		zap.Int("presentation_values", len(sess.Presentation)),
		zap.Int("source_values", len(sess.Sources)),
		zap.Int("workbooks", len(d.Workbooks)),
	)
	return sess, nil
}

// tag fills in a missing origin and data type.
func tag(vals []model.ExtractedValue, origin model.Origin) []model.ExtractedValue {
	for i := range vals {
		if vals[i].Origin == "" {
			vals[i].Origin = origin
		}
		vals[i].DataType = model.ParseDataType(string(vals[i].DataType))
	}
	return vals
}
