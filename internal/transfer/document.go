// Package transfer builds, writes and reads the backup documents exchanged
// with the file export/import boundary.
package transfer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/models"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/templates"
)

var ErrInvalidDocument = errors.New("invalid import document")

// maxImportSize bounds decoded import documents
const maxImportSize = 32 << 20

// BuildBulk assembles the full-backup document
func BuildBulk(evaluations []*models.ProjectEvaluation, thresholds []models.ThresholdConfig, appearance json.RawMessage, now time.Time) *models.BulkExport {
	if evaluations == nil {
		evaluations = []*models.ProjectEvaluation{}
	}
	if thresholds == nil {
		thresholds = []models.ThresholdConfig{}
	}
	if len(appearance) == 0 {
		appearance = json.RawMessage("{}")
	}
	return &models.BulkExport{
		Evaluations: evaluations,
		Thresholds:  thresholds,
		Appearance:  appearance,
		ExportDate:  now,
		Version:     models.ExportVersion,
	}
}

// BuildSingle wraps one project in the single-evaluation document
func BuildSingle(p *models.ProjectEvaluation, now time.Time) *models.SingleExport {
	return &models.SingleExport{
		Evaluations: []*models.ProjectEvaluation{p},
		ExportDate:  now,
		Version:     models.ExportVersion,
		Type:        models.SingleEvaluationType,
	}
}

// rawDocument accepts both export shapes
type rawDocument struct {
	Evaluations *[]*models.ProjectEvaluation `json:"evaluations"`
	Thresholds  *[]models.ThresholdConfig    `json:"thresholds"`
	Appearance  json.RawMessage              `json:"appearance"`
	ExportDate  time.Time                    `json:"exportDate"`
	Version     string                       `json:"version"`
	Type        string                       `json:"type"`
}

// Document is a parsed import. Thresholds and Appearance are nil when the
// source document did not carry them.
type Document struct {
	Evaluations []*models.ProjectEvaluation
	Thresholds  []models.ThresholdConfig
	Appearance  json.RawMessage
	ExportDate  time.Time
	Version     string
	Single      bool
}

// ParseBulk decodes either a bulk or a single-evaluation document. An
// evaluations array is required; entries without an id are dropped.
func ParseBulk(data []byte) (*Document, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if raw.Evaluations == nil {
		return nil, fmt.Errorf("%w: missing evaluations array", ErrInvalidDocument)
	}

	doc := &Document{
		ExportDate: raw.ExportDate,
		Version:    raw.Version,
		Single:     raw.Type == models.SingleEvaluationType,
	}
	seen := make(map[string]int)
	for _, p := range *raw.Evaluations {
		if p == nil || p.ID == "" {
			continue
		}
		if p.Metrics == nil {
			p.Metrics = map[string]models.MetricEvaluation{}
		}
		// last entry wins for a repeated id
		if i, ok := seen[p.ID]; ok {
			doc.Evaluations[i] = p
			continue
		}
		seen[p.ID] = len(doc.Evaluations)
		doc.Evaluations = append(doc.Evaluations, p)
	}
	if doc.Single && len(doc.Evaluations) != 1 {
		return nil, fmt.Errorf("%w: single-evaluation document holds %d evaluations", ErrInvalidDocument, len(doc.Evaluations))
	}
	if raw.Thresholds != nil {
		doc.Thresholds = *raw.Thresholds
	}
	if len(raw.Appearance) > 0 && string(raw.Appearance) != "null" {
		doc.Appearance = raw.Appearance
	}
	return doc, nil
}

// ReadImport reads an import file, transparently decompressing gzip input
func ReadImport(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read import: %w", err)
	}

	var src io.Reader = br
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip import: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	data, err := io.ReadAll(io.LimitReader(src, maxImportSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read import: %w", err)
	}
	if len(data) > maxImportSize {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrInvalidDocument, maxImportSize)
	}
	return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), nil
}

var _ templates.Exporter = (*FileExporter)(nil)

// FileExporter writes export documents into a directory
type FileExporter struct {
	dir  string
	gzip bool
}

// ExporterOption configures a FileExporter
type ExporterOption func(*FileExporter)

// WithGzip compresses written documents and appends ".gz" to their names
func WithGzip(enabled bool) ExporterOption {
	return func(e *FileExporter) {
		e.gzip = enabled
	}
}

// NewFileExporter creates the target directory if needed
func NewFileExporter(dir string, opts ...ExporterOption) (*FileExporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	e := &FileExporter{dir: dir}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Path returns where a document with the suggested filename is written
func (e *FileExporter) Path(filename string) string {
	name := filepath.Base(filename)
	if e.gzip && !strings.HasSuffix(name, ".gz") {
		name += ".gz"
	}
	return filepath.Join(e.dir, name)
}

// Export serializes doc as indented JSON and writes it atomically
func (e *FileExporter) Export(ctx context.Context, filename string, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}

	target := e.Path(filename)
	tmp, err := os.CreateTemp(e.dir, ".export-*")
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := e.write(tmp, data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to move export into place: %w", err)
	}
	return nil
}

func (e *FileExporter) write(w io.Writer, data []byte) error {
	if !e.gzip {
		_, err := w.Write(data)
		return err
	}
	zw := gzip.NewWriter(w)
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// BulkFilename names a full backup taken at now
func BulkFilename(now time.Time) string {
	return fmt.Sprintf("web3-bd-backup-%s.json", now.Format("2006-01-02"))
}

// ProjectFilename names a single-project export
func ProjectFilename(p *models.ProjectEvaluation) string {
	slug := templates.Slug(p.Name)
	if slug == "" {
		slug = p.ID
	}
	return slug + "-evaluation.json"
}
