package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/models"
)

// importSchema is the minimum shape accepted from an imported document
const importSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "name", "categories"],
  "properties": {
    "id": {"type": "string"},
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "author": {"type": "string"},
    "categories": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "metrics": {
            "type": ["array", "null"],
            "items": {
              "type": "object",
              "required": ["id", "name"],
              "properties": {
                "id": {"type": "string", "minLength": 1},
                "name": {"type": "string", "minLength": 1},
                "thresholds": {
                  "type": ["object", "null"],
                  "additionalProperties": {"type": "string"}
                },
                "tools": {"type": ["array", "null"], "items": {"type": "string"}}
              }
            }
          }
        }
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(importSchema)

// FieldError is a single validation problem at a document path
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every problem found in a template document
type ValidationError struct {
	Errors []FieldError
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("invalid template:")
	for _, fe := range ve.Errors {
		sb.WriteString(fmt.Sprintf(" %s: %s;", fe.Field, fe.Message))
	}
	return strings.TrimSuffix(sb.String(), ";")
}

// Unwrap lets callers match ErrInvalidTemplate
func (ve *ValidationError) Unwrap() error {
	return ErrInvalidTemplate
}

func newValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	ve := &ValidationError{}
	for _, fe := range verrs {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   fe.Namespace(),
			Message: fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
		})
	}
	return ve
}

// importDocument is the accepted subset of an exported template; identity and
// flags are always reassigned on import
type importDocument struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Author      string                  `json:"author"`
	Categories  []models.MetricCategory `json:"categories"`
}

// Import parses a template document and saves it under a fresh id as an
// editable, user-owned template
func (r *Repository) Import(ctx context.Context, data []byte) (*models.EvaluationTemplate, error) {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if !result.Valid() {
		ve := &ValidationError{}
		for _, re := range result.Errors() {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   re.Field(),
				Message: re.Description(),
			})
		}
		r.logger.Warn("rejected template import", "errors", len(ve.Errors))
		return nil, ve
	}

	var doc importDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	tmpl := &models.EvaluationTemplate{
		ID:          uuid.NewString(),
		Name:        doc.Name,
		Description: doc.Description,
		Author:      doc.Author,
		Categories:  doc.Categories,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for r.indexOf(tmpl.ID) >= 0 {
		tmpl.ID = uuid.NewString()
	}

	saved, err := r.save(ctx, tmpl)
	if saved != nil {
		r.logger.Info("template imported", "source_id", doc.ID, "id", saved.ID)
	}
	return saved, err
}

// Exporter is the file-export boundary: it receives a JSON-serializable
// document and a suggested filename
type Exporter interface {
	Export(ctx context.Context, filename string, doc any) error
}

// Export hands the bare template to the exporter
func (r *Repository) Export(ctx context.Context, id string, exporter Exporter) error {
	tmpl := r.Get(id)
	if tmpl == nil {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}

	filename := ExportFilename(tmpl)
	if err := exporter.Export(ctx, filename, tmpl); err != nil {
		return fmt.Errorf("failed to export template %s: %w", id, err)
	}
	r.logger.Info("template exported", "id", id, "filename", filename)
	return nil
}

// ExportFilename suggests "<slug>-template.json" for a template
func ExportFilename(tmpl *models.EvaluationTemplate) string {
	slug := Slug(tmpl.Name)
	if slug == "" {
		slug = tmpl.ID
	}
	return slug + "-template.json"
}

// Slug lowercases s and collapses every run of non-alphanumerics into one dash
func Slug(s string) string {
	var sb strings.Builder
	dash := false
	for _, c := range strings.ToLower(s) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			sb.WriteRune(c)
			dash = false
			continue
		}
		if !dash && sb.Len() > 0 {
			sb.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}
