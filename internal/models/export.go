package models

import (
	"encoding/json"
	"time"
)

// ExportVersion is stamped on every exported document
const ExportVersion = "1.0"

// SingleEvaluationType marks a single-project export
const SingleEvaluationType = "single-evaluation"

// BulkExport is the full-backup document
type BulkExport struct {
	Evaluations []*ProjectEvaluation `json:"evaluations"`
	Thresholds  []ThresholdConfig    `json:"thresholds"`
	Appearance  json.RawMessage      `json:"appearance"`
	ExportDate  time.Time            `json:"exportDate"`
	Version     string               `json:"version"`
}

// SingleExport carries exactly one project evaluation
type SingleExport struct {
	Evaluations []*ProjectEvaluation `json:"evaluations"`
	ExportDate  time.Time            `json:"exportDate"`
	Version     string               `json:"version"`
	Type        string               `json:"type"`
}
