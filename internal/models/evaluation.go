package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Tier is a classification result. The zero value means unclassified and is
// encoded as JSON null.
type Tier string

const (
	TierNone Tier = ""
	TierT0   Tier = "T0"
	TierT1   Tier = "T1"
)

// ParseTier converts user input into a Tier
func ParseTier(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "T0":
		return TierT0, nil
	case "T1":
		return TierT1, nil
	case "", "NULL", "NONE":
		return TierNone, nil
	default:
		return TierNone, fmt.Errorf("invalid tier %q: must be T0, T1 or empty", s)
	}
}

// MarshalJSON encodes the unclassified tier as null
func (t Tier) MarshalJSON() ([]byte, error) {
	if t == TierNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(t))
}

// UnmarshalJSON accepts null, "" or a tier key
func (t *Tier) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = TierNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to decode tier: %w", err)
	}
	*t = Tier(s)
	return nil
}

// MetricEvaluation is the recorded result for one metric of one project.
// Value holds either a number or a string.
type MetricEvaluation struct {
	Value any    `json:"value"`
	Tier  Tier   `json:"tier"`
	Notes string `json:"notes,omitempty"`
}

// ProjectEvaluation is one evaluation run. OverallScore and OverallTier are
// derived from Metrics and recomputed before every persist.
type ProjectEvaluation struct {
	ID           string                      `json:"id"`
	Name         string                      `json:"name"`
	Date         time.Time                   `json:"date"`
	TemplateID   string                      `json:"templateId,omitempty"`
	Metrics      map[string]MetricEvaluation `json:"metrics"`
	OverallScore *float64                    `json:"overallScore,omitempty"`
	OverallTier  Tier                        `json:"overallTier,omitempty"`
	Notes        string                      `json:"notes,omitempty"`
}

// MetricKey builds the composite key "<categoryId>_<metricId>"
func MetricKey(categoryID, metricID string) string {
	return categoryID + "_" + metricID
}

// SplitMetricKey splits a composite key at its first underscore
func SplitMetricKey(key string) (categoryID, metricID string, ok bool) {
	idx := strings.Index(key, "_")
	if idx < 0 {
		return "", "", false
	}
	return key[:idx], key[idx+1:], true
}

// Clone returns a deep copy of the project
func (p *ProjectEvaluation) Clone() *ProjectEvaluation {
	if p == nil {
		return nil
	}
	out := *p
	out.Metrics = make(map[string]MetricEvaluation, len(p.Metrics))
	for k, v := range p.Metrics {
		out.Metrics[k] = v
	}
	if p.OverallScore != nil {
		score := *p.OverallScore
		out.OverallScore = &score
	}
	return &out
}
