package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Canonical tier keys every metric threshold map carries
const (
	TierKeyT0 = "T0"
	TierKeyT1 = "T1"
)

// Placeholder threshold text used when a template omits a canonical tier
const (
	PlaceholderT0 = "Top tier criteria"
	PlaceholderT1 = "Secondary tier criteria"
)

// Metric is a single rubric entry evaluated per project
type Metric struct {
	ID          string            `yaml:"id" json:"id" validate:"required"`
	Name        string            `yaml:"name" json:"name" validate:"required"`
	Description string            `yaml:"description" json:"description"`
	Importance  string            `yaml:"importance" json:"importance"`
	Thresholds  map[string]string `yaml:"thresholds" json:"thresholds"`
	Tools       []string          `yaml:"tools" json:"tools"`
}

// MetricCategory groups metrics; order is meaningful for navigation
type MetricCategory struct {
	ID          string   `yaml:"id" json:"id" validate:"required"`
	Name        string   `yaml:"name" json:"name" validate:"required"`
	Description string   `yaml:"description" json:"description"`
	Metrics     []Metric `yaml:"metrics" json:"metrics" validate:"dive"`
}

// EvaluationTemplate is a complete rubric. Locked templates are never edited in place.
type EvaluationTemplate struct {
	ID          string           `yaml:"id" json:"id" validate:"required"`
	Name        string           `yaml:"name" json:"name" validate:"required"`
	Description string           `yaml:"description" json:"description"`
	Author      string           `yaml:"author" json:"author"`
	CreatedAt   time.Time        `yaml:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time        `yaml:"updatedAt" json:"updatedAt"`
	IsBuiltIn   bool             `yaml:"isBuiltIn" json:"isBuiltIn"`
	IsLocked    bool             `yaml:"isLocked" json:"isLocked"`
	Categories  []MetricCategory `yaml:"categories" json:"categories" validate:"dive"`
}

// MetricRef addresses one metric inside a template
type MetricRef struct {
	CategoryID string `json:"categoryId"`
	MetricID   string `json:"metricId"`
}

// Validate checks the structural requirements of a template
func (t *EvaluationTemplate) Validate() error {
	validate := validator.New()
	return validate.Struct(t)
}

// Clone returns a deep copy of the template
func (t *EvaluationTemplate) Clone() *EvaluationTemplate {
	if t == nil {
		return nil
	}
	out := *t
	out.Categories = make([]MetricCategory, len(t.Categories))
	for i, cat := range t.Categories {
		out.Categories[i] = cat.Clone()
	}
	return &out
}

// Clone returns a deep copy of the category
func (c MetricCategory) Clone() MetricCategory {
	out := c
	out.Metrics = make([]Metric, len(c.Metrics))
	for i, m := range c.Metrics {
		out.Metrics[i] = m.Clone()
	}
	return out
}

// Clone returns a deep copy of the metric
func (m Metric) Clone() Metric {
	out := m
	out.Thresholds = CloneThresholds(m.Thresholds)
	if m.Tools != nil {
		out.Tools = append([]string(nil), m.Tools...)
	}
	return out
}

// CloneThresholds copies a tier→text map
func CloneThresholds(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// EnsureTierPlaceholders fills missing canonical tier thresholds with placeholder text
func (t *EvaluationTemplate) EnsureTierPlaceholders() {
	for ci := range t.Categories {
		metrics := t.Categories[ci].Metrics
		for mi := range metrics {
			if metrics[mi].Thresholds == nil {
				metrics[mi].Thresholds = make(map[string]string)
			}
			if _, ok := metrics[mi].Thresholds[TierKeyT0]; !ok {
				metrics[mi].Thresholds[TierKeyT0] = PlaceholderT0
			}
			if _, ok := metrics[mi].Thresholds[TierKeyT1]; !ok {
				metrics[mi].Thresholds[TierKeyT1] = PlaceholderT1
			}
		}
	}
}

// Category returns the category with the given ID, or nil
func (t *EvaluationTemplate) Category(id string) *MetricCategory {
	for i := range t.Categories {
		if t.Categories[i].ID == id {
			return &t.Categories[i]
		}
	}
	return nil
}

// Metric returns the metric addressed by (categoryID, metricID), or nil
func (t *EvaluationTemplate) Metric(categoryID, metricID string) *Metric {
	cat := t.Category(categoryID)
	if cat == nil {
		return nil
	}
	for i := range cat.Metrics {
		if cat.Metrics[i].ID == metricID {
			return &cat.Metrics[i]
		}
	}
	return nil
}

// MetricCount returns the number of metrics across all categories
func (t *EvaluationTemplate) MetricCount() int {
	total := 0
	for _, cat := range t.Categories {
		total += len(cat.Metrics)
	}
	return total
}

// Neighbors returns the metrics before and after the addressed one in rubric order.
// Either result is nil at the ends of the rubric or when the metric is unknown.
func (t *EvaluationTemplate) Neighbors(categoryID, metricID string) (prev, next *MetricRef) {
	var refs []MetricRef
	for _, cat := range t.Categories {
		for _, m := range cat.Metrics {
			refs = append(refs, MetricRef{CategoryID: cat.ID, MetricID: m.ID})
		}
	}

	for i, ref := range refs {
		if ref.CategoryID != categoryID || ref.MetricID != metricID {
			continue
		}
		if i > 0 {
			p := refs[i-1]
			prev = &p
		}
		if i < len(refs)-1 {
			n := refs[i+1]
			next = &n
		}
		return prev, next
	}
	return nil, nil
}
