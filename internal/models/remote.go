package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RemoteProject is the project row kept by a networked backend, scoped to one user
type RemoteProject struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	TemplateID   string    `json:"templateId,omitempty"`
	OverallScore *float64  `json:"overallScore,omitempty"`
	OverallTier  Tier      `json:"overallTier"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RemoteEvaluation is the evaluation row; one per project. ProjectName is
// filled on reads from the owning project row.
type RemoteEvaluation struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"projectId"`
	ProjectName  string    `json:"projectName,omitempty"`
	UserID       string    `json:"userId"`
	TemplateID   string    `json:"templateId,omitempty"`
	Date         time.Time `json:"date"`
	OverallScore *float64  `json:"overallScore,omitempty"`
	OverallTier  Tier      `json:"overallTier"`
	Notes        string    `json:"notes,omitempty"`
}

// MetricRow is one stored metric evaluation of a remote evaluation
type MetricRow struct {
	EvaluationID string          `json:"evaluationId"`
	MetricKey    string          `json:"metricKey"`
	CategoryID   string          `json:"categoryId"`
	MetricID     string          `json:"metricId"`
	Value        json.RawMessage `json:"value"`
	Tier         Tier            `json:"tier"`
	Notes        string          `json:"notes,omitempty"`
}

// RemoteRecords splits a project into the rows a networked backend stores
func RemoteRecords(p *ProjectEvaluation, userID string, now time.Time) (*RemoteProject, *RemoteEvaluation, []MetricRow, error) {
	project := &RemoteProject{
		ID:           p.ID,
		UserID:       userID,
		Name:         p.Name,
		TemplateID:   p.TemplateID,
		OverallScore: p.OverallScore,
		OverallTier:  p.OverallTier,
		CreatedAt:    p.Date,
		UpdatedAt:    now,
	}
	eval := &RemoteEvaluation{
		ID:           p.ID,
		ProjectID:    p.ID,
		UserID:       userID,
		TemplateID:   p.TemplateID,
		Date:         p.Date,
		OverallScore: p.OverallScore,
		OverallTier:  p.OverallTier,
		Notes:        p.Notes,
	}

	rows := make([]MetricRow, 0, len(p.Metrics))
	for key, ev := range p.Metrics {
		value, err := json.Marshal(ev.Value)
		if err != nil {
			return nil, nil, nil, err
		}
		catID, metricID, _ := SplitMetricKey(key)
		rows = append(rows, MetricRow{
			EvaluationID: p.ID,
			MetricKey:    key,
			CategoryID:   catID,
			MetricID:     metricID,
			Value:        value,
			Tier:         ev.Tier,
			Notes:        ev.Notes,
		})
	}
	return project, eval, rows, nil
}

// FromRemote rebuilds a project evaluation from its stored rows
func FromRemote(e *RemoteEvaluation, rows []MetricRow) (*ProjectEvaluation, error) {
	p := &ProjectEvaluation{
		ID:           e.ID,
		Name:         e.ProjectName,
		Date:         e.Date,
		TemplateID:   e.TemplateID,
		Metrics:      make(map[string]MetricEvaluation, len(rows)),
		OverallScore: e.OverallScore,
		OverallTier:  e.OverallTier,
		Notes:        e.Notes,
	}
	for _, row := range rows {
		var value any
		if len(row.Value) > 0 {
			if err := json.Unmarshal(row.Value, &value); err != nil {
				return nil, fmt.Errorf("failed to decode value of %s: %w", row.MetricKey, err)
			}
		}
		p.Metrics[row.MetricKey] = MetricEvaluation{Value: value, Tier: row.Tier, Notes: row.Notes}
	}
	return p, nil
}
