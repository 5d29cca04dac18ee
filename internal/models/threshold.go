package models

import "time"

// ThresholdConfig holds user-overridable threshold text for one metric
type ThresholdConfig struct {
	ID         string            `json:"id"`
	MetricID   string            `json:"metricId"`
	CategoryID string            `json:"categoryId"`
	Thresholds map[string]string `json:"thresholds"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// ThresholdID builds the "<categoryId>-<metricId>" identifier
func ThresholdID(categoryID, metricID string) string {
	return categoryID + "-" + metricID
}

// Clone returns a deep copy of the config
func (c ThresholdConfig) Clone() ThresholdConfig {
	out := c
	out.Thresholds = CloneThresholds(c.Thresholds)
	return out
}

// CloneThresholdConfigs deep-copies a config list
func CloneThresholdConfigs(in []ThresholdConfig) []ThresholdConfig {
	if in == nil {
		return nil
	}
	out := make([]ThresholdConfig, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}
