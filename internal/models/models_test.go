package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTier(t *testing.T) {
	tests := []struct {
		in      string
		want    Tier
		wantErr bool
	}{
		{"T0", TierT0, false},
		{" t1 ", TierT1, false},
		{"", TierNone, false},
		{"none", TierNone, false},
		{"null", TierNone, false},
		{"T2", TierNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTier(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTierJSON(t *testing.T) {
	data, err := json.Marshal(MetricEvaluation{Value: 3, Tier: TierNone})
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":3,"tier":null}`, string(data))

	var ev MetricEvaluation
	require.NoError(t, json.Unmarshal([]byte(`{"value":"x","tier":"T1"}`), &ev))
	assert.Equal(t, TierT1, ev.Tier)
	require.NoError(t, json.Unmarshal([]byte(`{"value":"x","tier":null}`), &ev))
	assert.Equal(t, TierNone, ev.Tier)
}

func TestMetricKey(t *testing.T) {
	key := MetricKey("foundational", "team_quality")
	assert.Equal(t, "foundational_team_quality", key)

	cat, metric, ok := SplitMetricKey(key)
	require.True(t, ok)
	assert.Equal(t, "foundational", cat)
	assert.Equal(t, "team_quality", metric)

	_, _, ok = SplitMetricKey("nounderscore")
	assert.False(t, ok)
}

func rubric() *EvaluationTemplate {
	return &EvaluationTemplate{
		ID:   "t",
		Name: "T",
		Categories: []MetricCategory{
			{ID: "a", Name: "A", Metrics: []Metric{{ID: "a1", Name: "A1"}, {ID: "a2", Name: "A2"}}},
			{ID: "empty", Name: "Empty"},
			{ID: "b", Name: "B", Metrics: []Metric{{ID: "b1", Name: "B1", Thresholds: map[string]string{"T0": "x"}}}},
		},
	}
}

func TestNeighbors(t *testing.T) {
	tmpl := rubric()

	prev, next := tmpl.Neighbors("a", "a1")
	assert.Nil(t, prev)
	assert.Equal(t, &MetricRef{CategoryID: "a", MetricID: "a2"}, next)

	// crosses the empty category
	prev, next = tmpl.Neighbors("a", "a2")
	assert.Equal(t, &MetricRef{CategoryID: "a", MetricID: "a1"}, prev)
	assert.Equal(t, &MetricRef{CategoryID: "b", MetricID: "b1"}, next)

	prev, next = tmpl.Neighbors("b", "b1")
	assert.NotNil(t, prev)
	assert.Nil(t, next)

	prev, next = tmpl.Neighbors("b", "missing")
	assert.Nil(t, prev)
	assert.Nil(t, next)
}

func TestTemplateClone_IsDeep(t *testing.T) {
	tmpl := rubric()
	c := tmpl.Clone()
	c.Categories[2].Metrics[0].Thresholds["T0"] = "changed"
	c.Categories[0].Metrics[0].Name = "changed"

	assert.Equal(t, "x", tmpl.Categories[2].Metrics[0].Thresholds["T0"])
	assert.Equal(t, "A1", tmpl.Categories[0].Metrics[0].Name)
	assert.Equal(t, 3, tmpl.MetricCount())
}

func TestEnsureTierPlaceholders(t *testing.T) {
	tmpl := rubric()
	tmpl.EnsureTierPlaceholders()

	assert.Equal(t, PlaceholderT0, tmpl.Categories[0].Metrics[0].Thresholds[TierKeyT0])
	assert.Equal(t, PlaceholderT1, tmpl.Categories[0].Metrics[0].Thresholds[TierKeyT1])
	assert.Equal(t, "x", tmpl.Categories[2].Metrics[0].Thresholds[TierKeyT0])
}

func TestProjectClone_IsDeep(t *testing.T) {
	score := 75.0
	p := &ProjectEvaluation{
		ID:           "p",
		Metrics:      map[string]MetricEvaluation{"a_a1": {Tier: TierT0}},
		OverallScore: &score,
	}
	c := p.Clone()
	c.Metrics["a_a2"] = MetricEvaluation{Tier: TierT1}
	*c.OverallScore = 10

	assert.Len(t, p.Metrics, 1)
	assert.Equal(t, 75.0, *p.OverallScore)
	assert.Nil(t, (*ProjectEvaluation)(nil).Clone())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, rubric().Validate())

	bad := rubric()
	bad.Categories[0].Metrics[0].ID = ""
	assert.Error(t, bad.Validate())
}
