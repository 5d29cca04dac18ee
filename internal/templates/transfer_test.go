package templates

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/catalog"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/models"
)

// captureExporter keeps the last exported document as JSON
type captureExporter struct {
	filename string
	data     []byte
}

func (e *captureExporter) Export(_ context.Context, filename string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	e.filename = filename
	e.data = data
	return nil
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	original := repo.Get(catalog.DefaultTemplateID)

	exp := &captureExporter{}
	require.NoError(t, repo.Export(ctx, original.ID, exp))
	assert.Equal(t, "web3-bd-evaluation-framework-template.json", exp.filename)

	imported, err := repo.Import(ctx, exp.data)
	require.NoError(t, err)

	assert.Equal(t, original.Categories, imported.Categories)
	assert.NotEqual(t, original.ID, imported.ID)
	assert.False(t, imported.IsBuiltIn)
	assert.False(t, imported.IsLocked)
	assert.Equal(t, fixedNow, imported.CreatedAt)

	seen := 0
	for _, tmpl := range repo.List() {
		if tmpl.ID == imported.ID {
			seen++
		}
	}
	assert.Equal(t, 1, seen)
}

func TestImport_BuiltinIDIsNotSpoofed(t *testing.T) {
	repo, _ := newTestRepo(t)
	doc := `{"id": "default-web3-framework", "name": "Fake default", "isBuiltIn": true, "isLocked": true, "categories": []}`

	imported, err := repo.Import(context.Background(), []byte(doc))
	require.NoError(t, err)
	assert.NotEqual(t, catalog.DefaultTemplateID, imported.ID)
	assert.False(t, imported.IsBuiltIn)
	assert.False(t, imported.IsLocked)
	assert.NotEqual(t, "Fake default", repo.Get(catalog.DefaultTemplateID).Name)
}

func TestImport_Invalid(t *testing.T) {
	repo, _ := newTestRepo(t)
	count := len(repo.List())

	tests := []struct {
		name string
		doc  string
	}{
		{name: "not json", doc: `{"id": `},
		{name: "missing categories", doc: `{"id": "x", "name": "X"}`},
		{name: "missing name", doc: `{"id": "x", "categories": []}`},
		{name: "categories not array", doc: `{"id": "x", "name": "X", "categories": {}}`},
		{name: "metric without name", doc: `{"id": "x", "name": "X", "categories": [{"id": "c", "name": "C", "metrics": [{"id": "m"}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Import(context.Background(), []byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidTemplate)
		})
	}
	assert.Len(t, repo.List(), count)
}

func TestImport_ReportsFields(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.Import(context.Background(), []byte(`{"id": "x", "name": "X"}`))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.NotEmpty(t, ve.Errors)
	assert.Contains(t, ve.Error(), "categories")
}

func TestExport_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t)
	err := repo.Export(context.Background(), "missing", &captureExporter{})
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Web3 BD Evaluation Framework": "web3-bd-evaluation-framework",
		"  DeFi / Lending (Copy) ":     "defi-lending-copy",
		"---":                          "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slug(in), in)
	}
	assert.Equal(t, "abc-template.json", ExportFilename(&models.EvaluationTemplate{ID: "abc", Name: "!!"}))
}

func TestDiff(t *testing.T) {
	repo, _ := newTestRepo(t)
	def := repo.Get(catalog.DefaultTemplateID)

	same, err := Diff(def, repo.Get(catalog.DefaultTemplateID))
	require.NoError(t, err)
	assert.Empty(t, same)

	changed := def.Clone()
	changed.ID = "edited"
	changed.Categories[0].Metrics[0].Thresholds[models.TierKeyT0] = "Fully doxxed founders"

	text, err := Diff(def, changed)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "--- "+catalog.DefaultTemplateID))
	assert.Contains(t, text, "+++ edited")

	added := false
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "+") && strings.Contains(line, "T0: Fully doxxed founders") {
			added = true
		}
	}
	assert.True(t, added, text)
}
