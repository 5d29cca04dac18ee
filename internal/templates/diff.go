package templates

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/models"
)

// diffView is the part of a template compared by Diff; bookkeeping fields
// like timestamps are left out
type diffView struct {
	Name        string                  `yaml:"name"`
	Description string                  `yaml:"description"`
	Author      string                  `yaml:"author"`
	Categories  []models.MetricCategory `yaml:"categories"`
}

// Diff renders a unified diff between the YAML forms of two templates. An
// empty string means the rubrics are identical.
func Diff(a, b *models.EvaluationTemplate) (string, error) {
	if a == nil || b == nil {
		return "", fmt.Errorf("%w: cannot diff a nil template", ErrInvalidTemplate)
	}

	left, err := render(a)
	if err != nil {
		return "", err
	}
	right, err := render(b)
	if err != nil {
		return "", err
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(left),
		B:        difflib.SplitLines(right),
		FromFile: a.ID,
		ToFile:   b.ID,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("failed to diff templates: %w", err)
	}
	return text, nil
}

func render(t *models.EvaluationTemplate) (string, error) {
	data, err := yaml.Marshal(diffView{
		Name:        t.Name,
		Description: t.Description,
		Author:      t.Author,
		Categories:  t.Categories,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", t.ID, err)
	}
	return string(data), nil
}
