package templates

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/models"
)

var (
	ErrDraftClosed      = errors.New("draft already committed or discarded")
	ErrCategoryNotFound = errors.New("category not found")
	ErrMetricNotFound   = errors.New("metric not found")
)

// Draft is an independent, editable copy of a template. Nothing reaches the
// repository until Commit; after Commit or Discard every call fails with
// ErrDraftClosed.
type Draft struct {
	mu     sync.Mutex
	repo   *Repository
	tmpl   *models.EvaluationTemplate
	closed bool
}

// Checkout starts a draft from a stored template. Locked templates can be
// checked out but their drafts cannot be committed.
func (r *Repository) Checkout(id string) (*Draft, error) {
	tmpl := r.Get(id)
	if tmpl == nil {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return &Draft{repo: r, tmpl: tmpl}, nil
}

// CheckoutNew starts a draft from an unsaved template
func (r *Repository) CheckoutNew(tmpl *models.EvaluationTemplate) *Draft {
	if tmpl == nil {
		tmpl = r.CreateEmpty()
	}
	return &Draft{repo: r, tmpl: tmpl.Clone()}
}

// Template returns a copy of the draft's current content
func (d *Draft) Template() *models.EvaluationTemplate {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tmpl.Clone()
}

// SetInfo replaces the descriptive fields
func (d *Draft) SetInfo(name, description, author string) error {
	return d.edit(func(t *models.EvaluationTemplate) error {
		t.Name = name
		t.Description = description
		t.Author = author
		return nil
	})
}

// AddCategory appends a category
func (d *Draft) AddCategory(cat models.MetricCategory) error {
	return d.edit(func(t *models.EvaluationTemplate) error {
		if t.Category(cat.ID) != nil {
			return fmt.Errorf("%w: category %s already exists", ErrInvalidTemplate, cat.ID)
		}
		cat = cat.Clone()
		t.Categories = append(t.Categories, cat)
		return nil
	})
}

// RemoveCategory drops a category and its metrics
func (d *Draft) RemoveCategory(id string) error {
	return d.edit(func(t *models.EvaluationTemplate) error {
		for i := range t.Categories {
			if t.Categories[i].ID == id {
				t.Categories = append(t.Categories[:i], t.Categories[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrCategoryNotFound, id)
	})
}

// MoveCategory moves a category to index, clamped to the valid range
func (d *Draft) MoveCategory(id string, index int) error {
	return d.edit(func(t *models.EvaluationTemplate) error {
		from := -1
		for i := range t.Categories {
			if t.Categories[i].ID == id {
				from = i
				break
			}
		}
		if from < 0 {
			return fmt.Errorf("%w: %s", ErrCategoryNotFound, id)
		}
		index = max(0, min(index, len(t.Categories)-1))

		cat := t.Categories[from]
		rest := append(t.Categories[:from:from], t.Categories[from+1:]...)
		moved := make([]models.MetricCategory, 0, len(t.Categories))
		moved = append(moved, rest[:index]...)
		moved = append(moved, cat)
		moved = append(moved, rest[index:]...)
		t.Categories = moved
		return nil
	})
}

// AddMetric appends a metric to a category
func (d *Draft) AddMetric(categoryID string, m models.Metric) error {
	return d.edit(func(t *models.EvaluationTemplate) error {
		cat := t.Category(categoryID)
		if cat == nil {
			return fmt.Errorf("%w: %s", ErrCategoryNotFound, categoryID)
		}
		if t.Metric(categoryID, m.ID) != nil {
			return fmt.Errorf("%w: metric %s already exists in %s", ErrInvalidTemplate, m.ID, categoryID)
		}
		cat.Metrics = append(cat.Metrics, m.Clone())
		return nil
	})
}

// UpdateMetric replaces the metric with the same id
func (d *Draft) UpdateMetric(categoryID string, m models.Metric) error {
	return d.edit(func(t *models.EvaluationTemplate) error {
		existing := t.Metric(categoryID, m.ID)
		if existing == nil {
			return fmt.Errorf("%w: %s/%s", ErrMetricNotFound, categoryID, m.ID)
		}
		*existing = m.Clone()
		return nil
	})
}

// RemoveMetric drops a metric from a category
func (d *Draft) RemoveMetric(categoryID, metricID string) error {
	return d.edit(func(t *models.EvaluationTemplate) error {
		cat := t.Category(categoryID)
		if cat == nil {
			return fmt.Errorf("%w: %s", ErrCategoryNotFound, categoryID)
		}
		for i := range cat.Metrics {
			if cat.Metrics[i].ID == metricID {
				cat.Metrics = append(cat.Metrics[:i], cat.Metrics[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: %s/%s", ErrMetricNotFound, categoryID, metricID)
	})
}

// Commit saves the draft and closes it. A failed validation or lock check
// leaves the draft open so it can be fixed or discarded.
func (d *Draft) Commit(ctx context.Context) (*models.EvaluationTemplate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDraftClosed
	}
	saved, err := d.repo.Save(ctx, d.tmpl)
	if saved == nil {
		return nil, err
	}
	d.closed = true
	return saved, err
}

// Discard drops the draft
func (d *Draft) Discard() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDraftClosed
	}
	d.closed = true
	d.tmpl = nil
	return nil
}

func (d *Draft) edit(fn func(*models.EvaluationTemplate) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDraftClosed
	}
	return fn(d.tmpl)
}
