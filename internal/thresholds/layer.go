// Package thresholds maintains per-metric tier threshold text that the user
// can override independently of the template structure.
package thresholds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/catalog"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/events"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/models"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/store"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrPersist          = errors.New("threshold changes could not be persisted")
)

// TemplateSource resolves templates; the template repository satisfies it
type TemplateSource interface {
	Active() *models.EvaluationTemplate
	Get(id string) *models.EvaluationTemplate
}

// Layer holds the working threshold list, the last saved snapshot and the
// dirty flag
type Layer struct {
	mu       sync.RWMutex
	store    *store.RecordStore
	catalog  *catalog.Loader
	source   TemplateSource
	notifier events.Notifier
	now      func() time.Time
	logger   *slog.Logger

	configs  []models.ThresholdConfig
	original []models.ThresholdConfig
	dirty    bool
}

// Option configures a Layer
type Option func(*Layer)

// WithTemplateSource derives defaults from the active template instead of the catalog default
func WithTemplateSource(src TemplateSource) Option {
	return func(l *Layer) {
		l.source = src
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Layer) {
		l.now = now
	}
}

// WithNotifier publishes change events
func WithNotifier(n events.Notifier) Option {
	return func(l *Layer) {
		l.notifier = n
	}
}

// New creates a threshold layer. Call Load before use.
func New(st *store.RecordStore, cat *catalog.Loader, opts ...Option) *Layer {
	l := &Layer{
		store:    st,
		catalog:  cat,
		notifier: events.Nop{},
		now:      func() time.Time { return time.Now().UTC() },
		logger:   slog.Default().With("component", "thresholds"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads stored thresholds. When none exist a baseline is synthesized
// from the active template and persisted.
func (l *Layer) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.configs = store.Get[[]models.ThresholdConfig](ctx, l.store, store.KeyThresholds, nil)
	l.dirty = false

	var err error
	if len(l.configs) == 0 {
		base := l.baseline()
		l.configs = l.derive(base)
		l.logger.Info("synthesized threshold baseline", "template", base.ID, "count", len(l.configs))
		if !l.store.Save(ctx, store.KeyThresholds, l.configs) {
			err = ErrPersist
		}
	}

	l.original = models.CloneThresholdConfigs(l.configs)
	return err
}

// List returns a copy of the working thresholds
func (l *Layer) List() []models.ThresholdConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return models.CloneThresholdConfigs(l.configs)
}

// HasUnsavedChanges reports whether the working list differs from the last save
func (l *Layer) HasUnsavedChanges() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dirty
}

// Update replaces the thresholds of one config in memory. It returns false and
// leaves state untouched when no config exists for the pair.
func (l *Layer) Update(metricID, categoryID string, thresholds map[string]string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.configs {
		c := &l.configs[i]
		if c.MetricID != metricID || c.CategoryID != categoryID {
			continue
		}
		c.Thresholds = models.CloneThresholds(thresholds)
		c.UpdatedAt = l.now()
		l.dirty = true
		return true
	}

	l.logger.Debug("no threshold config for metric", "metric", metricID, "category", categoryID)
	return false
}

// Save persists the working list. On failure the list stays dirty.
func (l *Layer) Save(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.store.Save(ctx, store.KeyThresholds, l.configs) {
		return ErrPersist
	}
	l.original = models.CloneThresholdConfigs(l.configs)
	l.dirty = false
	l.notifier.Notify(events.Event{Type: events.ThresholdsSaved, Time: l.now()})
	return nil
}

// Reset restores the last saved snapshot
func (l *Layer) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.configs = models.CloneThresholdConfigs(l.original)
	l.dirty = false
}

// ApplyTemplateThresholds regenerates the whole list from a template (the
// active one when templateID is empty) and persists it immediately
func (l *Layer) ApplyTemplateThresholds(ctx context.Context, templateID string) error {
	tmpl := l.resolve(templateID)
	if tmpl == nil {
		return fmt.Errorf("%w: %q", ErrTemplateNotFound, templateID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.configs = l.derive(tmpl)
	if !l.store.Save(ctx, store.KeyThresholds, l.configs) {
		l.dirty = true
		return ErrPersist
	}
	l.original = models.CloneThresholdConfigs(l.configs)
	l.dirty = false

	l.logger.Info("applied template thresholds", "template", tmpl.ID, "count", len(l.configs))
	l.notifier.Notify(events.Event{Type: events.ThresholdsApplied, ID: tmpl.ID, Time: l.now()})
	return nil
}

// Replace installs and persists a complete threshold list, as restored from a backup
func (l *Layer) Replace(ctx context.Context, configs []models.ThresholdConfig) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.configs = models.CloneThresholdConfigs(configs)
	if l.configs == nil {
		l.configs = []models.ThresholdConfig{}
	}
	if !l.store.Save(ctx, store.KeyThresholds, l.configs) {
		l.dirty = true
		return ErrPersist
	}
	l.original = models.CloneThresholdConfigs(l.configs)
	l.dirty = false
	return nil
}

// Threshold returns the text for one tier of a metric: the stored override
// when non-empty, else the active template's text, else the catalog default's,
// else "".
func (l *Layer) Threshold(metricID, categoryID, tier string) string {
	l.mu.RLock()
	for _, c := range l.configs {
		if c.MetricID == metricID && c.CategoryID == categoryID {
			if text := c.Thresholds[tier]; text != "" {
				l.mu.RUnlock()
				return text
			}
			break
		}
	}
	l.mu.RUnlock()

	if l.source != nil {
		if active := l.source.Active(); active != nil {
			if m := active.Metric(categoryID, metricID); m != nil && m.Thresholds[tier] != "" {
				return m.Thresholds[tier]
			}
		}
	}
	if l.catalog != nil {
		if m := l.catalog.Default().Metric(categoryID, metricID); m != nil {
			return m.Thresholds[tier]
		}
	}
	return ""
}

func (l *Layer) resolve(templateID string) *models.EvaluationTemplate {
	if l.source != nil {
		if templateID == "" {
			return l.source.Active()
		}
		return l.source.Get(templateID)
	}
	if l.catalog == nil {
		return nil
	}
	if templateID == "" {
		return l.catalog.Default()
	}
	return l.catalog.Get(templateID)
}

// baseline picks the template that seeds a fresh threshold list
func (l *Layer) baseline() *models.EvaluationTemplate {
	if tmpl := l.resolve(""); tmpl != nil {
		return tmpl
	}
	return &models.EvaluationTemplate{}
}

func (l *Layer) derive(tmpl *models.EvaluationTemplate) []models.ThresholdConfig {
	now := l.now()
	configs := make([]models.ThresholdConfig, 0, tmpl.MetricCount())
	for _, cat := range tmpl.Categories {
		for _, m := range cat.Metrics {
			configs = append(configs, models.ThresholdConfig{
				ID:         models.ThresholdID(cat.ID, m.ID),
				MetricID:   m.ID,
				CategoryID: cat.ID,
				Thresholds: models.CloneThresholds(m.Thresholds),
				UpdatedAt:  now,
			})
		}
	}
	return configs
}
