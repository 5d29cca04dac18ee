// Package templates manages the user's collection of evaluation templates:
// exactly one active, built-ins kept locked and in sync with the catalog.
package templates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/catalog"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/events"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/models"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/store"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateLocked   = errors.New("template is locked")
	ErrLastTemplate     = errors.New("cannot delete the only template")
	ErrTemplateActive   = errors.New("cannot delete the active template")
	ErrInvalidTemplate  = errors.New("invalid template")
	ErrPersist          = errors.New("template changes could not be persisted")
)

// Suffixes appended to derived template names
const (
	PersonalSuffix = " (Personal)"
	CopySuffix     = " (Copy)"
)

// state is the persisted record
type state struct {
	Templates        []*models.EvaluationTemplate `json:"templates"`
	ActiveTemplateID string                       `json:"activeTemplateId"`
}

// Repository holds the templates and the active pointer
type Repository struct {
	mu       sync.RWMutex
	store    *store.RecordStore
	catalog  *catalog.Loader
	notifier events.Notifier
	now      func() time.Time
	logger   *slog.Logger
	state    state
}

// Option configures a Repository
type Option func(*Repository)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// WithNotifier publishes change events
func WithNotifier(n events.Notifier) Option {
	return func(r *Repository) {
		r.notifier = n
	}
}

// NewRepository creates a repository over the record store. Call Initialize before use.
func NewRepository(st *store.RecordStore, cat *catalog.Loader, opts ...Option) *Repository {
	r := &Repository{
		store:    st,
		catalog:  cat,
		notifier: events.Nop{},
		now:      func() time.Time { return time.Now().UTC() },
		logger:   slog.Default().With("component", "templates"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Initialize loads stored state, seeds it on first run and reconciles the
// canonical built-ins. In-memory state is usable even when ErrPersist is returned.
func (r *Repository) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = store.Get(ctx, r.store, store.KeyTemplates, state{})
	r.dropEmpty()

	if len(r.state.Templates) == 0 {
		def := r.catalog.Default()
		personal := r.derive(def, def.Name+PersonalSuffix)
		r.state = state{
			Templates:        []*models.EvaluationTemplate{def, personal},
			ActiveTemplateID: def.ID,
		}
		r.logger.Info("seeded template repository", "default", def.ID, "personal", personal.ID)
	}

	inserted, refreshed := 0, 0
	for _, builtin := range r.catalog.Builtins() {
		if idx := r.indexOf(builtin.ID); idx >= 0 {
			r.state.Templates[idx] = builtin
			refreshed++
			continue
		}
		r.state.Templates = append(r.state.Templates, builtin)
		inserted++
	}

	if r.indexOf(r.state.ActiveTemplateID) < 0 {
		repaired := r.state.Templates[0].ID
		if r.indexOf(catalog.DefaultTemplateID) >= 0 {
			repaired = catalog.DefaultTemplateID
		}
		r.logger.Warn("active template missing, repaired pointer",
			"previous", r.state.ActiveTemplateID,
			"active", repaired,
		)
		r.state.ActiveTemplateID = repaired
	}

	r.logger.Info("template repository initialized",
		"templates", len(r.state.Templates),
		"active", r.state.ActiveTemplateID,
		"builtins_inserted", inserted,
		"builtins_refreshed", refreshed,
	)
	return r.persist(ctx)
}

// List returns copies of every template in stored order
func (r *Repository) List() []*models.EvaluationTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.EvaluationTemplate, len(r.state.Templates))
	for i, t := range r.state.Templates {
		result[i] = t.Clone()
	}
	return result
}

// Get returns a copy of the template, or nil if not found
func (r *Repository) Get(id string) *models.EvaluationTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if idx := r.indexOf(id); idx >= 0 {
		return r.state.Templates[idx].Clone()
	}
	return nil
}

// Active returns a copy of the active template
func (r *Repository) Active() *models.EvaluationTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if idx := r.indexOf(r.state.ActiveTemplateID); idx >= 0 {
		return r.state.Templates[idx].Clone()
	}
	return nil
}

// ActiveID returns the active template id
func (r *Repository) ActiveID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.ActiveTemplateID
}

// SetActive switches the active template. Thresholds are not touched.
func (r *Repository) SetActive(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(id) < 0 {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	r.state.ActiveTemplateID = id
	r.logger.Info("template activated", "id", id)
	r.notify(events.TemplateActivated, id)
	return r.persist(ctx)
}

// Save inserts or replaces a template by id. A locked stored record is never
// replaced. The returned copy reflects the assigned id and timestamps.
func (r *Repository) Save(ctx context.Context, tmpl *models.EvaluationTemplate) (*models.EvaluationTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(ctx, tmpl)
}

func (r *Repository) save(ctx context.Context, tmpl *models.EvaluationTemplate) (*models.EvaluationTemplate, error) {
	if tmpl == nil {
		return nil, fmt.Errorf("%w: nil template", ErrInvalidTemplate)
	}

	idx := r.indexOf(tmpl.ID)
	if idx >= 0 && r.state.Templates[idx].IsLocked {
		r.logger.Warn("refused to save locked template", "id", tmpl.ID)
		return nil, fmt.Errorf("%w: %s", ErrTemplateLocked, tmpl.ID)
	}

	next := tmpl.Clone()
	if next.ID == "" {
		next.ID = uuid.NewString()
	}
	// built-in and locked flags are owned by the catalog, never by callers
	next.IsLocked = false
	next.IsBuiltIn = false
	now := r.now()
	if idx >= 0 {
		next.CreatedAt = r.state.Templates[idx].CreatedAt
		next.IsBuiltIn = r.state.Templates[idx].IsBuiltIn
	} else {
		next.CreatedAt = now
	}
	next.UpdatedAt = now
	if next.Categories == nil {
		next.Categories = []models.MetricCategory{}
	}
	next.EnsureTierPlaceholders()

	if err := next.Validate(); err != nil {
		return nil, newValidationError(err)
	}

	if idx >= 0 {
		r.state.Templates[idx] = next
	} else {
		r.state.Templates = append(r.state.Templates, next)
	}

	r.logger.Info("template saved", "id", next.ID, "name", next.Name, "new", idx < 0)
	r.notify(events.TemplateSaved, next.ID)
	return next.Clone(), r.persist(ctx)
}

// Delete removes a template. Locked, sole and active templates cannot be deleted.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	switch {
	case idx < 0:
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	case r.state.Templates[idx].IsLocked:
		return fmt.Errorf("%w: %s", ErrTemplateLocked, id)
	case len(r.state.Templates) == 1:
		return ErrLastTemplate
	case id == r.state.ActiveTemplateID:
		return fmt.Errorf("%w: %s", ErrTemplateActive, id)
	}

	r.state.Templates = append(r.state.Templates[:idx], r.state.Templates[idx+1:]...)
	r.logger.Info("template deleted", "id", id)
	r.notify(events.TemplateDeleted, id)
	return r.persist(ctx)
}

// Duplicate saves an editable deep copy of a template
func (r *Repository) Duplicate(ctx context.Context, id string) (*models.EvaluationTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}

	src := r.state.Templates[idx]
	dup := r.derive(src, src.Name+CopySuffix)
	r.state.Templates = append(r.state.Templates, dup)

	r.logger.Info("template duplicated", "source", id, "id", dup.ID)
	r.notify(events.TemplateSaved, dup.ID)
	return dup.Clone(), r.persist(ctx)
}

// CreateEmpty returns an unsaved template with one placeholder category
func (r *Repository) CreateEmpty() *models.EvaluationTemplate {
	now := r.now()
	return &models.EvaluationTemplate{
		ID:          uuid.NewString(),
		Name:        "New Template",
		Description: "Custom evaluation template",
		CreatedAt:   now,
		UpdatedAt:   now,
		Categories: []models.MetricCategory{
			{
				ID:          "category-1",
				Name:        "New Category",
				Description: "Category description",
				Metrics:     []models.Metric{},
			},
		},
	}
}

// derive builds an unlocked, user-owned copy with a fresh id
func (r *Repository) derive(src *models.EvaluationTemplate, name string) *models.EvaluationTemplate {
	now := r.now()
	dup := src.Clone()
	dup.ID = uuid.NewString()
	dup.Name = name
	dup.IsBuiltIn = false
	dup.IsLocked = false
	dup.CreatedAt = now
	dup.UpdatedAt = now
	return dup
}

func (r *Repository) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, t := range r.state.Templates {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// dropEmpty discards null entries left by a partially written record
func (r *Repository) dropEmpty() {
	kept := r.state.Templates[:0]
	for _, t := range r.state.Templates {
		if t != nil && t.ID != "" {
			kept = append(kept, t)
		}
	}
	r.state.Templates = kept
}

func (r *Repository) persist(ctx context.Context) error {
	if !r.store.Save(ctx, store.KeyTemplates, r.state) {
		return ErrPersist
	}
	return nil
}

func (r *Repository) notify(eventType, id string) {
	r.notifier.Notify(events.Event{Type: eventType, ID: id, Time: r.now()})
}
