package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/evaluation"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/events"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/models"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/store"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/templates"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/thresholds"
)

var ErrPersist = errors.New("imported data could not be persisted")

// ImportResult summarizes what an import restored
type ImportResult struct {
	Evaluations int  `json:"evaluations"`
	Thresholds  int  `json:"thresholds"`
	Appearance  bool `json:"appearance"`
	Merged      bool `json:"merged"`
}

// Service moves whole datasets between the record store and export documents
type Service struct {
	store      *store.RecordStore
	session    *evaluation.Session
	thresholds *thresholds.Layer
	templates  *templates.Repository
	notifier   events.Notifier
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithNotifier publishes import and clear events
func WithNotifier(n events.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a transfer service over already loaded components
func NewService(st *store.RecordStore, sess *evaluation.Session, layer *thresholds.Layer, repo *templates.Repository, opts ...Option) *Service {
	s := &Service{
		store:      st,
		session:    sess,
		thresholds: layer,
		templates:  repo,
		notifier:   events.Nop{},
		now:        func() time.Time { return time.Now().UTC() },
		logger:     slog.Default().With("component", "transfer"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportAll builds a backup of evaluations, thresholds and appearance settings
func (s *Service) ExportAll(ctx context.Context) *models.BulkExport {
	appearance := store.Get[json.RawMessage](ctx, s.store, store.KeyAppearance, nil)
	return BuildBulk(s.session.List(), s.thresholds.List(), appearance, s.now())
}

// ExportProject builds the single-evaluation document of a saved project
func (s *Service) ExportProject(id string) (*models.SingleExport, error) {
	p := s.session.Get(id)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", evaluation.ErrProjectNotFound, id)
	}
	return BuildSingle(p, s.now()), nil
}

// ImportAll restores a decoded document. A bulk document replaces every
// evaluation and, when present, the thresholds and appearance settings. A
// single-evaluation document is merged into the existing projects by id.
func (s *Service) ImportAll(ctx context.Context, data []byte) (*ImportResult, error) {
	doc, err := ParseBulk(data)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Merged: doc.Single}
	projects := doc.Evaluations
	if doc.Single {
		projects = merge(s.session.List(), doc.Evaluations)
	}

	var errs []error
	if err := s.session.Replace(ctx, projects); err != nil {
		errs = append(errs, fmt.Errorf("evaluations: %w", err))
	}
	result.Evaluations = len(doc.Evaluations)

	if !doc.Single && doc.Thresholds != nil {
		if err := s.thresholds.Replace(ctx, doc.Thresholds); err != nil {
			errs = append(errs, fmt.Errorf("thresholds: %w", err))
		}
		result.Thresholds = len(doc.Thresholds)
	}

	if !doc.Single && doc.Appearance != nil {
		if !s.store.Save(ctx, store.KeyAppearance, doc.Appearance) {
			errs = append(errs, fmt.Errorf("appearance: %w", ErrPersist))
		}
		result.Appearance = true
	}

	s.logger.Info("data imported",
		"evaluations", result.Evaluations,
		"thresholds", result.Thresholds,
		"appearance", result.Appearance,
		"merged", result.Merged,
		"version", doc.Version,
	)
	s.notifier.Notify(events.Event{Type: events.DataImported, Data: result, Time: s.now()})

	if len(errs) > 0 {
		return result, errors.Join(errs...)
	}
	return result, nil
}

// ClearAll wipes every record under the namespace and reinitializes the
// template repository, the thresholds and the session from scratch
func (s *Service) ClearAll(ctx context.Context) error {
	if !s.store.Clear(ctx) {
		return ErrPersist
	}

	s.session.Close()
	if err := s.templates.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to reinitialize templates: %w", err)
	}
	if err := s.thresholds.Load(ctx); err != nil {
		return fmt.Errorf("failed to reload thresholds: %w", err)
	}
	s.session.Load(ctx)

	s.logger.Warn("all data cleared")
	s.notifier.Notify(events.Event{Type: events.DataCleared, Time: s.now()})
	return nil
}

// Usage reports the record store footprint
func (s *Service) Usage(ctx context.Context) (*store.Usage, error) {
	return s.store.Usage(ctx)
}

func merge(existing, incoming []*models.ProjectEvaluation) []*models.ProjectEvaluation {
	out := existing
	for _, p := range incoming {
		replaced := false
		for i, cur := range out {
			if cur.ID == p.ID {
				out[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, p)
		}
	}
	return out
}
