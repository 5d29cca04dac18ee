// Package evaluation owns the project evaluations and the explicit "current"
// project being edited.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/events"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/models"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/scoring"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/storage"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/store"
)

var (
	ErrNoCurrentProject = errors.New("no project is open")
	ErrProjectNotFound  = errors.New("project not found")
	ErrPersist          = errors.New("evaluation changes could not be persisted")
)

// RemoteError wraps a failure of the remote persistence backend
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// DefaultUserID scopes remote rows when no identity is supplied
const DefaultUserID = "local"

// Session holds every known project plus the one currently being evaluated
type Session struct {
	mu       sync.RWMutex
	store    *store.RecordStore
	remote   storage.Repository
	notifier events.Notifier
	now      func() time.Time
	userID   string
	logger   *slog.Logger

	projects []*models.ProjectEvaluation
	current  *models.ProjectEvaluation
}

// Option configures a Session
type Option func(*Session)

// WithRemote mirrors saves and deletes to a networked backend
func WithRemote(repo storage.Repository) Option {
	return func(s *Session) {
		s.remote = repo
	}
}

// WithNotifier publishes change events
func WithNotifier(n events.Notifier) Option {
	return func(s *Session) {
		s.notifier = n
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithUserID sets the identity that scopes remote rows
func WithUserID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.userID = id
		}
	}
}

// NewSession creates an empty session. Call Load to read stored projects.
func NewSession(st *store.RecordStore, opts ...Option) *Session {
	s := &Session{
		store:    st,
		notifier: events.Nop{},
		now:      func() time.Time { return time.Now().UTC() },
		userID:   DefaultUserID,
		logger:   slog.Default().With("component", "evaluation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UserID returns the default identity used for remote rows
func (s *Session) UserID() string {
	return s.userID
}

type userKey struct{}

// ContextWithUser scopes remote operations made with ctx to userID
func ContextWithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFromContext returns the user id carried by ctx, or ""
func UserFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

func (s *Session) userFor(ctx context.Context) string {
	if id := UserFromContext(ctx); id != "" {
		return id
	}
	return s.userID
}

// Load reads the stored projects. The current pointer is kept only if the
// project still exists.
func (s *Session) Load(ctx context.Context) {
	stored := store.Get(ctx, s.store, store.KeyEvaluations, []*models.ProjectEvaluation{})

	s.mu.Lock()
	defer s.mu.Unlock()

	s.projects = s.projects[:0]
	for _, p := range stored {
		if p == nil || p.ID == "" {
			continue
		}
		if p.Metrics == nil {
			p.Metrics = map[string]models.MetricEvaluation{}
		}
		s.projects = append(s.projects, p)
	}
	if s.current != nil && s.indexOf(s.current.ID) < 0 {
		s.current = nil
	}
	s.logger.Info("evaluations loaded", "count", len(s.projects))
}

// List returns copies of every saved project in stored order
func (s *Session) List() []*models.ProjectEvaluation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.ProjectEvaluation, len(s.projects))
	for i, p := range s.projects {
		result[i] = p.Clone()
	}
	return result
}

// Get returns a copy of a saved project, or nil
func (s *Session) Get(id string) *models.ProjectEvaluation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx := s.indexOf(id); idx >= 0 {
		return s.projects[idx].Clone()
	}
	return nil
}

// Current returns a copy of the project being evaluated, or nil
func (s *Session) Current() *models.ProjectEvaluation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Open makes a saved project current
func (s *Session) Open(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	s.current = s.projects[idx].Clone()
	return nil
}

// Close drops the current pointer without saving
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

// Create starts a new, unsaved project and makes it current
func (s *Session) Create(name, templateID string) *models.ProjectEvaluation {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = &models.ProjectEvaluation{
		ID:         uuid.NewString(),
		Name:       name,
		Date:       s.now(),
		TemplateID: templateID,
		Metrics:    map[string]models.MetricEvaluation{},
	}
	s.logger.Info("project created", "id", s.current.ID, "name", name, "template", templateID)
	s.notifier.Notify(events.Event{Type: events.ProjectCreated, ID: s.current.ID, Time: s.now()})
	return s.current.Clone()
}

// UpdateMetric records an evaluation on the current project, replacing any
// previous entry for the same metric
func (s *Session) UpdateMetric(categoryID, metricID string, ev models.MetricEvaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ErrNoCurrentProject
	}
	s.current.Metrics[models.MetricKey(categoryID, metricID)] = ev
	return nil
}

// UpdateNotes sets the free-form notes of the current project
func (s *Session) UpdateNotes(notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ErrNoCurrentProject
	}
	s.current.Notes = notes
	return nil
}

// Save scores the current project, stores it in the collection and persists
// it. Local state is kept when persistence fails; a remote failure is
// reported as *RemoteError and is not retried.
func (s *Session) Save(ctx context.Context) (*models.ProjectEvaluation, error) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return nil, ErrNoCurrentProject
	}

	result := scoring.Apply(s.current)
	saved := s.current.Clone()
	if idx := s.indexOf(saved.ID); idx >= 0 {
		s.projects[idx] = saved
	} else {
		s.projects = append(s.projects, saved)
	}

	var localErr error
	if !s.store.Save(ctx, store.KeyEvaluations, s.projects) {
		localErr = ErrPersist
	}
	s.mu.Unlock()

	s.logger.Info("project saved",
		"id", saved.ID,
		"metrics", len(saved.Metrics),
		"score", result.Score,
		"tier", string(result.Tier),
		"persisted", localErr == nil,
	)

	remoteErr := s.pushRemote(ctx, saved)
	s.notifier.Notify(events.Event{Type: events.ProjectSaved, ID: saved.ID, Data: result, Time: s.now()})

	return saved.Clone(), errors.Join(localErr, remoteErr)
}

// Delete removes a saved project and its remote rows. The current pointer is
// cleared when it refers to the deleted project.
func (s *Session) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}

	s.projects = append(s.projects[:idx], s.projects[idx+1:]...)
	if s.current != nil && s.current.ID == id {
		s.current = nil
	}

	var localErr error
	if !s.store.Save(ctx, store.KeyEvaluations, s.projects) {
		localErr = ErrPersist
	}
	s.mu.Unlock()

	s.logger.Info("project deleted", "id", id)

	var remoteErr error
	if s.remote != nil {
		if err := s.remote.DeleteEvaluation(ctx, id); err != nil {
			remoteErr = &RemoteError{Op: "delete evaluation", Err: err}
		} else if err := s.remote.DeleteProject(ctx, id); err != nil {
			remoteErr = &RemoteError{Op: "delete project", Err: err}
		}
	}

	s.notifier.Notify(events.Event{Type: events.ProjectDeleted, ID: id, Time: s.now()})
	return errors.Join(localErr, remoteErr)
}

// Replace installs a full project collection, as restored from a backup.
// Repeated ids collapse to the last entry and derived fields are recomputed.
func (s *Session) Replace(ctx context.Context, projects []*models.ProjectEvaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.projects = make([]*models.ProjectEvaluation, 0, len(projects))
	seen := make(map[string]int, len(projects))
	for _, p := range projects {
		if p == nil || p.ID == "" {
			continue
		}
		c := p.Clone()
		scoring.Apply(c)
		if i, ok := seen[c.ID]; ok {
			s.projects[i] = c
			continue
		}
		seen[c.ID] = len(s.projects)
		s.projects = append(s.projects, c)
	}
	if s.current != nil && s.indexOf(s.current.ID) < 0 {
		s.current = nil
	}

	if !s.store.Save(ctx, store.KeyEvaluations, s.projects) {
		return ErrPersist
	}
	return nil
}

// RemoteProjects lists the projects stored remotely for the requesting user
func (s *Session) RemoteProjects(ctx context.Context) ([]*models.RemoteProject, error) {
	if s.remote == nil {
		return nil, nil
	}
	projects, err := s.remote.ListProjects(ctx, s.userFor(ctx))
	if err != nil {
		return nil, &RemoteError{Op: "list projects", Err: err}
	}
	return projects, nil
}

// FetchRemote rebuilds a project from its remote rows. Returns nil, nil when
// the remote backend has no such evaluation.
func (s *Session) FetchRemote(ctx context.Context, id string) (*models.ProjectEvaluation, error) {
	if s.remote == nil {
		return nil, nil
	}

	eval, err := s.remote.GetEvaluation(ctx, id)
	if err != nil {
		return nil, &RemoteError{Op: "get evaluation", Err: err}
	}
	if eval == nil || eval.UserID != s.userFor(ctx) {
		return nil, nil
	}

	rows, err := s.remote.GetMetricRows(ctx, id)
	if err != nil {
		return nil, &RemoteError{Op: "get metric rows", Err: err}
	}

	p, err := models.FromRemote(eval, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to decode remote evaluation %s: %w", id, err)
	}
	return p, nil
}

func (s *Session) pushRemote(ctx context.Context, p *models.ProjectEvaluation) error {
	if s.remote == nil {
		return nil
	}

	project, eval, rows, err := models.RemoteRecords(p, s.userFor(ctx), s.now())
	if err != nil {
		return &RemoteError{Op: "encode", Err: err}
	}
	if err := s.remote.UpsertProject(ctx, project); err != nil {
		return s.remoteFailed("upsert project", p.ID, err)
	}
	if err := s.remote.UpsertEvaluation(ctx, eval); err != nil {
		return s.remoteFailed("upsert evaluation", p.ID, err)
	}
	if err := s.remote.ReplaceMetricRows(ctx, eval.ID, rows); err != nil {
		return s.remoteFailed("replace metric rows", p.ID, err)
	}
	return nil
}

func (s *Session) remoteFailed(op, id string, err error) error {
	s.logger.Error("remote persistence failed", "op", op, "id", id, "error", err)
	return &RemoteError{Op: op, Err: err}
}

func (s *Session) indexOf(id string) int {
	for i, p := range s.projects {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Completion is the derived progress of a project against a category list
type Completion struct {
	Completed int     `json:"completedMetrics"`
	Total     int     `json:"totalMetrics"`
	Percent   float64 `json:"percent"`
}

// Progress counts the metrics of categories as the total and every recorded
// evaluation whose key belongs to one of those categories as completed. A
// metric removed from a category still counts while its category is listed.
func Progress(p *models.ProjectEvaluation, categories []models.MetricCategory) Completion {
	var c Completion
	for _, cat := range categories {
		c.Total += len(cat.Metrics)
	}
	if p == nil {
		return c
	}

	for key := range p.Metrics {
		for _, cat := range categories {
			if strings.HasPrefix(key, cat.ID+"_") {
				c.Completed++
				break
			}
		}
	}
	if c.Total > 0 {
		c.Percent = float64(c.Completed) / float64(c.Total) * 100
	}
	return c
}
