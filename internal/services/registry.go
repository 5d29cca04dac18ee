package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultCheckTimeout bounds a single health check
const DefaultCheckTimeout = 3 * time.Second

// Registry manages health checkers
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	timeout  time.Duration
}

// NewRegistry creates a new checker registry
func NewRegistry() *Registry {
	return &Registry{
		checkers: make(map[string]Checker),
		timeout:  DefaultCheckTimeout,
	}
}

// SetTimeout changes the per-check timeout
func (r *Registry) SetTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d > 0 {
		r.timeout = d
	}
}

// Register adds a checker to the registry
func (r *Registry) Register(name string, checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = checker
}

// Get retrieves a checker by name
func (r *Registry) Get(name string) Checker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.checkers[name]
}

// List returns all registered checker names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthCheckAll runs every checker concurrently
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]error {
	results := make(map[string]error)
	for _, st := range r.Check(ctx) {
		if st.Healthy {
			results[st.Name] = nil
			continue
		}
		results[st.Name] = &CheckError{Name: st.Name, Message: st.Error}
	}
	return results
}

// Check runs every checker concurrently and returns their statuses sorted by name
func (r *Registry) Check(ctx context.Context) []Status {
	r.mu.RLock()
	names := make([]string, 0, len(r.checkers))
	checkers := make([]Checker, 0, len(r.checkers))
	for name, c := range r.checkers {
		names = append(names, name)
		checkers = append(checkers, c)
	}
	timeout := r.timeout
	r.mu.RUnlock()

	statuses := make([]Status, len(checkers))
	var g errgroup.Group
	for i := range checkers {
		i := i
		g.Go(func() error {
			statuses[i] = run(ctx, names[i], checkers[i], timeout)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// Healthy reports whether every status is healthy
func Healthy(statuses []Status) bool {
	for _, st := range statuses {
		if !st.Healthy {
			return false
		}
	}
	return true
}

// Unregister removes a checker from the registry
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.checkers, name)
}

// CheckError is a failed health check
type CheckError struct {
	Name    string
	Message string
}

func (e *CheckError) Error() string {
	return e.Name + ": " + e.Message
}

func run(ctx context.Context, name string, c Checker, timeout time.Duration) Status {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := c.HealthCheck(ctx)
	st := Status{
		Name:      name,
		Type:      c.Type(),
		Healthy:   err == nil,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		st.Error = err.Error()
	}
	if d, ok := c.(Detailer); ok {
		st.Details = d.Details()
	}
	return st
}
