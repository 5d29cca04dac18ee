// Package catalog provides the canonical built-in rubric and the preloaded
// template catalog. Everything it hands out is a copy; the catalog itself is
// read-only after loading.
package catalog

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/models"
)

// DefaultTemplateID identifies the canonical built-in rubric
const DefaultTemplateID = "default-web3-framework"

// PreloadedPrefix namespaces catalog ids so they never collide with user ids
const PreloadedPrefix = "preloaded-"

// Epoch is the fixed timestamp stamped on built-in templates
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

//go:embed builtin/default.yaml builtin/preloaded/*.yaml
var builtinFS embed.FS

// Loader holds the default rubric and the preloaded templates
type Loader struct {
	mu        sync.RWMutex
	def       *models.EvaluationTemplate
	preloaded map[string]*models.EvaluationTemplate
}

// NewLoader parses the embedded default rubric and preloaded templates
func NewLoader() (*Loader, error) {
	l := &Loader{preloaded: make(map[string]*models.EvaluationTemplate)}

	data, err := builtinFS.ReadFile("builtin/default.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read default template: %w", err)
	}
	def, err := parseTemplate(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse default template: %w", err)
	}
	def.ID = DefaultTemplateID
	l.def = def

	entries, err := fs.ReadDir(builtinFS, "builtin/preloaded")
	if err != nil {
		return nil, fmt.Errorf("failed to read preloaded catalog: %w", err)
	}
	for _, entry := range entries {
		name := path.Join("builtin/preloaded", entry.Name())
		data, err := builtinFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if err := l.add(data); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", name, err)
		}
	}

	return l, nil
}

// LoadFromDir loads additional preloaded templates from YAML files in dir.
// Invalid files are logged and skipped.
func (l *Loader) LoadFromDir(ctx context.Context, dir string) error {
	slog.Info("loading template catalog from directory", "dir", dir)

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return fmt.Errorf("failed to scan catalog directory: %w", err)
		}
		files = append(files, matches...)
	}

	loaded := make([]bool, len(files))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if err := l.LoadFromFile(file); err != nil {
				slog.Warn("failed to load catalog template", "file", file, "error", err)
				return nil
			}
			loaded[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	count := 0
	for _, ok := range loaded {
		if ok {
			count++
		}
	}
	slog.Info("catalog templates loaded", "count", count, "total_files", len(files))
	return nil
}

// LoadFromFile loads a single preloaded template from a YAML file
func (l *Loader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return l.add(data)
}

func (l *Loader) add(data []byte) error {
	tmpl, err := parseTemplate(data)
	if err != nil {
		return err
	}
	tmpl.ID = NamespacedID(tmpl.ID)
	if tmpl.ID == DefaultTemplateID {
		return fmt.Errorf("template id %q is reserved", tmpl.ID)
	}

	l.mu.Lock()
	l.preloaded[tmpl.ID] = tmpl
	l.mu.Unlock()

	slog.Debug("catalog template loaded", "id", tmpl.ID, "name", tmpl.Name, "metrics", tmpl.MetricCount())
	return nil
}

// NamespacedID prefixes a catalog id unless it already carries the prefix
func NamespacedID(id string) string {
	if strings.HasPrefix(id, PreloadedPrefix) {
		return id
	}
	return PreloadedPrefix + id
}

// Default returns a copy of the canonical rubric
func (l *Loader) Default() *models.EvaluationTemplate {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.def.Clone()
}

// Get returns a copy of a built-in template by id, or nil
func (l *Loader) Get(id string) *models.EvaluationTemplate {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if id == DefaultTemplateID {
		return l.def.Clone()
	}
	return l.preloaded[id].Clone()
}

// IsBuiltIn reports whether id belongs to the canonical catalog
func (l *Loader) IsBuiltIn(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if id == DefaultTemplateID {
		return true
	}
	_, ok := l.preloaded[id]
	return ok
}

// Builtins returns copies of the default rubric followed by the preloaded
// templates sorted by id
func (l *Loader) Builtins() []*models.EvaluationTemplate {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.preloaded))
	for id := range l.preloaded {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]*models.EvaluationTemplate, 0, len(ids)+1)
	result = append(result, l.def.Clone())
	for _, id := range ids {
		result = append(result, l.preloaded[id].Clone())
	}
	return result
}

// --- YAML file structs ---

type templateFile struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Author      string         `yaml:"author"`
	Categories  []categoryFile `yaml:"categories"`
}

type categoryFile struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Metrics     []metricFile `yaml:"metrics"`
}

type metricFile struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Importance  string            `yaml:"importance"`
	Thresholds  map[string]string `yaml:"thresholds"`
	Tools       []string          `yaml:"tools"`
}

func parseTemplate(data []byte) (*models.EvaluationTemplate, error) {
	var tf templateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if tf.ID == "" {
		return nil, fmt.Errorf("template id is required")
	}
	if tf.Name == "" {
		return nil, fmt.Errorf("template name is required")
	}

	tmpl := &models.EvaluationTemplate{
		ID:          tf.ID,
		Name:        tf.Name,
		Description: tf.Description,
		Author:      tf.Author,
		CreatedAt:   Epoch,
		UpdatedAt:   Epoch,
		IsBuiltIn:   true,
		IsLocked:    true,
		Categories:  make([]models.MetricCategory, 0, len(tf.Categories)),
	}

	for _, cf := range tf.Categories {
		cat := models.MetricCategory{
			ID:          cf.ID,
			Name:        cf.Name,
			Description: cf.Description,
			Metrics:     make([]models.Metric, 0, len(cf.Metrics)),
		}
		for _, mf := range cf.Metrics {
			tools := mf.Tools
			if tools == nil {
				tools = []string{}
			}
			cat.Metrics = append(cat.Metrics, models.Metric{
				ID:          mf.ID,
				Name:        mf.Name,
				Description: mf.Description,
				Importance:  mf.Importance,
				Thresholds:  models.CloneThresholds(mf.Thresholds),
				Tools:       tools,
			})
		}
		tmpl.Categories = append(tmpl.Categories, cat)
	}

	if err := tmpl.Validate(); err != nil {
		return nil, fmt.Errorf("invalid template %s: %w", tf.ID, err)
	}
	tmpl.EnsureTierPlaceholders()

	return tmpl, nil
}
