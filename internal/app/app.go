// Package app wires the evaluation engine components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/catalog"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/config"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/evaluation"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/events"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/monitor"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/services"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/storage"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/store"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/templates"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/thresholds"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/transfer"
)

// App holds every initialized component
type App struct {
	Config     *config.Config
	Store      *store.RecordStore
	Catalog    *catalog.Loader
	Bus        *events.Bus
	Templates  *templates.Repository
	Thresholds *thresholds.Layer
	Session    *evaluation.Session
	Transfer   *transfer.Service
	Registry   *services.Registry
	Monitor    *monitor.QuotaMonitor
	Remote     storage.Repository
}

// Open builds the component graph. Persistence failures during the initial
// load are logged and tolerated; the in-memory state stays usable.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	backend, err := store.OpenBackend(ctx, cfg.BackendConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}

	a := &App{
		Config:   cfg,
		Store:    store.New(backend, store.WithNamespace(cfg.Store.Namespace), store.WithQuota(cfg.Store.QuotaBytes)),
		Bus:      events.NewBus(),
		Registry: services.NewRegistry(),
	}
	a.Registry.Register("record-store", services.NewPingChecker("record-store:"+cfg.Store.Backend, a.Store))

	a.Catalog, err = catalog.NewLoader()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load built-in templates: %w", err)
	}
	if cfg.Catalog.Dir != "" {
		if err := a.Catalog.LoadFromDir(ctx, cfg.Catalog.Dir); err != nil {
			slog.Warn("failed to load catalog dir", "dir", cfg.Catalog.Dir, "error", err)
		}
	}

	if cfg.Database.DSN != "" {
		if err := a.openRemote(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Templates = templates.NewRepository(a.Store, a.Catalog, templates.WithNotifier(a.Bus))
	if err := a.Templates.Initialize(ctx); err != nil {
		slog.Warn("template repository not persisted", "error", err)
	}

	a.Thresholds = thresholds.New(a.Store, a.Catalog,
		thresholds.WithTemplateSource(a.Templates),
		thresholds.WithNotifier(a.Bus),
	)
	if err := a.Thresholds.Load(ctx); err != nil {
		slog.Warn("threshold baseline not persisted", "error", err)
	}

	sessionOpts := []evaluation.Option{
		evaluation.WithNotifier(a.Bus),
		evaluation.WithUserID(cfg.Identity.DefaultUserID),
	}
	if a.Remote != nil {
		sessionOpts = append(sessionOpts, evaluation.WithRemote(a.Remote))
	}
	a.Session = evaluation.NewSession(a.Store, sessionOpts...)
	a.Session.Load(ctx)

	a.Transfer = transfer.NewService(a.Store, a.Session, a.Thresholds, a.Templates, transfer.WithNotifier(a.Bus))
	a.Monitor = monitor.NewQuotaMonitor(a.Store, a.Bus, cfg.Monitor.Interval, cfg.Monitor.WarnRatio)

	return a, nil
}

func (a *App) openRemote(ctx context.Context) error {
	if a.Config.Database.Migrate {
		slog.Info("running database migrations")
		if err := storage.MigrateFromDSN(ctx, a.Config.Database.DSN); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{DSN: a.Config.Database.DSN})
	if err != nil {
		return fmt.Errorf("failed to connect remote persistence: %w", err)
	}
	a.Remote = repo
	a.Registry.Register("remote", services.NewPostgresChecker(repo.Pool()))
	slog.Info("remote persistence connected")
	return nil
}

// Close releases the record store and the remote connection
func (a *App) Close() error {
	var errs []error
	if a.Remote != nil {
		errs = append(errs, a.Remote.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
