package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"notesdb/internal/config"
	"notesdb/internal/domain"
	"notesdb/internal/etl"
	_ "notesdb/internal/etl/sources"
	"notesdb/internal/recordstore"
	"notesdb/internal/service"
	"notesdb/internal/storage"
)

// App wires storage, the record store and the services together. Every
// command builds one, uses it and shuts it down.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	backend storage.Backend
	store   *recordstore.Store
	loader  *service.Loader
	emitter service.EventEmitter

	Importer *etl.Importer

	Views   *service.ViewService
	Refresh *service.RefreshService
}

// New opens the configured backend and builds the services. emitter may
// be nil, in which case events are logged at debug level.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, emitter service.EventEmitter) (*App, error) {
	if emitter == nil {
		emitter = service.LogEmitter{Log: log.With().Str("component", "events").Logger()}
	}

	backend, err := storage.OpenBackend(ctx, cfg.StorageOptions(), log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	var members domain.MemberDirectory
	list, err := backend.ListMembers(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("members unavailable, person filters match raw ids")
	} else {
		members = domain.NewMembers(list)
	}

	store := recordstore.New()
	loader := service.NewLoader(store, backend, backend, log)
	a := &App{
		cfg:     cfg,
		log:     log.With().Str("component", "app").Logger(),
		backend: backend,
		store:   store,
		loader:  loader,
		emitter: emitter,
		Views: service.NewViewService(store, loader, backend, members, emitter,
			service.ViewServiceConfig{SettingsTimeout: cfg.Views.SettingsTimeout}, log),
		Refresh:  service.NewRefreshService(loader, emitter, log),
		Importer: etl.NewImporter(backend, log),
	}
	a.Refresh.SetImporter(a.Importer)
	return a, nil
}

// Backend returns the opened storage backend.
func (a *App) Backend() storage.Backend { return a.backend }

// StartWatchers schedules the configured refresh jobs. A bad job is
// logged and skipped; the others still run.
func (a *App) StartWatchers(ctx context.Context) {
	if len(a.cfg.Refresh.Jobs) == 0 {
		return
	}
	jobs := make([]service.RefreshJob, 0, len(a.cfg.Refresh.Jobs))
	for _, j := range a.cfg.Refresh.Jobs {
		jobs = append(jobs, service.RefreshJob{
			DataSourceID: j.DataSourceID,
			Schedule:     j.Schedule,
			WatchPath:    j.WatchPath,
			Import:       j.Import,
		})
	}
	if err := a.Refresh.RestartWatchers(ctx, jobs); err != nil {
		a.log.Error().Err(err).Msg("some refresh jobs were not scheduled")
	}
}

// Shutdown stops watchers, waits for in-flight work and closes storage.
func (a *App) Shutdown(ctx context.Context) {
	a.Refresh.Stop()
	a.Refresh.WaitRunning(ctx)
	a.Views.Close(ctx)
	a.store.Dispose()
	if err := a.backend.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close storage")
	}
}
