package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"notesdb/internal/domain"
	"notesdb/internal/etl"
)

// ─────────────────────────────────────────────────────────────
// Refresh Service: scheduled and file-triggered re-fetches
// ─────────────────────────────────────────────────────────────

// RefreshJob re-fetches a data source on a cron schedule, when a file
// changes, or both. With Import set, a changed WatchPath is first loaded
// into the backend as the data source's records.
type RefreshJob struct {
	DataSourceID string `json:"dataSourceId"`
	Schedule     string `json:"schedule,omitempty"`
	WatchPath    string `json:"watchPath,omitempty"`
	Import       bool   `json:"import,omitempty"`
}

// FileImporter loads a file into the backend records of a data source.
type FileImporter interface {
	ImportFile(ctx context.Context, dataSourceID, path string) (*etl.ImportResult, error)
}

// watchDebounce coalesces bursts of writes to a watched file.
const watchDebounce = 500 * time.Millisecond

// RefreshService keeps cached data sources fresh.
type RefreshService struct {
	loader      *Loader
	importer    FileImporter
	emitter     EventEmitter
	log         zerolog.Logger
	runningJobs inflightGuard

	// watcher / cron lifecycle
	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewRefreshService creates a RefreshService ready for use.
func NewRefreshService(loader *Loader, emitter EventEmitter, log zerolog.Logger) *RefreshService {
	return &RefreshService{
		loader:  loader,
		emitter: emitter,
		log:     log.With().Str("component", "refresh").Logger(),
	}
}

// SetImporter enables import jobs.
func (s *RefreshService) SetImporter(imp FileImporter) {
	s.importer = imp
}

// RefreshNow re-fetches a data source. A refresh already running for the
// same id is not duplicated.
func (s *RefreshService) RefreshNow(ctx context.Context, dataSourceID string) error {
	return s.run(ctx, dataSourceID, "")
}

// ImportNow loads path into a data source, then re-fetches it.
func (s *RefreshService) ImportNow(ctx context.Context, dataSourceID, path string) error {
	if s.importer == nil {
		return fmt.Errorf("imports are not enabled")
	}
	return s.run(ctx, dataSourceID, path)
}

func (s *RefreshService) run(ctx context.Context, dataSourceID, importPath string) error {
	if !s.runningJobs.TryLock(dataSourceID) {
		return fmt.Errorf("refresh of %s is already running", dataSourceID)
	}
	defer s.runningJobs.Unlock(dataSourceID)

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	start := time.Now()
	err := func() error {
		if importPath != "" {
			if _, err := s.importer.ImportFile(runCtx, dataSourceID, importPath); err != nil {
				return fmt.Errorf("import %s: %w", importPath, err)
			}
		}
		return s.loader.Refresh(runCtx, dataSourceID)
	}()
	if err != nil {
		s.log.Warn().Err(err).Str("dataSource", dataSourceID).Str("kind", string(domain.Classify(err))).Msg("refresh failed")
		s.emitter.Emit(ctx, EventRefreshFailed, map[string]string{
			"dataSourceId": dataSourceID,
			"error":        err.Error(),
		})
		return err
	}
	s.log.Info().Str("dataSource", dataSourceID).Bool("imported", importPath != "").Dur("took", time.Since(start)).Msg("refreshed")
	s.emitter.Emit(ctx, EventDataRefreshed, dataSourceID)
	return nil
}

// ── Watchers (cron + file_watch) ──────────────────────────

// RestartWatchers tears down the current watcher/cron and rebuilds them
// for jobs. It returns the first invalid cron expression or watch path;
// valid jobs are scheduled regardless.
func (s *RefreshService) RestartWatchers(ctx context.Context, jobs []RefreshJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()

	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	// ── Cron jobs ──
	c := cron.New()
	scheduled := 0
	for _, j := range jobs {
		if j.Schedule == "" {
			continue
		}
		dsID := j.DataSourceID
		_, err := c.AddFunc(j.Schedule, func() {
			s.log.Debug().Str("dataSource", dsID).Msg("cron refresh")
			_ = s.RefreshNow(ctx, dsID)
		})
		if err != nil {
			s.log.Error().Err(err).Str("schedule", j.Schedule).Str("dataSource", dsID).Msg("invalid cron expression")
			keep(fmt.Errorf("schedule %q for %s: %w", j.Schedule, dsID, err))
			continue
		}
		scheduled++
	}
	if scheduled > 0 {
		c.Start()
		s.cronSched = c
		s.log.Info().Int("jobs", scheduled).Msg("cron scheduled")
	}

	// ── File watchers ──
	pathToJobs := make(map[string][]RefreshJob)
	for _, j := range jobs {
		if j.WatchPath == "" {
			continue
		}
		if j.Import && s.importer == nil {
			keep(fmt.Errorf("import job for %s: imports are not enabled", j.DataSourceID))
			continue
		}
		absPath, err := filepath.Abs(j.WatchPath)
		if err != nil {
			keep(fmt.Errorf("watch path %q: %w", j.WatchPath, err))
			continue
		}
		pathToJobs[absPath] = append(pathToJobs[absPath], j)
	}
	if len(pathToJobs) == 0 {
		return firstErr
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		keep(fmt.Errorf("create watcher: %w", err))
		return firstErr
	}
	s.watcher = watcher

	watchedDirs := make(map[string]bool)
	for absPath := range pathToJobs {
		dir := filepath.Dir(absPath)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			s.log.Error().Err(err).Str("dir", dir).Msg("failed to watch dir")
			keep(fmt.Errorf("watch dir %q: %w", dir, err))
			continue
		}
		watchedDirs[dir] = true
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel
	go s.watchLoop(ctx, watchCtx, watcher, pathToJobs)

	s.log.Info().Int("files", len(pathToJobs)).Msg("watching")
	return firstErr
}

func (s *RefreshService) watchLoop(ctx, watchCtx context.Context, watcher *fsnotify.Watcher, pathToJobs map[string][]RefreshJob) {
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()
	for {
		select {
		case <-watchCtx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			absPath, _ := filepath.Abs(event.Name)
			matched, ok := pathToJobs[absPath]
			if !ok {
				continue
			}
			for _, j := range matched {
				id := j.DataSourceID
				if t, exists := timers[id]; exists {
					t.Stop()
				}
				importPath := ""
				if j.Import {
					importPath = absPath
				}
				timers[id] = time.AfterFunc(watchDebounce, func() {
					s.log.Debug().Str("file", absPath).Str("dataSource", id).Msg("file changed")
					_ = s.run(ctx, id, importPath)
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Error().Err(err).Msg("watcher error")
		}
	}
}

// WaitRunning blocks until all running refreshes finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *RefreshService) WaitRunning(ctx context.Context) {
	s.runningJobs.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *RefreshService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()
}

func (s *RefreshService) stopWatchersLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
