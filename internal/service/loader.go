package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"notesdb/internal/domain"
	"notesdb/internal/recordstore"
)

// ─────────────────────────────────────────────────────────────
// Loader: fetch-on-miss into the record store
// ─────────────────────────────────────────────────────────────

// Loader fills the record store from the backend. Concurrent requests for
// the same id share one fetch.
type Loader struct {
	store    *recordstore.Store
	fetcher  domain.DataSourceFetcher
	views    domain.ViewFetcher
	log      zerolog.Logger
	flight   singleflight.Group
	prefetch inflightGuard

	mu      sync.Mutex
	started map[string]uint64 // fetches begun per data source
	written map[string]uint64 // newest fetch that reached the store
}

// NewLoader creates a Loader.
func NewLoader(store *recordstore.Store, fetcher domain.DataSourceFetcher, views domain.ViewFetcher, log zerolog.Logger) *Loader {
	return &Loader{
		store:   store,
		fetcher: fetcher,
		views:   views,
		log:     log.With().Str("component", "loader").Logger(),
		started: make(map[string]uint64),
		written: make(map[string]uint64),
	}
}

// Ensure loads a data source unless it is already cached.
func (l *Loader) Ensure(ctx context.Context, dataSourceID string) error {
	if _, ok := l.store.Records(dataSourceID); ok {
		if _, ok := l.store.DataSource(dataSourceID); ok {
			return nil
		}
	}
	return l.load(ctx, dataSourceID)
}

// Refresh fetches a data source and replaces its cached schema and records.
// It never joins a fetch that started earlier, so it observes every write
// committed before the call.
func (l *Loader) Refresh(ctx context.Context, dataSourceID string) error {
	l.flight.Forget("ds:" + dataSourceID)
	return l.load(ctx, dataSourceID)
}

func (l *Loader) load(ctx context.Context, dataSourceID string) error {
	_, err, shared := l.flight.Do("ds:"+dataSourceID, func() (any, error) {
		l.mu.Lock()
		l.started[dataSourceID]++
		gen := l.started[dataSourceID]
		l.mu.Unlock()

		ds, records, err := l.fetcher.FetchDataSource(ctx, dataSourceID)
		if err != nil {
			return nil, classifyFetch("data source", dataSourceID, err)
		}

		l.mu.Lock()
		defer l.mu.Unlock()
		if gen < l.written[dataSourceID] {
			l.log.Debug().Str("dataSource", dataSourceID).Msg("dropped stale fetch")
			return nil, nil
		}
		l.written[dataSourceID] = gen
		l.store.SetDataSource(dataSourceID, ds)
		l.store.SetRecords(dataSourceID, records)
		l.log.Debug().Str("dataSource", dataSourceID).Int("records", len(records)).Msg("data source loaded")
		return nil, nil
	})
	if shared {
		l.log.Trace().Str("dataSource", dataSourceID).Msg("joined in-flight fetch")
	}
	return err
}

// EnsureRelated loads every data source that relations and rollups of ds
// point at, in parallel.
func (l *Loader) EnsureRelated(ctx context.Context, ds *domain.DataSource) error {
	targets := map[string]bool{}
	for _, p := range ds.Properties {
		if p == nil {
			continue
		}
		if p.Relation != nil && p.Relation.LinkedDataSourceID != "" {
			targets[p.Relation.LinkedDataSourceID] = true
		}
		if p.Rollup != nil && p.Rollup.RelationDataSourceID != "" {
			targets[p.Rollup.RelationDataSourceID] = true
		}
	}
	delete(targets, ds.ID)

	g, gctx := errgroup.WithContext(ctx)
	for id := range targets {
		g.Go(func() error {
			return l.Ensure(gctx, id)
		})
	}
	return g.Wait()
}

// Prefetch starts a background load of a data source. It is the miss hook
// of the relation resolver; a load already running for the id is not
// started twice.
func (l *Loader) Prefetch(dataSourceID string) {
	if !l.prefetch.TryLock(dataSourceID) {
		return
	}
	go func() {
		defer l.prefetch.Unlock(dataSourceID)
		if err := l.Ensure(context.Background(), dataSourceID); err != nil {
			l.log.Warn().Err(err).Str("dataSource", dataSourceID).Msg("prefetch failed")
		}
	}()
}

// WaitPrefetch blocks until background loads finish or ctx is done.
func (l *Loader) WaitPrefetch(ctx context.Context) {
	l.prefetch.WaitAll(ctx)
}

// EnsureView returns a cached view, fetching it on a miss.
func (l *Loader) EnsureView(ctx context.Context, viewID string) (domain.View, error) {
	if v, ok := l.store.View(viewID); ok {
		return v, nil
	}
	res, err, _ := l.flight.Do("view:"+viewID, func() (any, error) {
		v, err := l.views.FetchView(ctx, viewID)
		if err != nil {
			return nil, classifyFetch("view", viewID, err)
		}
		l.store.SetView(*v)
		return *v, nil
	})
	if err != nil {
		return domain.View{}, err
	}
	// Prefer the cached copy: a settings mutation may already have landed.
	if v, ok := l.store.View(viewID); ok {
		return v, nil
	}
	return res.(domain.View), nil
}

// classifyFetch maps a backend failure onto the error taxonomy: missing
// ids are stale user data, everything else may succeed on retry.
func classifyFetch(what, id string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.UserDataError{Ref: id, Reason: what + " does not exist"}
	}
	return domain.Transient(fmt.Sprintf("fetch %s %s", what, id), err)
}
