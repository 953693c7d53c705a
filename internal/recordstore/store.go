package recordstore

import (
	"sync"

	"notesdb/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Record Store: normalized in-memory cache of data sources,
// records and view settings
// ─────────────────────────────────────────────────────────────

// ChangeKind identifies what a cache write touched.
type ChangeKind string

const (
	ChangeDataSource ChangeKind = "data_source"
	ChangeRecords    ChangeKind = "records"
	ChangeView       ChangeKind = "view"
	ChangeInvalidate ChangeKind = "invalidate"
)

// Change is delivered to subscribers after every write.
type Change struct {
	Kind    ChangeKind `json:"kind"`
	ID      string     `json:"id"`
	Version uint64     `json:"version"`
}

type recordSet struct {
	list []domain.Record
	byID map[string]int
}

// Store is keyed by identifier with last-write-wins semantics. Writes store
// private copies and replace whole entries, so values handed to readers are
// immutable snapshots and must not be modified.
type Store struct {
	mu          sync.RWMutex
	dataSources map[string]*domain.DataSource
	records     map[string]*recordSet
	views       map[string]*domain.View
	version     uint64

	subMu   sync.Mutex
	nextSub int
	subs    map[int]func(Change)
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		dataSources: make(map[string]*domain.DataSource),
		records:     make(map[string]*recordSet),
		views:       make(map[string]*domain.View),
		subs:        make(map[int]func(Change)),
	}
}

// ── Data sources ───────────────────────────────────────────

// DataSource returns a cached data source. Absent means "not yet loaded".
func (s *Store) DataSource(id string) (*domain.DataSource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.dataSources[id]
	return ds, ok
}

// SetDataSource caches ds under id.
func (s *Store) SetDataSource(id string, ds *domain.DataSource) {
	if ds == nil {
		return
	}
	cp := ds.Clone()
	cp.ID = id
	s.write(ChangeDataSource, id, func() {
		s.dataSources[id] = cp
	})
}

// ── Records ────────────────────────────────────────────────

// Records returns the records of a data source in insertion order. The
// boolean is false when the list has not been loaded.
func (s *Store) Records(dataSourceID string) ([]domain.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.records[dataSourceID]
	if !ok {
		return nil, false
	}
	return set.list, true
}

// Record looks up one record of a loaded data source.
func (s *Store) Record(dataSourceID, recordID string) (domain.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.records[dataSourceID]
	if !ok {
		return domain.Record{}, false
	}
	i, ok := set.byID[recordID]
	if !ok {
		return domain.Record{}, false
	}
	return set.list[i], true
}

// SetRecords replaces the record list of a data source.
func (s *Store) SetRecords(dataSourceID string, records []domain.Record) {
	set := &recordSet{
		list: make([]domain.Record, 0, len(records)),
		byID: make(map[string]int, len(records)),
	}
	for _, r := range records {
		cp := r.Clone()
		cp.DataSourceID = dataSourceID
		if i, dup := set.byID[cp.ID]; dup {
			set.list[i] = cp
			continue
		}
		set.byID[cp.ID] = len(set.list)
		set.list = append(set.list, cp)
	}
	s.write(ChangeRecords, dataSourceID, func() {
		s.records[dataSourceID] = set
	})
}

// ── Views ──────────────────────────────────────────────────

// View returns a cached view.
func (s *Store) View(id string) (domain.View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[id]
	if !ok {
		return domain.View{}, false
	}
	cp := *v
	cp.Settings = v.Settings.Clone()
	return cp, true
}

// SetView caches a view definition.
func (s *Store) SetView(v domain.View) {
	cp := v
	cp.Settings = v.Settings.Clone()
	s.write(ChangeView, v.ID, func() {
		s.views[v.ID] = &cp
	})
}

// SetViewSettings replaces the settings of a cached view. It reports false
// when the view is not cached.
func (s *Store) SetViewSettings(viewID string, settings domain.ViewSettings) bool {
	settings = settings.Clone()
	found := false
	s.write(ChangeView, viewID, func() {
		v, ok := s.views[viewID]
		if !ok {
			return
		}
		cp := *v
		cp.Settings = settings
		s.views[viewID] = &cp
		found = true
	})
	return found
}

// ── Lifecycle ──────────────────────────────────────────────

// Invalidate evicts a data source and its records.
func (s *Store) Invalidate(dataSourceID string) {
	s.write(ChangeInvalidate, dataSourceID, func() {
		delete(s.dataSources, dataSourceID)
		delete(s.records, dataSourceID)
	})
}

// Dispose drops every cached entry and all subscribers.
func (s *Store) Dispose() {
	s.mu.Lock()
	s.dataSources = make(map[string]*domain.DataSource)
	s.records = make(map[string]*recordSet)
	s.views = make(map[string]*domain.View)
	s.version++
	s.mu.Unlock()

	s.subMu.Lock()
	s.subs = make(map[int]func(Change))
	s.subMu.Unlock()
}

// Version increments on every write. Two reads observing the same version
// saw the same snapshot.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Subscribe registers fn to run after every write. The returned function
// removes the subscription.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) write(kind ChangeKind, id string, fn func()) {
	s.mu.Lock()
	fn()
	s.version++
	ch := Change{Kind: kind, ID: id, Version: s.version}
	s.mu.Unlock()

	s.subMu.Lock()
	subs := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(ch)
	}
}
