package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"notesdb/internal/domain"
	"notesdb/internal/filter"
	"notesdb/internal/query"
	"notesdb/internal/recordstore"
	"notesdb/internal/relation"
	"notesdb/internal/rollup"
	"notesdb/internal/viewsync"
)

// ─────────────────────────────────────────────────────────────
// View Service: rollups, filters, queries and settings mutations
// ─────────────────────────────────────────────────────────────

// ViewRepository is the backend surface the view service writes through.
type ViewRepository interface {
	domain.SettingsPersister
	ListViews(ctx context.Context, dataSourceID string) ([]domain.View, error)
}

// ViewServiceConfig tunes the view service.
type ViewServiceConfig struct {
	// SettingsTimeout bounds each remote settings write. Zero means none.
	SettingsTimeout time.Duration
}

// ViewService evaluates views over the record store and forwards store
// changes to the emitter.
type ViewService struct {
	store   *recordstore.Store
	loader  *Loader
	repo    ViewRepository
	rollups *rollup.Engine
	filters *filter.Evaluator
	query   *query.Engine
	sync    *viewsync.Synchronizer
	emitter EventEmitter
	log     zerolog.Logger

	unsubscribe func()
}

// NewViewService wires the evaluation pipeline. members may be nil.
func NewViewService(
	store *recordstore.Store,
	loader *Loader,
	repo ViewRepository,
	members domain.MemberDirectory,
	emitter EventEmitter,
	cfg ViewServiceConfig,
	log zerolog.Logger,
) *ViewService {
	resolver := relation.NewResolver(store, loader.Prefetch)
	rollups := rollup.NewEngine(store, resolver, log)
	filters := filter.NewEvaluator(rollups, members, log)

	s := &ViewService{
		store:   store,
		loader:  loader,
		repo:    repo,
		rollups: rollups,
		filters: filters,
		query:   query.NewEngine(filters),
		sync:    viewsync.New(store, repo, emitter, cfg.SettingsTimeout, log),
		emitter: emitter,
		log:     log.With().Str("component", "view-service").Logger(),
	}
	s.unsubscribe = store.Subscribe(s.onChange)
	return s
}

// onChange forwards store writes so consumers re-run evaluation instead of
// relying on fetch completion order.
func (s *ViewService) onChange(c recordstore.Change) {
	event := EventDataChanged
	if c.Kind == recordstore.ChangeView {
		event = EventViewChanged
	}
	s.emitter.Emit(context.Background(), event, c)
}

// Close stops forwarding changes and waits for in-flight settings writes.
func (s *ViewService) Close(ctx context.Context) {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.sync.Wait(ctx)
	s.loader.WaitPrefetch(ctx)
}

// ── Loading ────────────────────────────────────────────────

// load brings a data source and everything it relates to into the store.
// Failures of related sources only degrade rollups, so they are logged.
func (s *ViewService) load(ctx context.Context, dataSourceID string) (*domain.DataSource, []domain.Record, error) {
	if err := s.loader.Ensure(ctx, dataSourceID); err != nil {
		return nil, nil, err
	}
	ds, ok := s.store.DataSource(dataSourceID)
	if !ok {
		return nil, nil, domain.Transient("load data source", fmt.Errorf("%s was evicted", dataSourceID))
	}
	if err := s.loader.EnsureRelated(ctx, ds); err != nil {
		s.log.Warn().Err(err).Str("dataSource", dataSourceID).Msg("related data sources unavailable")
	}
	records, _ := s.store.Records(dataSourceID)
	return ds, records, nil
}

func (s *ViewService) loadView(ctx context.Context, viewID string) (domain.View, *domain.DataSource, []domain.Record, error) {
	view, err := s.loader.EnsureView(ctx, viewID)
	if err != nil {
		return domain.View{}, nil, nil, err
	}
	ds, records, err := s.load(ctx, view.DataSourceID)
	if err != nil {
		return domain.View{}, nil, nil, err
	}
	return view, ds, records, nil
}

// ── Operations ─────────────────────────────────────────────

// ListViews returns the views of a data source, or all views.
func (s *ViewService) ListViews(ctx context.Context, dataSourceID string) ([]domain.View, error) {
	views, err := s.repo.ListViews(ctx, dataSourceID)
	if err != nil {
		return nil, domain.Transient("list views", err)
	}
	return views, nil
}

// ComputeRollup evaluates one rollup property on one record.
func (s *ViewService) ComputeRollup(ctx context.Context, dataSourceID, recordID, propertyID string) (rollup.Result, error) {
	ds, _, err := s.load(ctx, dataSourceID)
	if err != nil {
		return rollup.Result{}, err
	}
	record, ok := s.store.Record(dataSourceID, recordID)
	if !ok {
		return rollup.Result{}, &domain.UserDataError{Ref: recordID, Reason: "record does not exist"}
	}
	prop, ok := ds.Property(propertyID)
	if !ok {
		return rollup.Result{}, &domain.UserDataError{Ref: propertyID, Reason: "property does not exist"}
	}
	return s.rollups.Compute(record, prop, ds.Properties)
}

// EvaluateFilters returns the records of a view's data source that pass
// its simple and advanced filters, in store order.
func (s *ViewService) EvaluateFilters(ctx context.Context, viewID string) ([]domain.Record, error) {
	view, ds, records, err := s.loadView(ctx, viewID)
	if err != nil {
		return nil, err
	}
	out := []domain.Record{}
	for _, r := range records {
		if s.query.Matches(r, view.Settings, ds) {
			out = append(out, r)
		}
	}
	return out, nil
}

// QueryView filters, sorts and groups a view.
func (s *ViewService) QueryView(ctx context.Context, viewID string) (query.Result, error) {
	view, ds, records, err := s.loadView(ctx, viewID)
	if err != nil {
		return query.Result{}, err
	}
	return s.query.Run(view, ds, records), nil
}

// FilterOptions lists the values a filter dropdown offers for a property.
func (s *ViewService) FilterOptions(ctx context.Context, dataSourceID, propertyID string) ([]query.OptionValue, error) {
	ds, records, err := s.load(ctx, dataSourceID)
	if err != nil {
		return nil, err
	}
	return s.query.Options(ds, propertyID, records), nil
}

// ApplySettingsMutation applies patch optimistically and persists it in
// the background.
func (s *ViewService) ApplySettingsMutation(ctx context.Context, viewID string, patch domain.SettingsPatch) (*viewsync.Mutation, error) {
	if _, err := s.loader.EnsureView(ctx, viewID); err != nil {
		return nil, err
	}
	return s.sync.Apply(ctx, viewID, patch)
}

// Properties returns a data source schema.
func (s *ViewService) Properties(ctx context.Context, dataSourceID string) (*domain.DataSource, error) {
	ds, _, err := s.load(ctx, dataSourceID)
	return ds, err
}

// Evaluator exposes the filter evaluator for display formatting.
func (s *ViewService) Evaluator() *filter.Evaluator {
	return s.filters
}
