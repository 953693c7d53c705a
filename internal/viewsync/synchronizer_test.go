package viewsync_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notesdb/internal/domain"
	"notesdb/internal/recordstore"
	"notesdb/internal/viewsync"
)

// ─────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────

type reply struct {
	settings *domain.ViewSettings
	err      error
}

type call struct {
	viewID string
	patch  domain.SettingsPatch
	reply  chan reply
}

// gatedPersister blocks every call until the test answers it.
type gatedPersister struct {
	calls chan call
}

func newGatedPersister() *gatedPersister {
	return &gatedPersister{calls: make(chan call, 8)}
}

func (p *gatedPersister) PersistViewSettings(ctx context.Context, viewID string, patch domain.SettingsPatch) (*domain.ViewSettings, error) {
	c := call{viewID: viewID, patch: patch, reply: make(chan reply, 1)}
	p.calls <- c
	select {
	case r := <-c.reply:
		return r.settings, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *gatedPersister) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-p.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no persist call")
		return call{}
	}
}

type recorder struct {
	mu     sync.Mutex
	events []string
	data   []any
}

func (r *recorder) Emit(_ context.Context, event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.data = append(r.data, data)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// ─────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────

func setup(t *testing.T) (*recordstore.Store, *gatedPersister, *recorder, *viewsync.Synchronizer) {
	t.Helper()
	store := recordstore.New()
	store.SetView(domain.View{ID: "v1", DataSourceID: "tasks", Settings: domain.ViewSettings{
		Filters: map[string][]string{"status": {"open"}},
		Sorts:   []domain.SortRule{{PropertyID: "title", Direction: domain.SortAsc}},
		AdvancedFilters: []domain.FilterGroup{{ID: "g1", BooleanOperator: domain.OpAnd, Rules: []domain.FilterRule{
			{ID: "r1", PropertyID: strPtr("estimate"), Operator: domain.FilterGreaterThan, Value: domain.Single("3")},
		}}},
	}})
	persister := newGatedPersister()
	rec := &recorder{}
	return store, persister, rec, viewsync.New(store, persister, rec, 0, zerolog.Nop())
}

func strPtr(s string) *string { return &s }

func settingsJSON(t *testing.T, store *recordstore.Store) string {
	t.Helper()
	v, ok := store.View("v1")
	require.True(t, ok)
	b, err := json.Marshal(v.Settings)
	require.NoError(t, err)
	return string(b)
}

func wait(t *testing.T, m *viewsync.Mutation) (viewsync.State, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.Wait(ctx)
}

// ─────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────

func TestApply_OptimisticThenCanonical(t *testing.T) {
	store, persister, rec, syncer := setup(t)

	m, err := syncer.Apply(context.Background(), "v1", domain.SettingsPatch{
		Filters: map[string][]string{"status": {"Done"}},
	})
	require.NoError(t, err)
	assert.Equal(t, viewsync.StateApplying, m.State())

	v, _ := store.View("v1")
	assert.Equal(t, []string{"Done"}, v.Settings.Filters["status"], "optimistic state visible before the remote write")

	c := persister.next(t)
	canonical := v.Settings.Clone()
	canonical.Filters["status"] = []string{"done"}
	c.reply <- reply{settings: &canonical}

	state, err := wait(t, m)
	require.NoError(t, err)
	assert.Equal(t, viewsync.StateCommitted, state)

	v, _ = store.View("v1")
	assert.Equal(t, []string{"done"}, v.Settings.Filters["status"], "server settings are authoritative")
	assert.Equal(t, []string{viewsync.EventCommitted}, rec.Events())
}

func TestApply_RollbackRestoresSnapshotExactly(t *testing.T) {
	store, persister, rec, syncer := setup(t)
	before := settingsJSON(t, store)

	m, err := syncer.Apply(context.Background(), "v1", domain.SettingsPatch{
		Sorts:           []domain.SortRule{{PropertyID: "estimate", Direction: domain.SortDesc}},
		Group:           &domain.GroupConfig{PropertyID: "status"},
		AdvancedFilters: []domain.FilterGroup{},
	})
	require.NoError(t, err)
	assert.NotEqual(t, before, settingsJSON(t, store))

	persister.next(t).reply <- reply{err: domain.Transient("persist settings", errors.New("connection reset"))}

	state, err := wait(t, m)
	assert.Equal(t, viewsync.StateRolledBack, state)
	assert.Equal(t, domain.ErrorTransient, domain.Classify(err))
	assert.Equal(t, before, settingsJSON(t, store))
	assert.Equal(t, []string{viewsync.EventRolledBack}, rec.Events())
}

func TestApply_NilCanonicalRollsBack(t *testing.T) {
	store, persister, _, syncer := setup(t)
	before := settingsJSON(t, store)

	m, err := syncer.Apply(context.Background(), "v1", domain.SettingsPatch{PropertyVisibility: []string{"status"}})
	require.NoError(t, err)
	persister.next(t).reply <- reply{}

	state, err := wait(t, m)
	assert.Equal(t, viewsync.StateRolledBack, state)
	assert.Equal(t, domain.ErrorInvariant, domain.Classify(err))
	assert.Equal(t, before, settingsJSON(t, store))
}

func TestApply_StaleResponseDiscarded(t *testing.T) {
	store, persister, rec, syncer := setup(t)
	ctx := context.Background()

	first, err := syncer.Apply(ctx, "v1", domain.SettingsPatch{Filters: map[string][]string{"status": {"a"}}})
	require.NoError(t, err)
	second, err := syncer.Apply(ctx, "v1", domain.SettingsPatch{Filters: map[string][]string{"status": {"b"}}})
	require.NoError(t, err)

	calls := map[string]call{}
	for i := 0; i < 2; i++ {
		c := persister.next(t)
		calls[c.patch.Filters["status"][0]] = c
	}

	// The older request succeeds late; it must not overwrite the newer
	// optimistic state.
	stale := domain.ViewSettings{Filters: map[string][]string{"status": {"a"}}}
	calls["a"].reply <- reply{settings: &stale}
	state, _ := wait(t, first)
	assert.Equal(t, viewsync.StateSuperseded, state)

	v, _ := store.View("v1")
	assert.Equal(t, []string{"b"}, v.Settings.Filters["status"])

	latest := v.Settings.Clone()
	calls["b"].reply <- reply{settings: &latest}
	state, err = wait(t, second)
	require.NoError(t, err)
	assert.Equal(t, viewsync.StateCommitted, state)
	assert.Equal(t, []string{viewsync.EventCommitted}, rec.Events())
}

func TestApply_StaleFailureDoesNotRollBack(t *testing.T) {
	store, persister, rec, syncer := setup(t)
	ctx := context.Background()

	first, _ := syncer.Apply(ctx, "v1", domain.SettingsPatch{Filters: map[string][]string{"status": {"a"}}})
	second, _ := syncer.Apply(ctx, "v1", domain.SettingsPatch{Filters: map[string][]string{"status": {"b"}}})

	calls := map[string]call{}
	for i := 0; i < 2; i++ {
		c := persister.next(t)
		calls[c.patch.Filters["status"][0]] = c
	}

	v, _ := store.View("v1")
	latest := v.Settings.Clone()
	calls["b"].reply <- reply{settings: &latest}
	state, _ := wait(t, second)
	require.Equal(t, viewsync.StateCommitted, state)

	calls["a"].reply <- reply{err: errors.New("timeout")}
	state, err := wait(t, first)
	assert.Equal(t, viewsync.StateSuperseded, state)
	assert.Error(t, err)

	v, _ = store.View("v1")
	assert.Equal(t, []string{"b"}, v.Settings.Filters["status"])
	assert.Equal(t, []string{viewsync.EventCommitted}, rec.Events())
}

func TestApply_BothFailRestoresLatestSnapshot(t *testing.T) {
	store, persister, _, syncer := setup(t)
	ctx := context.Background()
	before := settingsJSON(t, store)

	first, _ := syncer.Apply(ctx, "v1", domain.SettingsPatch{Filters: map[string][]string{"status": {"a"}}})
	second, _ := syncer.Apply(ctx, "v1", domain.SettingsPatch{Filters: map[string][]string{"status": {"b"}}})
	assert.False(t, first.UnconfirmedBase())
	assert.True(t, second.UnconfirmedBase())
	assert.Equal(t, []string{"a"}, second.Snapshot().Filters["status"])

	calls := map[string]call{}
	for i := 0; i < 2; i++ {
		c := persister.next(t)
		calls[c.patch.Filters["status"][0]] = c
	}
	calls["a"].reply <- reply{err: errors.New("timeout")}
	state, _ := wait(t, first)
	require.Equal(t, viewsync.StateSuperseded, state)
	calls["b"].reply <- reply{err: errors.New("timeout")}
	state, _ = wait(t, second)
	require.Equal(t, viewsync.StateRolledBack, state)

	// The second mutation restores its own snapshot, which still holds the
	// first mutation's optimistic filter.
	v, _ := store.View("v1")
	assert.Equal(t, []string{"a"}, v.Settings.Filters["status"])
	assert.NotEqual(t, before, settingsJSON(t, store))

	// Once nothing is in flight, new mutations start from a settled base.
	third, _ := syncer.Apply(ctx, "v1", domain.SettingsPatch{Filters: map[string][]string{"status": {"c"}}})
	assert.False(t, third.UnconfirmedBase())
	persister.next(t).reply <- reply{err: errors.New("timeout")}
	wait(t, third)
}

func TestApply_UnknownView(t *testing.T) {
	_, _, _, syncer := setup(t)
	_, err := syncer.Apply(context.Background(), "nope", domain.SettingsPatch{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSynchronizer_WaitDrainsInFlight(t *testing.T) {
	_, persister, _, syncer := setup(t)
	m, err := syncer.Apply(context.Background(), "v1", domain.SettingsPatch{Sorts: []domain.SortRule{}})
	require.NoError(t, err)

	go func() {
		c := <-persister.calls
		s := domain.ViewSettings{}
		c.reply <- reply{settings: &s}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	syncer.Wait(ctx)
	assert.Equal(t, viewsync.StateCommitted, m.State())
}
