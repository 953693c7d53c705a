package rollup_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notesdb/internal/domain"
	"notesdb/internal/recordstore"
	"notesdb/internal/relation"
	"notesdb/internal/rollup"
)

// ─────────────────────────────────────────────────────────────
// Fixture: project "p1" relates to 4 tasks whose status is
// [done, done, open, <empty>].
// ─────────────────────────────────────────────────────────────

type fixture struct {
	store   *recordstore.Store
	engine  *rollup.Engine
	project domain.Record
	props   map[string]*domain.PropertyDef
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := recordstore.New()
	store.SetDataSource("tasks", &domain.DataSource{
		ID: "tasks",
		Properties: map[string]*domain.PropertyDef{
			"status": {ID: "status", Name: "Status", Type: domain.PropTypeStatus, Options: []domain.Option{
				{ID: "done", Name: "done"}, {ID: "open", Name: "open"},
			}},
			"estimate": {ID: "estimate", Type: domain.PropTypeNumber},
		},
	})
	store.SetRecords("tasks", []domain.Record{
		{ID: "t1", Title: "one", Properties: map[string]domain.Value{"status": domain.TextValue("done"), "estimate": domain.NumberValue(3)}},
		{ID: "t2", Title: "two", Properties: map[string]domain.Value{"status": domain.TextValue("done")}},
		{ID: "t3", Title: "three", Properties: map[string]domain.Value{"status": domain.TextValue("open"), "estimate": domain.NumberValue(5)}},
		{ID: "t4", Title: "four", Properties: map[string]domain.Value{}},
	})

	props := map[string]*domain.PropertyDef{
		"tasks": {ID: "tasks", Type: domain.PropTypeRelation, Relation: &domain.RelationConfig{
			LinkedDataSourceID: "tasks", Cardinality: domain.CardinalityMultiple,
		}},
	}
	resolver := relation.NewResolver(store, nil)
	return &fixture{
		store:   store,
		engine:  rollup.NewEngine(store, resolver, zerolog.Nop()),
		project: domain.Record{ID: "p1", Properties: map[string]domain.Value{"tasks": domain.ListValue("t1", "t2", "t3", "t4")}},
		props:   props,
	}
}

func rollupProp(target string, cat domain.CalcCategory, val domain.CalcValue, selected ...string) *domain.PropertyDef {
	return &domain.PropertyDef{
		ID:   "progress",
		Type: domain.PropTypeRollup,
		Rollup: &domain.RollupConfig{
			RelationPropertyID:   "tasks",
			RelationDataSourceID: "tasks",
			TargetPropertyID:     target,
			Calculation:          &domain.Calculation{Category: cat, Value: val},
			SelectedOptions:      selected,
		},
	}
}

func (f *fixture) compute(t *testing.T, prop *domain.PropertyDef) rollup.Result {
	t.Helper()
	res, err := f.engine.Compute(f.project, prop, f.props)
	require.NoError(t, err)
	return res
}

// ─────────────────────────────────────────────────────────────
// Aggregations
// ─────────────────────────────────────────────────────────────

func TestCompute_CountPerGroup(t *testing.T) {
	f := newFixture(t)
	res := f.compute(t, rollupProp("status", domain.CalcCount, domain.CalcValuePerGroup, "done"))

	assert.Equal(t, rollup.StateReady, res.State)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, 4, res.TotalCount)
	assert.Equal(t, "2/4", res.CountFraction)
}

func TestCompute_PercentPerGroup(t *testing.T) {
	f := newFixture(t)
	res := f.compute(t, rollupProp("status", domain.CalcPercent, domain.CalcValuePerGroup, "done"))
	assert.Equal(t, 50, res.Percent)
}

func TestCompute_EmptyAndNonEmpty(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 1, f.compute(t, rollupProp("status", domain.CalcCount, domain.CalcValueEmpty)).Count)
	assert.Equal(t, 3, f.compute(t, rollupProp("status", domain.CalcCount, domain.CalcValueNonEmpty)).Count)
	assert.Equal(t, 25, f.compute(t, rollupProp("status", domain.CalcPercent, domain.CalcValueEmpty)).Percent)
	assert.Equal(t, 75, f.compute(t, rollupProp("status", domain.CalcPercent, domain.CalcValueNonEmpty)).Percent)
}

func TestCompute_CountAllNeedsNoTarget(t *testing.T) {
	f := newFixture(t)
	res := f.compute(t, rollupProp("", domain.CalcCount, domain.CalcValueAll))
	assert.Equal(t, rollup.StateReady, res.State)
	assert.Equal(t, 4, res.Count)
}

func TestCompute_OriginalPreservesOrderAndDuplicates(t *testing.T) {
	f := newFixture(t)
	f.project.Properties["tasks"] = domain.ListValue("t3", "t1", "t1")

	res := f.compute(t, rollupProp("status", domain.CalcOriginal, domain.CalcValueOriginal))
	require.Len(t, res.Values, 3)
	assert.Equal(t, "open", res.Values[0].Text)
	assert.Equal(t, "done", res.Values[1].Text)
	assert.Equal(t, "done", res.Values[2].Text)
	assert.Equal(t, domain.PropTypeStatus, res.TargetType)
}

func TestCompute_PerGroupSelectedOptionsIgnoredForNonOptionTarget(t *testing.T) {
	f := newFixture(t)
	res := f.compute(t, rollupProp("estimate", domain.CalcCount, domain.CalcValuePerGroup, "3"))
	assert.Equal(t, 2, res.Count)
}

func TestCompute_ZeroTargetsNoDivision(t *testing.T) {
	f := newFixture(t)
	f.project.Properties["tasks"] = domain.ListValue()

	res := f.compute(t, rollupProp("status", domain.CalcPercent, domain.CalcValuePerGroup, "done"))
	assert.Equal(t, 0, res.Percent)
	assert.Equal(t, 0, res.TotalCount)
	assert.Equal(t, "0/0", res.CountFraction)
}

func TestCompute_Deterministic(t *testing.T) {
	f := newFixture(t)
	prop := rollupProp("status", domain.CalcPercent, domain.CalcValuePerGroup, "done", "open")
	first := f.compute(t, prop)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, f.compute(t, prop))
	}
}

func TestCompute_CountPercentConsistency(t *testing.T) {
	f := newFixture(t)
	for _, v := range []domain.CalcValue{domain.CalcValuePerGroup, domain.CalcValueEmpty, domain.CalcValueNonEmpty} {
		count := f.compute(t, rollupProp("status", domain.CalcCount, v, "done"))
		pct := f.compute(t, rollupProp("status", domain.CalcPercent, v, "done"))
		assert.Equal(t, rollup.Percent(count.Count, count.TotalCount), pct.Percent, string(v))
		assert.GreaterOrEqual(t, pct.Percent, 0)
		assert.LessOrEqual(t, pct.Percent, 100)
	}
}

// ─────────────────────────────────────────────────────────────
// Degraded states
// ─────────────────────────────────────────────────────────────

func TestCompute_Unconfigured(t *testing.T) {
	f := newFixture(t)

	res := f.compute(t, &domain.PropertyDef{ID: "r", Type: domain.PropTypeRollup})
	assert.Equal(t, rollup.StateUnconfigured, res.State)

	stale := rollupProp("status", domain.CalcCount, domain.CalcValueAll)
	stale.Rollup.RelationPropertyID = "deleted"
	assert.Equal(t, rollup.StateUnconfigured, f.compute(t, stale).State)

	noTarget := rollupProp("", domain.CalcOriginal, domain.CalcValueOriginal)
	assert.Equal(t, rollup.StateUnconfigured, f.compute(t, noTarget).State)
}

func TestCompute_Loading(t *testing.T) {
	f := newFixture(t)
	f.store.Invalidate("tasks")

	res := f.compute(t, rollupProp("status", domain.CalcCount, domain.CalcValueAll))
	assert.Equal(t, rollup.StateLoading, res.State)
	assert.Equal(t, "tasks", res.TargetDataSourceID)
}

func TestCompute_ErrorWhenTargetDeleted(t *testing.T) {
	f := newFixture(t)
	res := f.compute(t, rollupProp("gone", domain.CalcCount, domain.CalcValueNonEmpty))
	assert.Equal(t, rollup.StateError, res.State)
	assert.NotEmpty(t, res.Reason)
}

func TestCompute_InvariantViolation(t *testing.T) {
	f := newFixture(t)

	prop := rollupProp("status", "", domain.CalcValueAll)
	_, err := f.engine.Compute(f.project, prop, f.props)
	require.Error(t, err)
	assert.Equal(t, domain.ErrorInvariant, domain.Classify(err))

	prop.Rollup.Calculation = nil
	_, err = f.engine.Compute(f.project, prop, f.props)
	assert.Equal(t, domain.ErrorInvariant, domain.Classify(err))
}

// ─────────────────────────────────────────────────────────────
// Comparable values
// ─────────────────────────────────────────────────────────────

func TestComparable(t *testing.T) {
	f := newFixture(t)

	count := rollup.Comparable(f.compute(t, rollupProp("status", domain.CalcCount, domain.CalcValuePerGroup, "done")))
	assert.Equal(t, domain.NumberValue(2), count)

	pct := rollup.Comparable(f.compute(t, rollupProp("status", domain.CalcPercent, domain.CalcValuePerGroup, "done")))
	assert.Equal(t, domain.NumberValue(50), pct)

	f.project.Properties["tasks"] = domain.ListValue("t4", "t3")
	orig := rollup.Comparable(f.compute(t, rollupProp("status", domain.CalcOriginal, domain.CalcValueOriginal)))
	assert.Equal(t, domain.TextValue("open"), orig)

	f.project.Properties["tasks"] = domain.ListValue("t4")
	empty := rollup.Comparable(f.compute(t, rollupProp("status", domain.CalcOriginal, domain.CalcValueOriginal)))
	assert.True(t, empty.IsEmpty())
}

func TestPercentBounds(t *testing.T) {
	assert.Equal(t, 0, rollup.Percent(0, 0))
	assert.Equal(t, 33, rollup.Percent(1, 3))
	assert.Equal(t, 67, rollup.Percent(2, 3))
	assert.Equal(t, 100, rollup.Percent(3, 3))
}
