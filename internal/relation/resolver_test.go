package relation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notesdb/internal/domain"
	"notesdb/internal/recordstore"
	"notesdb/internal/relation"
)

func relationProp(card domain.Cardinality) *domain.PropertyDef {
	return &domain.PropertyDef{
		ID:       "tasks",
		Type:     domain.PropTypeRelation,
		Relation: &domain.RelationConfig{LinkedDataSourceID: "tasks-ds", Cardinality: card},
	}
}

func TestResolve_IncompleteWhenTargetMissing(t *testing.T) {
	store := recordstore.New()
	var missed []string
	r := relation.NewResolver(store, func(id string) { missed = append(missed, id) })

	rec := domain.Record{ID: "p1", Properties: map[string]domain.Value{"tasks": domain.ListValue("t1")}}
	got := r.Resolve(rec, relationProp(domain.CardinalityMultiple))

	assert.False(t, got.IsComplete)
	assert.Equal(t, "tasks-ds", got.TargetDataSourceID)
	assert.Equal(t, []string{"tasks-ds"}, missed)

	// Data source cached but records not yet loaded is still incomplete.
	store.SetDataSource("tasks-ds", &domain.DataSource{})
	got = r.Resolve(rec, relationProp(domain.CardinalityMultiple))
	assert.False(t, got.IsComplete)
}

func TestResolve_SkipsDeletedTargets(t *testing.T) {
	store := recordstore.New()
	store.SetDataSource("tasks-ds", &domain.DataSource{})
	store.SetRecords("tasks-ds", []domain.Record{{ID: "t1"}, {ID: "t3"}})
	r := relation.NewResolver(store, nil)

	rec := domain.Record{ID: "p1", Properties: map[string]domain.Value{"tasks": domain.ListValue("t3", "t2", "t1")}}
	got := r.Resolve(rec, relationProp(domain.CardinalityMultiple))

	require.True(t, got.IsComplete)
	require.Len(t, got.TargetRecords, 2)
	assert.Equal(t, "t3", got.TargetRecords[0].ID)
	assert.Equal(t, "t1", got.TargetRecords[1].ID)
}

func TestResolve_SingleCardinality(t *testing.T) {
	store := recordstore.New()
	store.SetDataSource("tasks-ds", &domain.DataSource{})
	store.SetRecords("tasks-ds", []domain.Record{{ID: "t1"}, {ID: "t2"}})
	r := relation.NewResolver(store, nil)

	// A scalar stored value is normalized to a one-element list.
	rec := domain.Record{ID: "p1", Properties: map[string]domain.Value{"tasks": domain.TextValue("t2")}}
	got := r.Resolve(rec, relationProp(domain.CardinalitySingle))
	require.Len(t, got.TargetRecords, 1)
	assert.Equal(t, "t2", got.TargetRecords[0].ID)

	rec.Properties["tasks"] = domain.ListValue("t1", "t2")
	got = r.Resolve(rec, relationProp(domain.CardinalitySingle))
	assert.Len(t, got.TargetRecords, 1)
}

func TestResolve_NotARelation(t *testing.T) {
	r := relation.NewResolver(recordstore.New(), nil)
	got := r.Resolve(domain.Record{}, &domain.PropertyDef{ID: "x", Type: domain.PropTypeText})
	assert.True(t, got.IsComplete)
	assert.Empty(t, got.TargetRecords)
}
