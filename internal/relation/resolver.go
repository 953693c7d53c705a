package relation

import "notesdb/internal/domain"

// Reader is the read side of the Record Store.
type Reader interface {
	DataSource(id string) (*domain.DataSource, bool)
	Records(dataSourceID string) ([]domain.Record, bool)
	Record(dataSourceID, recordID string) (domain.Record, bool)
}

// Resolved is the outcome of resolving one relation value.
// IsComplete is false when the target data source or its records are not
// cached yet; the caller should fetch before trusting TargetRecords.
type Resolved struct {
	TargetDataSourceID string
	TargetRecords      []domain.Record
	IsComplete         bool
}

// Resolver turns relation ids into records using the Record Store.
type Resolver struct {
	store  Reader
	onMiss func(dataSourceID string)
}

// NewResolver creates a Resolver. onMiss, when set, is called with the
// linked data source id whenever resolution is incomplete.
func NewResolver(store Reader, onMiss func(dataSourceID string)) *Resolver {
	return &Resolver{store: store, onMiss: onMiss}
}

// Resolve looks up the records referenced by record's value for prop.
// Ids of deleted target records are skipped.
func (r *Resolver) Resolve(record domain.Record, prop *domain.PropertyDef) Resolved {
	if prop == nil || prop.Type != domain.PropTypeRelation || prop.Relation == nil || prop.Relation.LinkedDataSourceID == "" {
		return Resolved{IsComplete: true}
	}
	target := prop.Relation.LinkedDataSourceID
	out := Resolved{TargetDataSourceID: target}

	_, dsOK := r.store.DataSource(target)
	_, recOK := r.store.Records(target)
	if !dsOK || !recOK {
		if r.onMiss != nil {
			r.onMiss(target)
		}
		return out
	}
	out.IsComplete = true

	ids := record.RelationIDs(prop.ID)
	for _, id := range ids {
		rec, ok := r.store.Record(target, id)
		if !ok {
			continue
		}
		out.TargetRecords = append(out.TargetRecords, rec)
		if prop.Relation.Cardinality == domain.CardinalitySingle {
			break
		}
	}
	return out
}
