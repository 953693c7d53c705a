package domain

// Record is one row ("note") of a data source. Properties are keyed by
// property id; relation values hold record ids, never references.
type Record struct {
	ID           string           `json:"id"`
	DataSourceID string           `json:"dataSourceId"`
	Title        string           `json:"title"`
	Properties   map[string]Value `json:"properties"`
}

// Value returns the stored value for a property, or an empty Value.
func (r *Record) Value(propertyID string) Value {
	if r == nil || r.Properties == nil {
		return Value{}
	}
	return r.Properties[propertyID]
}

// RelationIDs returns the normalized relation id list for a property.
func (r *Record) RelationIDs(propertyID string) []string {
	return r.Value(propertyID).Normalize(PropTypeRelation).List
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	props := make(map[string]Value, len(r.Properties))
	for k, v := range r.Properties {
		props[k] = v.Clone()
	}
	r.Properties = props
	return r
}

// NormalizeRecord coerces every stored value to its property's shape.
// Values for unknown properties are kept untouched.
func NormalizeRecord(r Record, ds *DataSource) Record {
	if ds == nil {
		return r
	}
	for id, v := range r.Properties {
		if p, ok := ds.Property(id); ok {
			r.Properties[id] = v.Normalize(p.Type)
		}
	}
	return r
}

// Member is one entry of the workspace member directory.
type Member struct {
	ID    string `json:"id" bson:"_id"`
	Name  string `json:"name" bson:"name"`
	Email string `json:"email" bson:"email"`
}
