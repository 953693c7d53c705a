package filter

import "notesdb/internal/domain"

// MatchesSimple reports whether record passes every per-property filter.
// A record matches a key when its value intersects the selected set.
// Keys that are absent, or present with an empty set, do not constrain,
// and neither do keys naming properties that no longer exist.
func (e *Evaluator) MatchesSimple(record domain.Record, filters map[string][]string, ds *domain.DataSource) bool {
	for propertyID, selected := range filters {
		if len(selected) == 0 {
			continue
		}
		o, ok := e.Operand(record, propertyID, ds)
		if !ok {
			e.log.Debug().Str("property", propertyID).Msg("simple filter on unknown property ignored")
			continue
		}
		if !e.anyMatch(o, o.Strings(), selected) {
			return false
		}
	}
	return true
}
