package storage

import (
	"strconv"

	"github.com/google/uuid"

	"notesdb/internal/domain"
)

// Canonicalize merges patch into current and normalizes the result the
// way the server stores it: missing rule and group ids are assigned,
// filter selections are deduplicated, and empty selections are dropped.
// Generated ids derive from the view id and tree position, so retrying
// the same patch yields the same settings.
func Canonicalize(viewID string, current domain.ViewSettings, patch domain.SettingsPatch) domain.ViewSettings {
	out := patch.Apply(current)

	if out.Filters != nil {
		filters := make(map[string][]string, len(out.Filters))
		for pid, values := range out.Filters {
			if deduped := dedupe(values); len(deduped) > 0 {
				filters[pid] = deduped
			}
		}
		out.Filters = filters
	}
	for i := range out.AdvancedFilters {
		assignIDs(viewID, "g"+strconv.Itoa(i), &out.AdvancedFilters[i])
	}
	if out.PropertyVisibility != nil {
		out.PropertyVisibility = dedupe(out.PropertyVisibility)
	}
	return out
}

func assignIDs(viewID, path string, g *domain.FilterGroup) {
	if g.ID == "" {
		g.ID = stableID(viewID, path)
	}
	if g.BooleanOperator == "" {
		g.BooleanOperator = domain.OpAnd
	}
	for i := range g.Rules {
		if g.Rules[i].ID == "" {
			g.Rules[i].ID = stableID(viewID, path+"/r"+strconv.Itoa(i))
		}
	}
	for i := range g.Groups {
		assignIDs(viewID, path+"/g"+strconv.Itoa(i), &g.Groups[i])
	}
}

func stableID(viewID, path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("notesdb:view:"+viewID+"/"+path)).String()
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
