package etl

// ── Row ────────────────────────────────────────────────────
// Common intermediate format between file sources and the importer.
// Keys are column names as they appear in the file.

// Row is a single line of input.
type Row struct {
	Data map[string]any `json:"data"`
}

// Columns returns the distinct column names across rows.
func Columns(rows []Row) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		for k := range r.Data {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}
