package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"notesdb/internal/etl"
)

// ── JSON File Source ────────────────────────────────────────
// Reads rows from a JSON array of objects, optionally nested under
// dataPath.

type jsonFileSource struct{}

func init() { etl.RegisterSource(&jsonFileSource{}) }

func (s *jsonFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:       "json_file",
		Label:      "JSON File",
		Extensions: []string{".json"},
	}
}

func (s *jsonFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Row, <-chan error) {
	out := make(chan etl.Row, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		rows, err := readJSONFile(cfg)
		if err != nil {
			errCh <- err
			return
		}
		for _, row := range rows {
			select {
			case out <- row:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return out, errCh
}

func readJSONFile(cfg etl.SourceConfig) ([]etl.Row, error) {
	filePath, _ := cfg["filePath"].(string)
	if filePath == "" {
		return nil, fmt.Errorf("filePath is required")
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	if dataPath, ok := cfg["dataPath"].(string); ok && dataPath != "" {
		current := raw
		for _, part := range strings.Split(dataPath, ".") {
			m, ok := current.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("invalid data path: %q not found", part)
			}
			current = m[part]
		}
		raw = current
	}

	return toRows(raw)
}

func toRows(raw any) ([]etl.Row, error) {
	switch v := raw.(type) {
	case []any:
		rows := make([]etl.Row, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				rows = append(rows, etl.Row{Data: flattenMap(m)})
			}
		}
		return rows, nil
	case map[string]any:
		return []etl.Row{{Data: flattenMap(v)}}, nil
	default:
		return nil, fmt.Errorf("expected an array of objects")
	}
}

// flattenMap keeps scalars and arrays of scalars. Nested objects are
// serialized as JSON strings.
func flattenMap(m map[string]any) map[string]any {
	flat := make(map[string]any, len(m))
	for k, v := range m {
		switch x := v.(type) {
		case string, float64, bool, nil, []any:
			flat[k] = x
		default:
			b, _ := json.Marshal(x)
			flat[k] = string(b)
		}
	}
	return flat
}
