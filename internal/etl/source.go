package etl

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ── Source ──────────────────────────────────────────────────
// A Source reads rows from a file. Implementations live in etl/sources/,
// one file per format, and register themselves from init().

// SourceConfig is an opaque configuration map parsed per source type.
type SourceConfig map[string]any

// SourceSpec describes a source type.
type SourceSpec struct {
	Type       string   `json:"type"`
	Label      string   `json:"label"`
	Extensions []string `json:"extensions"`
}

// Source is the interface every file format implements.
type Source interface {
	Spec() SourceSpec

	// Read streams rows into a channel that is closed when the file is
	// exhausted or ctx is cancelled. Errors are sent on the error channel
	// (buffered size 1).
	Read(ctx context.Context, cfg SourceConfig) (<-chan Row, <-chan error)
}

// ── Source Registry ────────────────────────────────────────

var (
	registryMu sync.RWMutex
	registry   = map[string]Source{}
)

// RegisterSource registers a source by its spec type.
func RegisterSource(s Source) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[s.Spec().Type] = s
}

// GetSource returns a registered source by type.
func GetSource(typ string) (Source, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("unknown source type: %q", typ)
	}
	return s, nil
}

// SourceForPath picks a source by file extension.
func SourceForPath(path string) (Source, error) {
	ext := strings.ToLower(filepath.Ext(path))
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, s := range registry {
		for _, e := range s.Spec().Extensions {
			if e == ext {
				return s, nil
			}
		}
	}
	return nil, fmt.Errorf("no source reads %q files", ext)
}

// ListSources returns the specs of all registered sources, sorted by type.
func ListSources() []SourceSpec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]SourceSpec, 0, len(registry))
	for _, s := range registry {
		specs = append(specs, s.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
	return specs
}
