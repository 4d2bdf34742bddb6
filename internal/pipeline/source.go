package pipeline

import (
	"context"
	"fmt"
	"sync"

	"datakit/internal/tabular"
)

// ── Source ──────────────────────────────────────────────────
// A Source extracts records from an external system.
// Implementations live in pipeline/sources/ — one file per source type.
//
// Pattern: Airbyte connector protocol (spec → discover → read).

// SourceConfig is an opaque configuration map parsed per source type.
type SourceConfig map[string]any

// String returns the string value for a key, or "" if absent.
func (c SourceConfig) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// ConfigField describes a single configuration input for a source.
// Agent surfaces (MCP) list these so callers can build a valid config.
type ConfigField struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Type     string   `json:"type"` // "string" | "select" | "textarea" | "password" | "file"
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"` // for "select" type
	Default  string   `json:"default,omitempty"`
	Help     string   `json:"help,omitempty"`
}

// SourceSpec describes a source type: its label and required config fields.
type SourceSpec struct {
	Type         string        `json:"type"`
	Label        string        `json:"label"`
	ConfigFields []ConfigField `json:"configFields"`
}

// Source is the interface every data source must implement.
type Source interface {
	// Spec returns metadata about this source type.
	Spec() SourceSpec

	// Discover introspects the source and returns the expected schema.
	Discover(ctx context.Context, cfg SourceConfig) (*tabular.Schema, error)

	// Read streams records from the source into a channel.
	// The channel is closed when all records have been read or ctx is cancelled.
	// Errors are sent on the error channel (buffered size 1).
	Read(ctx context.Context, cfg SourceConfig) (<-chan tabular.Record, <-chan error)
}

// ── Source registry ────────────────────────────────────────
// Compile-time registration via init() in each source file.

var (
	sourceMu sync.RWMutex
	sources  = map[string]Source{}
)

// RegisterSource registers a source by its spec type.
// Called from init() in each source implementation file.
func RegisterSource(s Source) {
	sourceMu.Lock()
	defer sourceMu.Unlock()
	sources[s.Spec().Type] = s
}

// GetSource returns a registered source by type, or an error if not found.
func GetSource(typ string) (Source, error) {
	sourceMu.RLock()
	defer sourceMu.RUnlock()
	s, ok := sources[typ]
	if !ok {
		return nil, fmt.Errorf("unknown source type: %q", typ)
	}
	return s, nil
}

// ListSources returns the specs of all registered sources.
func ListSources() []SourceSpec {
	sourceMu.RLock()
	defer sourceMu.RUnlock()
	specs := make([]SourceSpec, 0, len(sources))
	for _, s := range sources {
		specs = append(specs, s.Spec())
	}
	return specs
}
