package pipeline

import (
	"context"
	"fmt"
	"sync"

	"datakit/internal/tabular"
)

// ── Sink ───────────────────────────────────────────────────
// A Sink writes records into a target system.
// Implementations live in pipeline/sinks/ — one file per sink type.
//
// Pattern: Singer target protocol.

// SyncMode determines how records are written to the sink.
type SyncMode string

const (
	SyncReplace SyncMode = "replace" // remove existing target content, write fresh
	SyncAppend  SyncMode = "append"  // add records without removing existing
)

// SinkConfig is an opaque configuration map parsed per sink type.
type SinkConfig map[string]any

// String returns the string value for a key, or "" if absent.
func (c SinkConfig) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// SinkSpec describes a sink type.
type SinkSpec struct {
	Type         string        `json:"type"`
	Label        string        `json:"label"`
	ConfigFields []ConfigField `json:"configFields"`
}

// Sink writes a batch of records to a target.
// Returns the number of records written.
type Sink interface {
	Spec() SinkSpec
	Write(ctx context.Context, cfg SinkConfig, schema *tabular.Schema, records []tabular.Record, mode SyncMode) (int, error)
}

// ── Sink registry ──────────────────────────────────────────

var (
	sinkMu sync.RWMutex
	sinks  = map[string]Sink{}
)

// RegisterSink registers a sink by its spec type.
func RegisterSink(s Sink) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sinks[s.Spec().Type] = s
}

// GetSink returns a registered sink by type, or an error if not found.
func GetSink(typ string) (Sink, error) {
	sinkMu.RLock()
	defer sinkMu.RUnlock()
	s, ok := sinks[typ]
	if !ok {
		return nil, fmt.Errorf("unknown sink type: %q", typ)
	}
	return s, nil
}

// ListSinks returns the specs of all registered sinks.
func ListSinks() []SinkSpec {
	sinkMu.RLock()
	defer sinkMu.RUnlock()
	specs := make([]SinkSpec, 0, len(sinks))
	for _, s := range sinks {
		specs = append(specs, s.Spec())
	}
	return specs
}
