package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"datakit/internal/pipeline"
	"datakit/internal/tabular"
)

// ── JSON File Sink ─────────────────────────────────────────
// Writes records as a 4-space-indented JSON array of objects.

type jsonFileSink struct{}

func init() { pipeline.RegisterSink(&jsonFileSink{}) }

func (s *jsonFileSink) Spec() pipeline.SinkSpec {
	return pipeline.SinkSpec{
		Type:  "json_file",
		Label: "JSON File",
		ConfigFields: []pipeline.ConfigField{
			{Key: "filePath", Label: "File Path", Type: "file", Required: true, Help: "Absolute path of the JSON file to write"},
		},
	}
}

func (s *jsonFileSink) Write(ctx context.Context, cfg pipeline.SinkConfig, schema *tabular.Schema, records []tabular.Record, mode pipeline.SyncMode) (int, error) {
	filePath := cfg.String("filePath")
	if filePath == "" {
		return 0, fmt.Errorf("filePath is required")
	}

	rows := make([]map[string]any, 0, len(records))

	// Append mode merges with the existing array, if any.
	if mode == pipeline.SyncAppend {
		if data, err := os.ReadFile(filePath); err == nil {
			var existing []map[string]any
			if err := json.Unmarshal(data, &existing); err != nil {
				return 0, fmt.Errorf("existing file is not a JSON array: %w", err)
			}
			rows = append(rows, existing...)
		}
	}

	for _, rec := range records {
		rows = append(rows, rec.Data)
	}

	out, err := json.MarshalIndent(rows, "", "    ")
	if err != nil {
		return 0, fmt.Errorf("marshal: %w", err)
	}
	if err := os.WriteFile(filePath, out, 0644); err != nil {
		return 0, fmt.Errorf("write file: %w", err)
	}
	return len(records), nil
}
