package sinks

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"

	"datakit/internal/pipeline"
	"datakit/internal/tabular"
)

// ── CSV File Sink ──────────────────────────────────────────
// Writes records as RFC-4180 CSV with a header row. Column order comes
// from the schema; values are rendered as text.

type csvFileSink struct{}

func init() { pipeline.RegisterSink(&csvFileSink{}) }

func (s *csvFileSink) Spec() pipeline.SinkSpec {
	return pipeline.SinkSpec{
		Type:  "csv_file",
		Label: "CSV File",
		ConfigFields: []pipeline.ConfigField{
			{Key: "filePath", Label: "File Path", Type: "file", Required: true, Help: "Absolute path of the CSV file to write"},
		},
	}
}

func (s *csvFileSink) Write(ctx context.Context, cfg pipeline.SinkConfig, schema *tabular.Schema, records []tabular.Record, mode pipeline.SyncMode) (int, error) {
	filePath := cfg.String("filePath")
	if filePath == "" {
		return 0, fmt.Errorf("filePath is required")
	}
	if schema == nil || len(schema.Fields) == 0 {
		return 0, fmt.Errorf("no columns to write")
	}

	appendExisting := false
	if mode == pipeline.SyncAppend {
		if _, err := os.Stat(filePath); err == nil {
			appendExisting = true
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendExisting {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(filePath, flags, 0644)
	if err != nil {
		return 0, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	columns := schema.FieldNames()

	if !appendExisting {
		if err := w.Write(columns); err != nil {
			return 0, fmt.Errorf("write header: %w", err)
		}
	}

	written := 0
	for _, rec := range records {
		row := make([]string, len(columns))
		for i, col := range columns {
			if v, ok := rec.Data[col]; ok && v != nil {
				row[i] = valueText(v)
			}
		}
		if err := w.Write(row); err != nil {
			return written, fmt.Errorf("write row %d: %w", written, err)
		}
		written++
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return written, fmt.Errorf("flush: %w", err)
	}
	return written, nil
}

// valueText renders a record value the way it should appear in CSV.
// Floats that carry integral values print without a trailing ".0" so a
// JSON "age": 30 round-trips as "30".
func valueText(v any) string {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprint(v)
}
