package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"datakit/internal/pipeline"
	"datakit/internal/tabular"
)

// ── JSON File Source ────────────────────────────────────────
// Reads records from a local JSON file.

type jsonFileSource struct{}

func init() { pipeline.RegisterSource(&jsonFileSource{}) }

func (s *jsonFileSource) Spec() pipeline.SourceSpec {
	return pipeline.SourceSpec{
		Type:  "json_file",
		Label: "JSON File",
		ConfigFields: []pipeline.ConfigField{
			{Key: "filePath", Label: "File Path", Type: "file", Required: true, Help: "Absolute path to the JSON file"},
			{Key: "dataPath", Label: "Data Path", Type: "string", Required: false, Help: "Dot-separated path to the array (e.g., 'data.items'). Leave empty if root is an array."},
		},
	}
}

func (s *jsonFileSource) Discover(ctx context.Context, cfg pipeline.SourceConfig) (*tabular.Schema, error) {
	records, err := readJSONFile(cfg)
	if err != nil {
		return nil, err
	}
	return inferSchema(records), nil
}

func (s *jsonFileSource) Read(ctx context.Context, cfg pipeline.SourceConfig) (<-chan tabular.Record, <-chan error) {
	out := make(chan tabular.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		records, err := readJSONFile(cfg)
		if err != nil {
			errCh <- err
			return
		}
		for _, rec := range records {
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errCh
}

func readJSONFile(cfg pipeline.SourceConfig) ([]tabular.Record, error) {
	filePath := cfg.String("filePath")
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

	if dataPath := cfg.String("dataPath"); dataPath != "" {
		raw = navigatePath(raw, dataPath)
		if raw == nil {
			return nil, fmt.Errorf("invalid data path: %q", dataPath)
		}
	}

	return toRecords(raw), nil
}
