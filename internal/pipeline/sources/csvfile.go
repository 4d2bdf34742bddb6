package sources

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"datakit/internal/pipeline"
	"datakit/internal/tabular"
)

// ── CSV File Source ─────────────────────────────────────────
// Reads records from a local CSV file. The first row is the header by
// default; column order is preserved in the discovered schema.

type csvFileSource struct{}

func init() { pipeline.RegisterSource(&csvFileSource{}) }

func (s *csvFileSource) Spec() pipeline.SourceSpec {
	return pipeline.SourceSpec{
		Type:  "csv_file",
		Label: "CSV File",
		ConfigFields: []pipeline.ConfigField{
			{Key: "filePath", Label: "File Path", Type: "file", Required: true, Help: "Absolute path to the CSV file"},
			{Key: "delimiter", Label: "Delimiter", Type: "string", Required: false, Default: ",", Help: "Column delimiter (default: comma)"},
			{Key: "hasHeader", Label: "Has Header", Type: "select", Required: false, Options: []string{"true", "false"}, Default: "true", Help: "Whether the first row contains column names"},
			{Key: "rawStrings", Label: "Raw Strings", Type: "select", Required: false, Options: []string{"true", "false"}, Default: "false", Help: "Keep every value as text instead of inferring numbers/booleans"},
		},
	}
}

func (s *csvFileSource) Discover(ctx context.Context, cfg pipeline.SourceConfig) (*tabular.Schema, error) {
	headers, _, err := readCSVFile(cfg)
	if err != nil {
		return nil, err
	}
	return tabular.TextSchema(headers), nil
}

func (s *csvFileSource) Read(ctx context.Context, cfg pipeline.SourceConfig) (<-chan tabular.Record, <-chan error) {
	out := make(chan tabular.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		headers, rows, err := readCSVFile(cfg)
		if err != nil {
			errCh <- err
			return
		}

		raw := strings.EqualFold(cfg.String("rawStrings"), "true")
		for _, row := range rows {
			data := make(map[string]any, len(headers))
			for j, h := range headers {
				if j < len(row) {
					if raw {
						data[h] = row[j]
					} else {
						data[h] = inferCSVValue(row[j])
					}
				}
			}
			select {
			case out <- tabular.Record{Data: data}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errCh
}

func readCSVFile(cfg pipeline.SourceConfig) ([]string, [][]string, error) {
	filePath := cfg.String("filePath")
	if filePath == "" {
		return nil, nil, fmt.Errorf("filePath is required")
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if delim := cfg.String("delimiter"); len(delim) > 0 {
		reader.Comma = rune(delim[0])
	}
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("empty csv file")
	}

	hasHeader := true
	if h := cfg.String("hasHeader"); h != "" {
		hasHeader = !strings.EqualFold(h, "false")
	}

	var headers []string
	var rows [][]string
	if hasHeader {
		headers = records[0]
		rows = records[1:]
	} else {
		// Generate column names: col_1, col_2, ...
		headers = make([]string, len(records[0]))
		for i := range headers {
			headers[i] = fmt.Sprintf("col_%d", i+1)
		}
		rows = records
	}

	return headers, rows, nil
}
