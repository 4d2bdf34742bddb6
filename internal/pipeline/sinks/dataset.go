package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"datakit/internal/domain"
	"datakit/internal/pipeline"
	"datakit/internal/tabular"
)

// ── Dataset Sink ───────────────────────────────────────────
// Writes records into a locally stored dataset (SQLite-backed).
// The store is injected at startup; the sink resolves the target dataset
// by name, creating it on first write.

var datasetStore domain.DatasetStore

// SetDatasetStore is called once at startup to wire the persistence layer.
func SetDatasetStore(s domain.DatasetStore) { datasetStore = s }

type datasetSink struct{}

func init() { pipeline.RegisterSink(&datasetSink{}) }

func (s *datasetSink) Spec() pipeline.SinkSpec {
	return pipeline.SinkSpec{
		Type:  "dataset",
		Label: "Local Dataset",
		ConfigFields: []pipeline.ConfigField{
			{Key: "dataset", Label: "Dataset Name", Type: "string", Required: true, Help: "Target dataset; created on first write"},
		},
	}
}

func (s *datasetSink) Write(ctx context.Context, cfg pipeline.SinkConfig, schema *tabular.Schema, records []tabular.Record, mode pipeline.SyncMode) (int, error) {
	if datasetStore == nil {
		return 0, fmt.Errorf("dataset store not initialized")
	}
	name := cfg.String("dataset")
	if name == "" {
		return 0, fmt.Errorf("dataset is required")
	}
	if len(records) == 0 {
		return 0, nil
	}

	ds, err := s.resolveDataset(name, schema, mode)
	if err != nil {
		return 0, err
	}

	// Resolve column name → column ID mapping.
	colMap := make(map[string]string, len(ds.Columns))
	for _, col := range ds.Columns {
		colMap[col.Name] = col.ID
	}

	written := 0
	for i, rec := range records {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		rowData := make(map[string]any, len(rec.Data))
		for k, v := range rec.Data {
			if colID, ok := colMap[k]; ok {
				rowData[colID] = v
			}
		}

		dataJSON, _ := json.Marshal(rowData)
		row := &domain.DatasetRow{
			ID:        uuid.New().String(),
			DatasetID: ds.ID,
			DataJSON:  string(dataJSON),
			SortOrder: i + 1,
		}
		if err := datasetStore.CreateRow(row); err != nil {
			return written, fmt.Errorf("create row %d: %w", i, err)
		}
		written++
	}

	return written, nil
}

// resolveDataset fetches or creates the target dataset and reconciles its
// columns with the output schema per the sync mode.
func (s *datasetSink) resolveDataset(name string, schema *tabular.Schema, mode pipeline.SyncMode) (*domain.Dataset, error) {
	ds, err := datasetStore.GetDatasetByName(name)
	if err != nil {
		// First write: create the dataset with columns from the schema.
		ds = &domain.Dataset{
			ID:      uuid.New().String(),
			Name:    name,
			Columns: columnsFromSchema(schema),
		}
		if err := datasetStore.CreateDataset(ds); err != nil {
			return nil, fmt.Errorf("create dataset: %w", err)
		}
		return ds, nil
	}

	if mode == pipeline.SyncReplace {
		// Replace mode clears rows and resets columns to the output schema.
		if err := datasetStore.DeleteRowsByDataset(ds.ID); err != nil {
			return nil, fmt.Errorf("clear dataset: %w", err)
		}
		ds.Columns = columnsFromSchema(schema)
		ds.UpdatedAt = time.Now()
		if err := datasetStore.UpdateDataset(ds); err != nil {
			return nil, fmt.Errorf("reset columns: %w", err)
		}
		return ds, nil
	}

	// Append mode: add any missing columns.
	existing := make(map[string]bool, len(ds.Columns))
	for _, col := range ds.Columns {
		existing[col.Name] = true
	}
	changed := false
	for _, f := range schema.Fields {
		if existing[f.Name] {
			continue
		}
		ds.Columns = append(ds.Columns, domain.DatasetColumn{
			ID:   uuid.New().String(),
			Name: f.Name,
			Type: mapFieldType(f.Type),
		})
		changed = true
	}
	if changed {
		ds.UpdatedAt = time.Now()
		if err := datasetStore.UpdateDataset(ds); err != nil {
			return nil, fmt.Errorf("ensure columns: %w", err)
		}
	}
	return ds, nil
}

func columnsFromSchema(schema *tabular.Schema) []domain.DatasetColumn {
	if schema == nil {
		return nil
	}
	cols := make([]domain.DatasetColumn, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		cols = append(cols, domain.DatasetColumn{
			ID:   uuid.New().String(),
			Name: f.Name,
			Type: mapFieldType(f.Type),
		})
	}
	return cols
}

// mapFieldType converts schema field types to dataset column types.
func mapFieldType(t string) domain.ColumnType {
	switch t {
	case "number":
		return domain.ColTypeNumber
	case "boolean":
		return domain.ColTypeBoolean
	case "datetime":
		return domain.ColTypeDatetime
	default:
		return domain.ColTypeText
	}
}
