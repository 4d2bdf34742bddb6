package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"datakit/internal/tabular"
)

// ── SyncJob ────────────────────────────────────────────────
// Orchestrates: source.Read → transform chain → sink.Write.
//
// Pattern: Airbyte sync / Singer tap→target pipeline.

// SyncJob holds the configuration for a single sync.
type SyncJob struct {
	ID            string                    `json:"id"`
	Name          string                    `json:"name"`
	SourceType    string                    `json:"sourceType"`
	SourceCfg     SourceConfig              `json:"sourceConfig"`
	Transforms    []tabular.TransformConfig `json:"transforms,omitempty"`
	SinkType      string                    `json:"sinkType"`
	SinkCfg       SinkConfig                `json:"sinkConfig"`
	SyncMode      SyncMode                  `json:"syncMode"`
	DedupeKey     string                    `json:"dedupeKey,omitempty"`
	TriggerType   string                    `json:"triggerType"`   // "manual" | "schedule" | "file_watch"
	TriggerConfig string                    `json:"triggerConfig"` // cron expression or watch path
	Enabled       bool                      `json:"enabled"`
	LastRunAt     time.Time                 `json:"lastRunAt"`
	LastStatus    string                    `json:"lastStatus"` // "success" | "error" | "running" | ""
	LastError     string                    `json:"lastError"`
	CreatedAt     time.Time                 `json:"createdAt"`
	UpdatedAt     time.Time                 `json:"updatedAt"`
}

// SyncResult is the outcome of running a sync job.
type SyncResult struct {
	JobID       string        `json:"jobId"`
	Status      string        `json:"status"` // "success" | "error"
	RowsRead    int           `json:"rowsRead"`
	RowsWritten int           `json:"rowsWritten"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// SyncRunLog is a historical record of a sync run.
type SyncRunLog struct {
	ID          string    `json:"id"`
	JobID       string    `json:"jobId"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Status      string    `json:"status"`
	RowsRead    int       `json:"rowsRead"`
	RowsWritten int       `json:"rowsWritten"`
	Error       string    `json:"error,omitempty"`
}

// ── Engine ─────────────────────────────────────────────────

// Engine runs sync jobs using the registered sources and sinks.
type Engine struct{}

// RunSync executes a sync job end-to-end.
func (e *Engine) RunSync(ctx context.Context, job *SyncJob) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{JobID: job.ID}

	fail := func(err error) (*SyncResult, error) {
		result.Status = "error"
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result, err
	}

	// 1. Resolve source and sink from the registries.
	source, err := GetSource(job.SourceType)
	if err != nil {
		return fail(err)
	}
	sink, err := GetSink(job.SinkType)
	if err != nil {
		return fail(err)
	}

	// 2. Discover source schema.
	schema, err := source.Discover(ctx, job.SourceCfg)
	if err != nil {
		return fail(fmt.Errorf("discover: %w", err))
	}

	// 3. Read records from source.
	recCh, errCh := source.Read(ctx, job.SourceCfg)

	// 4. Build transformer chain from config.
	transformers := tabular.BuildTransformers(job.Transforms, job.DedupeKey)

	// 5. Collect + transform records.
	var records []tabular.Record
	for rec := range recCh {
		result.RowsRead++
		transformed, keep := tabular.Chain(rec, transformers)
		if keep {
			records = append(records, transformed)
		}
	}

	// 5b. Apply batch transforms (sort).
	records = tabular.ApplyBatchSort(records, transformers)

	// Check for source errors.
	if err := <-errCh; err != nil {
		return fail(fmt.Errorf("read: %w", err))
	}

	// 5c. Derive output schema from actual records (transforms may have
	// renamed or dropped columns).
	outputSchema := DeriveSchema(records, schema)

	// 6. Write to sink.
	written, err := sink.Write(ctx, job.SinkCfg, outputSchema, records, job.SyncMode)
	if err != nil {
		return fail(fmt.Errorf("write: %w", err))
	}

	result.Status = "success"
	result.RowsWritten = written
	result.Duration = time.Since(start)
	return result, nil
}

// Preview executes only the source read phase and returns up to maxRows records.
func (e *Engine) Preview(ctx context.Context, sourceType string, cfg SourceConfig, maxRows int) ([]tabular.Record, *tabular.Schema, error) {
	source, err := GetSource(sourceType)
	if err != nil {
		return nil, nil, err
	}

	schema, err := source.Discover(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("discover: %w", err)
	}

	recCh, errCh := source.Read(ctx, cfg)

	var records []tabular.Record
	for rec := range recCh {
		records = append(records, rec)
		if len(records) >= maxRows {
			break
		}
	}

	// Drain remaining and check for errors.
	go func() {
		for range recCh {
		}
	}()
	if err := <-errCh; err != nil {
		return records, schema, err
	}

	return records, schema, nil
}

// DeriveSchema builds a schema from the keys actually present in the
// transformed records. Fields keep the source schema's order and type
// hints; new fields are appended in first-seen order.
func DeriveSchema(records []tabular.Record, sourceSchema *tabular.Schema) *tabular.Schema {
	if len(records) == 0 {
		return sourceSchema
	}

	typeMap := make(map[string]string)
	var sourceOrder []string
	if sourceSchema != nil {
		for _, f := range sourceSchema.Fields {
			typeMap[f.Name] = f.Type
			sourceOrder = append(sourceOrder, f.Name)
		}
	}

	present := make(map[string]bool)
	for _, r := range records {
		for k := range r.Data {
			present[k] = true
		}
	}

	var fieldNames []string
	seen := make(map[string]bool)
	// Source fields first, in their original column order.
	for _, name := range sourceOrder {
		if present[name] {
			fieldNames = append(fieldNames, name)
			seen[name] = true
		}
	}
	// Then any new fields introduced by transforms, sorted by name —
	// map iteration order must not leak into the column order.
	var added []string
	for _, r := range records {
		for k := range r.Data {
			if !seen[k] {
				seen[k] = true
				added = append(added, k)
			}
		}
	}
	sort.Strings(added)
	fieldNames = append(fieldNames, added...)

	fields := make([]tabular.Field, 0, len(fieldNames))
	for _, name := range fieldNames {
		ft := typeMap[name]
		if ft == "" {
			ft = "text" // default for fields introduced downstream
		}
		fields = append(fields, tabular.Field{Name: name, Type: ft})
	}

	return &tabular.Schema{Fields: fields}
}
