package pipeline_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"datakit/internal/pipeline"
	"datakit/internal/tabular"
)

// ─────────────────────────────────────────────────────────────
// Engine tests — fake source and sink registered per test type
// ─────────────────────────────────────────────────────────────

type fakeSource struct {
	typ     string
	records []tabular.Record
	readErr error
}

func (s *fakeSource) Spec() pipeline.SourceSpec {
	return pipeline.SourceSpec{Type: s.typ, Label: "Fake"}
}

func (s *fakeSource) Discover(_ context.Context, _ pipeline.SourceConfig) (*tabular.Schema, error) {
	return tabular.TextSchema([]string{"name", "age"}), nil
}

func (s *fakeSource) Read(_ context.Context, _ pipeline.SourceConfig) (<-chan tabular.Record, <-chan error) {
	recCh := make(chan tabular.Record)
	errCh := make(chan error, 1)
	go func() {
		defer close(recCh)
		defer close(errCh)
		for _, r := range s.records {
			recCh <- r
		}
		if s.readErr != nil {
			errCh <- s.readErr
		}
	}()
	return recCh, errCh
}

type fakeSink struct {
	typ     string
	written []tabular.Record
	schema  *tabular.Schema
	mode    pipeline.SyncMode
}

func (s *fakeSink) Spec() pipeline.SinkSpec {
	return pipeline.SinkSpec{Type: s.typ, Label: "Fake"}
}

func (s *fakeSink) Write(_ context.Context, _ pipeline.SinkConfig, schema *tabular.Schema, records []tabular.Record, mode pipeline.SyncMode) (int, error) {
	s.written = records
	s.schema = schema
	s.mode = mode
	return len(records), nil
}

func sampleRecords() []tabular.Record {
	return []tabular.Record{
		{Data: map[string]any{"name": "alice", "age": 25}},
		{Data: map[string]any{"name": "bob", "age": 17}},
		{Data: map[string]any{"name": "carol", "age": 31}},
	}
}

func TestRunSyncEndToEnd(t *testing.T) {
	src := &fakeSource{typ: "fake_e2e", records: sampleRecords()}
	sink := &fakeSink{typ: "fake_e2e_sink"}
	pipeline.RegisterSource(src)
	pipeline.RegisterSink(sink)

	job := &pipeline.SyncJob{
		ID:         "job-1",
		SourceType: "fake_e2e",
		SinkType:   "fake_e2e_sink",
		SyncMode:   pipeline.SyncReplace,
		Transforms: []tabular.TransformConfig{
			{Type: "filter", Config: map[string]any{"field": "age", "op": "gt", "value": float64(18)}},
			{Type: "map", Config: map[string]any{"field": "name", "op": "upper"}},
		},
	}

	engine := &pipeline.Engine{}
	result, err := engine.RunSync(context.Background(), job)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}

	if result.Status != "success" {
		t.Errorf("status: %s", result.Status)
	}
	if result.RowsRead != 3 {
		t.Errorf("rows read: %d", result.RowsRead)
	}
	if result.RowsWritten != 2 {
		t.Errorf("rows written: %d", result.RowsWritten)
	}
	if len(sink.written) != 2 {
		t.Fatalf("sink received %d records", len(sink.written))
	}
	if sink.written[0].Data["name"] != "ALICE" {
		t.Errorf("transform not applied: %v", sink.written[0].Data["name"])
	}
	if sink.mode != pipeline.SyncReplace {
		t.Errorf("mode: %s", sink.mode)
	}
}

func TestRunSyncSourceError(t *testing.T) {
	src := &fakeSource{typ: "fake_err", readErr: errors.New("connection reset")}
	sink := &fakeSink{typ: "fake_err_sink"}
	pipeline.RegisterSource(src)
	pipeline.RegisterSink(sink)

	job := &pipeline.SyncJob{
		ID:         "job-2",
		SourceType: "fake_err",
		SinkType:   "fake_err_sink",
	}

	result, err := (&pipeline.Engine{}).RunSync(context.Background(), job)
	if err == nil {
		t.Fatal("expected error")
	}
	if result.Status != "error" {
		t.Errorf("status: %s", result.Status)
	}
	if result.Error == "" {
		t.Error("result.Error should carry the failure")
	}
}

func TestRunSyncUnknownSource(t *testing.T) {
	job := &pipeline.SyncJob{SourceType: "does_not_exist", SinkType: "also_missing"}
	result, err := (&pipeline.Engine{}).RunSync(context.Background(), job)
	if err == nil {
		t.Fatal("expected error for unknown source")
	}
	if result.Status != "error" {
		t.Errorf("status: %s", result.Status)
	}
}

func TestRunSyncDedupe(t *testing.T) {
	records := []tabular.Record{
		{Data: map[string]any{"name": "a", "age": 1}},
		{Data: map[string]any{"name": "a", "age": 2}},
		{Data: map[string]any{"name": "b", "age": 3}},
	}
	src := &fakeSource{typ: "fake_dedupe", records: records}
	sink := &fakeSink{typ: "fake_dedupe_sink"}
	pipeline.RegisterSource(src)
	pipeline.RegisterSink(sink)

	job := &pipeline.SyncJob{
		SourceType: "fake_dedupe",
		SinkType:   "fake_dedupe_sink",
		DedupeKey:  "name",
	}

	result, err := (&pipeline.Engine{}).RunSync(context.Background(), job)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if result.RowsWritten != 2 {
		t.Errorf("expected 2 rows after dedupe, got %d", result.RowsWritten)
	}
}

func TestPreviewCapsRows(t *testing.T) {
	var records []tabular.Record
	for i := 0; i < 50; i++ {
		records = append(records, tabular.Record{Data: map[string]any{"i": i}})
	}
	src := &fakeSource{typ: "fake_preview", records: records}
	pipeline.RegisterSource(src)

	got, schema, err := (&pipeline.Engine{}).Preview(context.Background(), "fake_preview", nil, 10)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(got) != 10 {
		t.Errorf("expected 10 records, got %d", len(got))
	}
	if schema == nil {
		t.Error("expected a schema")
	}
}

func TestDeriveSchema(t *testing.T) {
	source := tabular.TextSchema([]string{"a", "b", "c"})
	records := []tabular.Record{
		{Data: map[string]any{"a": 1, "c": 3, "d": 4}},
	}

	derived := pipeline.DeriveSchema(records, source)

	names := derived.FieldNames()
	// source order kept for surviving fields, new fields appended
	if len(names) != 3 || names[0] != "a" || names[1] != "c" || names[2] != "d" {
		t.Errorf("derived fields: %v", names)
	}
}

func TestDeriveSchemaNewFieldsSorted(t *testing.T) {
	source := tabular.TextSchema([]string{"name"})
	records := []tabular.Record{
		{Data: map[string]any{"name": "x", "zeta": 1, "alpha": 2, "mid": 3}},
	}

	// Several fields added past the source schema (compute, rename) must
	// come out in a stable order on every run.
	for i := 0; i < 20; i++ {
		names := pipeline.DeriveSchema(records, source).FieldNames()
		want := []string{"name", "alpha", "mid", "zeta"}
		if !reflect.DeepEqual(names, want) {
			t.Fatalf("run %d: derived fields %v, want %v", i, names, want)
		}
	}
}

func TestDeriveSchemaEmptyRecords(t *testing.T) {
	source := tabular.TextSchema([]string{"a"})
	if got := pipeline.DeriveSchema(nil, source); got != source {
		t.Error("empty records should return the source schema as-is")
	}
}
