package sinks_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"datakit/internal/pipeline"
	"datakit/internal/tabular"

	_ "datakit/internal/pipeline/sinks"
)

func testRecords() (*tabular.Schema, []tabular.Record) {
	schema := tabular.TextSchema([]string{"name", "age"})
	records := []tabular.Record{
		{Data: map[string]any{"name": "alice", "age": float64(25)}},
		{Data: map[string]any{"name": "bob", "age": float64(30)}},
	}
	return schema, records
}

// ── json_file ──────────────────────────────────────────────

func TestJSONFileSinkReplace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	sink, err := pipeline.GetSink("json_file")
	if err != nil {
		t.Fatalf("sink not registered: %v", err)
	}
	schema, records := testRecords()

	n, err := sink.Write(context.Background(), pipeline.SinkConfig{"filePath": path}, schema, records, pipeline.SyncReplace)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != 2 {
		t.Errorf("written: %d", n)
	}

	data, _ := os.ReadFile(path)
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}
	if len(rows) != 2 || rows[0]["name"] != "alice" {
		t.Errorf("rows: %v", rows)
	}
	if !strings.Contains(string(data), "    \"") {
		t.Error("expected 4-space indentation")
	}
}

func TestJSONFileSinkAppendMerges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	os.WriteFile(path, []byte(`[{"name":"old","age":99}]`), 0644)

	sink, _ := pipeline.GetSink("json_file")
	schema, records := testRecords()

	if _, err := sink.Write(context.Background(), pipeline.SinkConfig{"filePath": path}, schema, records, pipeline.SyncAppend); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, _ := os.ReadFile(path)
	var rows []map[string]any
	json.Unmarshal(data, &rows)
	if len(rows) != 3 {
		t.Errorf("expected 3 rows after append, got %d", len(rows))
	}
	if rows[0]["name"] != "old" {
		t.Errorf("existing rows should come first: %v", rows[0])
	}
}

func TestJSONFileSinkReplaceOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	os.WriteFile(path, []byte(`[{"name":"old"}]`), 0644)

	sink, _ := pipeline.GetSink("json_file")
	schema, records := testRecords()

	sink.Write(context.Background(), pipeline.SinkConfig{"filePath": path}, schema, records, pipeline.SyncReplace)

	data, _ := os.ReadFile(path)
	var rows []map[string]any
	json.Unmarshal(data, &rows)
	if len(rows) != 2 {
		t.Errorf("replace should drop existing rows, got %d", len(rows))
	}
}

// ── csv_file ───────────────────────────────────────────────

func TestCSVFileSinkWritesHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	sink, err := pipeline.GetSink("csv_file")
	if err != nil {
		t.Fatalf("sink not registered: %v", err)
	}
	schema, records := testRecords()

	n, err := sink.Write(context.Background(), pipeline.SinkConfig{"filePath": path}, schema, records, pipeline.SyncReplace)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != 2 {
		t.Errorf("written: %d", n)
	}

	data, _ := os.ReadFile(path)
	want := "name,age\nalice,25\nbob,30\n"
	if string(data) != want {
		t.Errorf("output:\n%s\nwant:\n%s", data, want)
	}
}

func TestCSVFileSinkAppendSkipsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	sink, _ := pipeline.GetSink("csv_file")
	schema, records := testRecords()

	sink.Write(context.Background(), pipeline.SinkConfig{"filePath": path}, schema, records[:1], pipeline.SyncReplace)
	sink.Write(context.Background(), pipeline.SinkConfig{"filePath": path}, schema, records[1:], pipeline.SyncAppend)

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines (1 header, 2 rows), got %d:\n%s", len(lines), data)
	}
	if lines[0] != "name,age" {
		t.Errorf("header: %q", lines[0])
	}
}

func TestCSVFileSinkRequiresSchema(t *testing.T) {
	sink, _ := pipeline.GetSink("csv_file")
	path := filepath.Join(t.TempDir(), "out.csv")

	if _, err := sink.Write(context.Background(), pipeline.SinkConfig{"filePath": path}, nil, nil, pipeline.SyncReplace); err == nil {
		t.Error("expected error for nil schema")
	}
}
