package handler_test

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"datakit/internal/handler"
	"datakit/internal/tabular"
)

// ─────────────────────────────────────────────────────────────
// DataHandler tests — the load/save/transform façade
// ─────────────────────────────────────────────────────────────

func newTestHandler() (*handler.DataHandler, *handler.MockReporter) {
	rep := &handler.MockReporter{}
	return handler.New(rep), rep
}

func lastLine(t *testing.T, rep *handler.MockReporter) string {
	t.Helper()
	if len(rep.Lines) == 0 {
		t.Fatal("expected at least one reported line")
	}
	return rep.Lines[len(rep.Lines)-1]
}

// ── JSON ───────────────────────────────────────────────────

func TestJSONRoundTrip(t *testing.T) {
	h, rep := newTestHandler()
	path := filepath.Join(t.TempDir(), "data.json")

	original := map[string]any{"name": "John Doe", "age": float64(30), "city": "New York"}
	h.SaveJSON(path, original)
	if !strings.Contains(lastLine(t, rep), "successfully saved JSON") {
		t.Errorf("unexpected save report: %s", lastLine(t, rep))
	}

	loaded := h.LoadJSON(path)
	got, ok := loaded.(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", loaded)
	}
	if !reflect.DeepEqual(got, original) {
		t.Errorf("round trip mismatch: got %v, want %v", got, original)
	}
}

func TestSaveJSONUsesFourSpaceIndent(t *testing.T) {
	h, _ := newTestHandler()
	path := filepath.Join(t.TempDir(), "data.json")

	h.SaveJSON(path, map[string]any{"key": "value"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if !strings.Contains(string(data), "\n    \"key\"") {
		t.Errorf("expected 4-space indentation, got:\n%s", data)
	}
}

func TestLoadJSONMissingFile(t *testing.T) {
	h, rep := newTestHandler()

	loaded := h.LoadJSON(filepath.Join(t.TempDir(), "nope.json"))

	got, ok := loaded.(map[string]any)
	if !ok || len(got) != 0 {
		t.Errorf("expected empty object, got %v", loaded)
	}
	if !strings.Contains(lastLine(t, rep), "error loading JSON") {
		t.Errorf("expected error report, got: %s", lastLine(t, rep))
	}
}

func TestLoadJSONMalformed(t *testing.T) {
	h, rep := newTestHandler()
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json"), 0644)

	loaded := h.LoadJSON(path)

	got, ok := loaded.(map[string]any)
	if !ok || len(got) != 0 {
		t.Errorf("expected empty object, got %v", loaded)
	}
	if !strings.Contains(lastLine(t, rep), "error loading JSON") {
		t.Errorf("expected error report, got: %s", lastLine(t, rep))
	}
}

func TestLoadJSONArray(t *testing.T) {
	h, _ := newTestHandler()
	path := filepath.Join(t.TempDir(), "arr.json")
	os.WriteFile(path, []byte(`[{"a": 1}, {"a": 2}]`), 0644)

	loaded := h.LoadJSON(path)
	arr, ok := loaded.([]any)
	if !ok {
		t.Fatalf("expected slice, got %T", loaded)
	}
	if len(arr) != 2 {
		t.Errorf("expected 2 elements, got %d", len(arr))
	}
}

// ── CSV ────────────────────────────────────────────────────

func sampleRecordSet() *tabular.RecordSet {
	return &tabular.RecordSet{
		Schema: tabular.TextSchema([]string{"name", "age", "city"}),
		Records: []tabular.Record{
			{Data: map[string]any{"name": "Alice", "age": "25", "city": "New York"}},
			{Data: map[string]any{"name": "Bob", "age": "28", "city": "Boston"}},
		},
	}
}

func TestCSVRoundTripValuesAreText(t *testing.T) {
	h, _ := newTestHandler()
	path := filepath.Join(t.TempDir(), "data.csv")

	h.SaveCSV(path, sampleRecordSet())
	loaded := h.LoadCSV(path)

	if loaded.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", loaded.Len())
	}
	// All loaded values come back as strings, including numeric-looking ones.
	if got := loaded.Records[0].Data["age"]; got != "25" {
		t.Errorf("expected age %q, got %v (%T)", "25", got, got)
	}
	if got := loaded.Records[1].Data["age"]; got != "28" {
		t.Errorf("expected age %q, got %v (%T)", "28", got, got)
	}
}

func TestLoadCSVPreservesColumnOrder(t *testing.T) {
	h, _ := newTestHandler()
	path := filepath.Join(t.TempDir(), "data.csv")
	os.WriteFile(path, []byte("z,a,m\n1,2,3\n"), 0644)

	loaded := h.LoadCSV(path)

	want := []string{"z", "a", "m"}
	if !reflect.DeepEqual(loaded.Schema.FieldNames(), want) {
		t.Errorf("column order: got %v, want %v", loaded.Schema.FieldNames(), want)
	}
}

func TestLoadCSVMissingFile(t *testing.T) {
	h, rep := newTestHandler()

	loaded := h.LoadCSV(filepath.Join(t.TempDir(), "nope.csv"))

	if loaded.Len() != 0 {
		t.Errorf("expected empty record set, got %d records", loaded.Len())
	}
	if !strings.Contains(lastLine(t, rep), "error loading CSV") {
		t.Errorf("expected error report, got: %s", lastLine(t, rep))
	}
}

func TestSaveCSVEmptyWritesNothing(t *testing.T) {
	h, rep := newTestHandler()
	path := filepath.Join(t.TempDir(), "empty.csv")

	h.SaveCSV(path, &tabular.RecordSet{})

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected no file to be written for an empty record set")
	}
	if !strings.Contains(lastLine(t, rep), "no data provided") {
		t.Errorf("expected no-data report, got: %s", lastLine(t, rep))
	}
}

func TestSaveCSVHeaderAndRows(t *testing.T) {
	h, _ := newTestHandler()
	path := filepath.Join(t.TempDir(), "data.csv")

	h.SaveCSV(path, sampleRecordSet())

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "name,age,city" {
		t.Errorf("header: got %q", lines[0])
	}
	if len(lines) != 3 {
		t.Errorf("expected header + 2 rows, got %d lines", len(lines))
	}
	if lines[1] != "Alice,25,New York" {
		t.Errorf("first row: got %q", lines[1])
	}
}

// ── Transform ──────────────────────────────────────────────

func TestTransformDataSelective(t *testing.T) {
	h, _ := newTestHandler()
	rs := &tabular.RecordSet{
		Schema: tabular.TextSchema([]string{"name", "age", "city"}),
		Records: []tabular.Record{
			{Data: map[string]any{"name": "alice", "age": "25", "city": "Boston"}},
		},
	}

	out, err := h.TransformData(rs, tabular.FieldMap{
		"name": tabular.Uppercase,
		"age":  tabular.Increment(1),
	})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}

	rec := out.Records[0].Data
	if rec["name"] != "ALICE" {
		t.Errorf("name: got %v", rec["name"])
	}
	if rec["age"] != 26 {
		t.Errorf("age: got %v (%T)", rec["age"], rec["age"])
	}
	// Unmapped fields pass through untouched.
	if rec["city"] != "Boston" {
		t.Errorf("city: got %v", rec["city"])
	}
}

func TestTransformDataPreservesLengthAndOrder(t *testing.T) {
	h, _ := newTestHandler()
	rs := sampleRecordSet()

	out, err := h.TransformData(rs, tabular.FieldMap{"name": tabular.Uppercase})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}

	if out.Len() != rs.Len() {
		t.Fatalf("length changed: %d -> %d", rs.Len(), out.Len())
	}
	if out.Records[0].Data["name"] != "ALICE" || out.Records[1].Data["name"] != "BOB" {
		t.Errorf("order not preserved: %v, %v",
			out.Records[0].Data["name"], out.Records[1].Data["name"])
	}
}

func TestTransformDataDoesNotMutateInput(t *testing.T) {
	h, _ := newTestHandler()
	rs := sampleRecordSet()

	if _, err := h.TransformData(rs, tabular.FieldMap{"name": tabular.Uppercase}); err != nil {
		t.Fatalf("transform: %v", err)
	}

	if rs.Records[0].Data["name"] != "Alice" {
		t.Errorf("input mutated: %v", rs.Records[0].Data["name"])
	}
}

func TestTransformDataEmptyMapIsIdentity(t *testing.T) {
	h, _ := newTestHandler()
	rs := sampleRecordSet()

	out, err := h.TransformData(rs, tabular.FieldMap{})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if !reflect.DeepEqual(out.Records[0].Data, rs.Records[0].Data) {
		t.Errorf("identity transform changed data: %v", out.Records[0].Data)
	}
}

func TestTransformDataSurfacesErrors(t *testing.T) {
	h, _ := newTestHandler()
	rs := &tabular.RecordSet{
		Schema: tabular.TextSchema([]string{"age"}),
		Records: []tabular.Record{
			{Data: map[string]any{"age": "not-a-number"}},
		},
	}

	_, err := h.TransformData(rs, tabular.FieldMap{"age": tabular.Increment(1)})
	if err == nil {
		t.Fatal("expected error for non-numeric increment")
	}
	if !strings.Contains(err.Error(), "age") {
		t.Errorf("error should name the field: %v", err)
	}
}

// ── End to end ─────────────────────────────────────────────

func TestLoadTransformSaveScenario(t *testing.T) {
	h, _ := newTestHandler()
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	out := filepath.Join(dir, "out.csv")

	os.WriteFile(in, []byte("name,age\nalice,25\nbob,30\n"), 0644)

	loaded := h.LoadCSV(in)
	transformed, err := h.TransformData(loaded, tabular.FieldMap{
		"name": tabular.Uppercase,
		"age":  tabular.Increment(1),
	})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	h.SaveCSV(out, transformed)

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	want := "name,age\nALICE,26\nBOB,31\n"
	if string(data) != want {
		t.Errorf("output:\n%s\nwant:\n%s", data, want)
	}
}
