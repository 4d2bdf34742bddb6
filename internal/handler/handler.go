package handler

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"

	"datakit/internal/tabular"
)

// ─────────────────────────────────────────────────────────────
// DataHandler — flat-file load/save/transform façade
// ─────────────────────────────────────────────────────────────
//
// Every I/O operation swallows its error: failures are converted into a
// status line on the Reporter plus a benign empty value, so callers
// cannot distinguish "empty file" from "load failed" by the return value
// alone. That ambiguity is a documented property of this façade, kept
// for compatibility with callers that never check errors. Code that
// needs explicit errors should use the pipeline sources/sinks instead.
//
// TransformData is the exception: a failing transformation function
// surfaces as a returned error rather than being swallowed.

// DataHandler performs one-shot, synchronous file operations.
// The zero value is not usable; construct with New.
type DataHandler struct {
	reporter Reporter
}

// New creates a DataHandler reporting to r.
// A nil r defaults to the standard log reporter.
func New(r Reporter) *DataHandler {
	if r == nil {
		r = &LogReporter{}
	}
	return &DataHandler{reporter: r}
}

// LoadJSON parses the full contents of path as JSON and returns the
// parsed value. On any failure it returns an empty object and reports
// the failure; no error is propagated.
func (h *DataHandler) LoadJSON(path string) any {
	data, err := os.ReadFile(path)
	if err != nil {
		h.reporter.Reportf("error loading JSON file: %v", err)
		return map[string]any{}
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		h.reporter.Reportf("error loading JSON file: %v", err)
		return map[string]any{}
	}

	h.reporter.Reportf("successfully loaded JSON data from %s", path)
	return v
}

// SaveJSON serializes v with 4-space indentation and writes it to path,
// overwriting any existing file. Failures are reported, not returned.
func (h *DataHandler) SaveJSON(path string, v any) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		h.reporter.Reportf("error saving JSON file: %v", err)
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		h.reporter.Reportf("error saving JSON file: %v", err)
		return
	}
	h.reporter.Reportf("successfully saved JSON data to %s", path)
}

// LoadCSV parses path as CSV with the first row as header and returns
// one record per subsequent row, values as text. Column order is
// preserved in the record set's schema. On any failure it returns an
// empty record set and reports the failure.
func (h *DataHandler) LoadCSV(path string) *tabular.RecordSet {
	f, err := os.Open(path)
	if err != nil {
		h.reporter.Reportf("error loading CSV file: %v", err)
		return &tabular.RecordSet{}
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		h.reporter.Reportf("error loading CSV file: %v", err)
		return &tabular.RecordSet{}
	}
	if len(rows) == 0 {
		h.reporter.Reportf("error loading CSV file: %s has no header row", path)
		return &tabular.RecordSet{}
	}

	header := rows[0]
	rs := &tabular.RecordSet{
		Schema:  tabular.TextSchema(header),
		Records: make([]tabular.Record, 0, len(rows)-1),
	}
	for _, row := range rows[1:] {
		data := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(row) {
				data[col] = row[i]
			}
		}
		rs.Records = append(rs.Records, tabular.Record{Data: data})
	}

	h.reporter.Reportf("successfully loaded CSV data from %s", path)
	return rs
}

// SaveCSV writes the record set to path: a header row in schema column
// order, then one row per record. An empty record set performs no write.
// Failures are reported, not returned.
func (h *DataHandler) SaveCSV(path string, rs *tabular.RecordSet) {
	if rs.Len() == 0 {
		h.reporter.Reportf("no data provided to save in CSV file")
		return
	}

	f, err := os.Create(path)
	if err != nil {
		h.reporter.Reportf("error saving CSV file: %v", err)
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	columns := rs.Schema.FieldNames()
	if err := w.Write(columns); err != nil {
		h.reporter.Reportf("error saving CSV file: %v", err)
		return
	}
	for _, rec := range rs.Records {
		row := make([]string, len(columns))
		for i, col := range columns {
			if v, ok := rec.Data[col]; ok && v != nil {
				row[i] = valueText(v)
			}
		}
		if err := w.Write(row); err != nil {
			h.reporter.Reportf("error saving CSV file: %v", err)
			return
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		h.reporter.Reportf("error saving CSV file: %v", err)
		return
	}

	h.reporter.Reportf("successfully saved CSV data to %s", path)
}

// TransformData applies the field map to every record, producing a new
// record set of the same length and order. Input records are not
// mutated. Unlike the I/O operations, a failing transformation function
// returns its error to the caller.
func (h *DataHandler) TransformData(rs *tabular.RecordSet, transformations tabular.FieldMap) (*tabular.RecordSet, error) {
	out, err := transformations.Apply(rs)
	if err != nil {
		return nil, err
	}
	h.reporter.Reportf("data transformation complete")
	return out, nil
}

// valueText renders a record value for CSV output. Integral floats print
// without a trailing ".0" so numbers loaded from JSON stay readable.
func valueText(v any) string {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprint(v)
}
