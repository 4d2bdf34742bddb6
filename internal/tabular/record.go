package tabular

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format.
// All sources emit Records, all sinks consume Records.
// Inspired by the Airbyte record protocol / Singer record message.

// Field describes a single column in a record set.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"` // "text" | "number" | "boolean" | "datetime"
}

// Schema describes the shape and column order of a record set.
// Go maps carry no key order, so CSV column order lives here.
type Schema struct {
	Fields []Field `json:"fields"`
}

// FieldNames returns an ordered list of field names.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// HasField reports whether the schema contains a field by name.
func (s *Schema) HasField(name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Record is a single row of data flowing through the pipeline.
type Record struct {
	Data map[string]any `json:"data"`
}

// Clone returns a shallow copy of the record with a fresh Data map.
func (r Record) Clone() Record {
	data := make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		data[k] = v
	}
	return Record{Data: data}
}

// RecordSet is an ordered sequence of records sharing one schema.
// Row order is significant and preserved by every operation.
type RecordSet struct {
	Schema  *Schema  `json:"schema"`
	Records []Record `json:"records"`
}

// Len returns the number of records.
func (rs *RecordSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Records)
}

// TextSchema builds a schema where every column is "text",
// in the given order. Used by the CSV path (CSV has no native typing).
func TextSchema(columns []string) *Schema {
	fields := make([]Field, len(columns))
	for i, c := range columns {
		fields[i] = Field{Name: c, Type: "text"}
	}
	return &Schema{Fields: fields}
}
