package tabular_test

import (
	"strings"
	"testing"

	"datakit/internal/tabular"
)

func TestFieldMapApplyNil(t *testing.T) {
	out, err := tabular.FieldMap{"x": tabular.Uppercase}.Apply(nil)
	if err != nil {
		t.Fatalf("apply on nil: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected empty record set, got %d records", out.Len())
	}
}

func TestFieldMapSkipsAbsentFields(t *testing.T) {
	rs := &tabular.RecordSet{
		Records: []tabular.Record{
			{Data: map[string]any{"a": "x"}},
		},
	}

	out, err := tabular.FieldMap{"missing": tabular.Uppercase}.Apply(rs)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, ok := out.Records[0].Data["missing"]; ok {
		t.Error("field invented for record that never had it")
	}
}

func TestFieldMapErrorNamesRecord(t *testing.T) {
	rs := &tabular.RecordSet{
		Records: []tabular.Record{
			{Data: map[string]any{"n": "1"}},
			{Data: map[string]any{"n": "oops"}},
		},
	}

	_, err := tabular.FieldMap{"n": tabular.Increment(5)}.Apply(rs)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "record 1") {
		t.Errorf("error should point at the failing record: %v", err)
	}
}

func TestBuiltinValueFuncs(t *testing.T) {
	tests := []struct {
		name string
		fn   tabular.ValueFunc
		in   any
		want any
	}{
		{"upper", tabular.Uppercase, "hello", "HELLO"},
		{"lower", tabular.Lowercase, "HeLLo", "hello"},
		{"trim", tabular.TrimSpace, "  hi  ", "hi"},
		{"reverse", tabular.Reverse, "abc", "cba"},
		{"reverse runes", tabular.Reverse, "héllo", "olléh"},
		{"increment int", tabular.Increment(2), 40, 42},
		{"increment string", tabular.Increment(1), "25", 26},
		{"increment float", tabular.Increment(0), float64(7), 7},
		{"upper non-string", tabular.Uppercase, 12, "12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestIncrementRejectsGarbage(t *testing.T) {
	if _, err := tabular.Increment(1)("abc"); err == nil {
		t.Error("expected error for non-numeric string")
	}
	if _, err := tabular.Increment(1)([]string{"no"}); err == nil {
		t.Error("expected error for non-scalar value")
	}
}
