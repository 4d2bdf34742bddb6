package tabular

import (
	"fmt"
	"strconv"
	"strings"
)

// ── FieldMap ───────────────────────────────────────────────
// A FieldMap maps field names to value functions, applied independently
// per field. Fields absent from the map pass through unchanged; fields
// absent from a record are never invented.

// ValueFunc rewrites a single field value.
// Unlike the swallowed I/O errors in the handler façade, an error from
// a ValueFunc surfaces immediately to the caller of Apply.
type ValueFunc func(any) (any, error)

// FieldMap maps a field name to the function applied to its values.
type FieldMap map[string]ValueFunc

// Apply produces a new record set with the same length and order as rs.
// Input records are not mutated.
func (m FieldMap) Apply(rs *RecordSet) (*RecordSet, error) {
	if rs == nil {
		return &RecordSet{}, nil
	}

	out := &RecordSet{
		Schema:  rs.Schema,
		Records: make([]Record, len(rs.Records)),
	}
	for i, rec := range rs.Records {
		transformed := rec.Clone()
		for field, fn := range m {
			v, ok := transformed.Data[field]
			if !ok {
				continue
			}
			nv, err := fn(v)
			if err != nil {
				return nil, fmt.Errorf("transform field %q in record %d: %w", field, i, err)
			}
			transformed.Data[field] = nv
		}
		out.Records[i] = transformed
	}
	return out, nil
}

// ── Built-in value functions ───────────────────────────────

// Uppercase converts the value's text form to upper case.
func Uppercase(v any) (any, error) {
	return strings.ToUpper(asString(v)), nil
}

// Lowercase converts the value's text form to lower case.
func Lowercase(v any) (any, error) {
	return strings.ToLower(asString(v)), nil
}

// TrimSpace trims surrounding whitespace from the value's text form.
func TrimSpace(v any) (any, error) {
	return strings.TrimSpace(asString(v)), nil
}

// Reverse reverses the value's text form rune-by-rune.
func Reverse(v any) (any, error) {
	runes := []rune(asString(v))
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes), nil
}

// Increment returns a ValueFunc that parses the value as an integer and
// adds delta. Non-numeric input is an error, surfaced to the caller.
func Increment(delta int) ValueFunc {
	return func(v any) (any, error) {
		n, err := asInt(v)
		if err != nil {
			return nil, err
		}
		return n + delta, nil
	}
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("not an integer: %v (%T)", v, v)
	}
}
