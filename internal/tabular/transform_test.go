package tabular_test

import (
	"testing"

	"datakit/internal/tabular"
)

func rec(data map[string]any) tabular.Record {
	return tabular.Record{Data: data}
}

func TestChainStopsOnDrop(t *testing.T) {
	drop := tabular.TransformerFunc(func(r tabular.Record) (tabular.Record, bool) {
		return r, false
	})
	touched := false
	after := tabular.TransformerFunc(func(r tabular.Record) (tabular.Record, bool) {
		touched = true
		return r, true
	})

	_, keep := tabular.Chain(rec(map[string]any{"a": 1}), []tabular.Transformer{drop, after})
	if keep {
		t.Error("expected record to be dropped")
	}
	if touched {
		t.Error("transformer after a drop should not run")
	}
}

func TestMapTransformBestEffort(t *testing.T) {
	// increment on a non-numeric value leaves it unchanged instead of failing
	mt := &tabular.MapTransform{Field: "age", Op: "increment", Delta: 1}
	r, keep := mt.Transform(rec(map[string]any{"age": "unknown"}))
	if !keep {
		t.Fatal("map transform never drops")
	}
	if r.Data["age"] != "unknown" {
		t.Errorf("value should be unchanged, got %v", r.Data["age"])
	}

	r, _ = mt.Transform(rec(map[string]any{"age": "30"}))
	if r.Data["age"] != 31 {
		t.Errorf("expected 31, got %v", r.Data["age"])
	}
}

func TestFilterTransform(t *testing.T) {
	tests := []struct {
		name string
		f    tabular.FilterTransform
		data map[string]any
		keep bool
	}{
		{"eq match", tabular.FilterTransform{Field: "city", Op: "eq", Value: "NY"}, map[string]any{"city": "NY"}, true},
		{"eq miss", tabular.FilterTransform{Field: "city", Op: "eq", Value: "NY"}, map[string]any{"city": "LA"}, false},
		{"gt numeric string", tabular.FilterTransform{Field: "age", Op: "gt", Value: float64(18)}, map[string]any{"age": "21"}, true},
		{"lt", tabular.FilterTransform{Field: "age", Op: "lt", Value: float64(18)}, map[string]any{"age": 21}, false},
		{"contains", tabular.FilterTransform{Field: "name", Op: "contains", Value: "li"}, map[string]any{"name": "Alice"}, true},
		{"missing field drops", tabular.FilterTransform{Field: "nope", Op: "eq", Value: "x"}, map[string]any{"a": 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, keep := tt.f.Transform(rec(tt.data))
			if keep != tt.keep {
				t.Errorf("keep = %v, want %v", keep, tt.keep)
			}
		})
	}
}

func TestRenameAndSelect(t *testing.T) {
	r := rec(map[string]any{"old": 1, "keep": 2, "drop": 3})

	rn := &tabular.RenameTransform{Mapping: map[string]string{"old": "new"}}
	r, _ = rn.Transform(r)
	if _, ok := r.Data["old"]; ok {
		t.Error("old field still present after rename")
	}
	if r.Data["new"] != 1 {
		t.Errorf("renamed value lost: %v", r.Data["new"])
	}

	sel := &tabular.SelectTransform{Fields: []string{"new", "keep"}}
	r, _ = sel.Transform(r)
	if len(r.Data) != 2 {
		t.Errorf("expected 2 fields after select, got %v", r.Data)
	}
}

func TestDedupeTransform(t *testing.T) {
	d := tabular.NewDedupeTransform("id")
	_, keep1 := d.Transform(rec(map[string]any{"id": "a"}))
	_, keep2 := d.Transform(rec(map[string]any{"id": "a"}))
	_, keep3 := d.Transform(rec(map[string]any{"id": "b"}))

	if !keep1 || keep2 || !keep3 {
		t.Errorf("dedupe: got %v %v %v, want true false true", keep1, keep2, keep3)
	}
}

func TestLimitTransform(t *testing.T) {
	l := tabular.NewLimitTransform(2)
	kept := 0
	for i := 0; i < 5; i++ {
		if _, keep := l.Transform(rec(map[string]any{"i": i})); keep {
			kept++
		}
	}
	if kept != 2 {
		t.Errorf("expected 2 kept, got %d", kept)
	}
}

func TestTypeCastTransform(t *testing.T) {
	tc := &tabular.TypeCastTransform{Field: "v", CastType: "number"}
	r, _ := tc.Transform(rec(map[string]any{"v": "3.5"}))
	if r.Data["v"] != 3.5 {
		t.Errorf("number cast: got %v (%T)", r.Data["v"], r.Data["v"])
	}

	tc = &tabular.TypeCastTransform{Field: "v", CastType: "bool"}
	r, _ = tc.Transform(rec(map[string]any{"v": "yes"}))
	if r.Data["v"] != true {
		t.Errorf("bool cast: got %v", r.Data["v"])
	}
}

func TestComputeTransform(t *testing.T) {
	ct := &tabular.ComputeTransform{Columns: []tabular.ComputeColumn{
		{Name: "label", Expression: "{name} ({city})"},
		{Name: "age_copy", Expression: "{age}"},
	}}

	r, keep := ct.Transform(rec(map[string]any{"name": "Alice", "city": "NY", "age": 30}))
	if !keep {
		t.Fatal("compute never drops")
	}
	if r.Data["label"] != "Alice (NY)" {
		t.Errorf("label = %v", r.Data["label"])
	}
	// a result that parses numerically comes back as a number
	if r.Data["age_copy"] != float64(30) {
		t.Errorf("age_copy = %v (%T)", r.Data["age_copy"], r.Data["age_copy"])
	}
}

func TestApplyBatchSort(t *testing.T) {
	records := []tabular.Record{
		rec(map[string]any{"n": 3}),
		rec(map[string]any{"n": 1}),
		rec(map[string]any{"n": 2}),
	}
	ts := []tabular.Transformer{&tabular.SortTransform{Field: "n", Direction: "asc"}}

	sorted := tabular.ApplyBatchSort(records, ts)
	if sorted[0].Data["n"] != 1 || sorted[2].Data["n"] != 3 {
		t.Errorf("ascending sort wrong: %v %v %v",
			sorted[0].Data["n"], sorted[1].Data["n"], sorted[2].Data["n"])
	}
	// input slice untouched
	if records[0].Data["n"] != 3 {
		t.Error("batch sort mutated the input slice order")
	}

	ts = []tabular.Transformer{&tabular.SortTransform{Field: "n", Direction: "desc"}}
	sorted = tabular.ApplyBatchSort(records, ts)
	if sorted[0].Data["n"] != 3 {
		t.Errorf("descending sort wrong: %v", sorted[0].Data["n"])
	}
}

func TestBuildTransformers(t *testing.T) {
	configs := []tabular.TransformConfig{
		{Type: "filter", Config: map[string]any{"field": "age", "op": "gt", "value": float64(18)}},
		{Type: "map", Config: map[string]any{"field": "name", "op": "upper"}},
		{Type: "limit", Config: map[string]any{"count": float64(10)}},
		{Type: "bogus", Config: map[string]any{}},
		{Type: "map", Config: map[string]any{}}, // incomplete, skipped
	}

	ts := tabular.BuildTransformers(configs, "id")
	// filter + map + limit + dedupe (bogus and incomplete skipped)
	if len(ts) != 4 {
		t.Fatalf("expected 4 transformers, got %d", len(ts))
	}
	if _, ok := ts[len(ts)-1].(*tabular.DedupeTransform); !ok {
		t.Error("dedupe should be appended last")
	}
}
