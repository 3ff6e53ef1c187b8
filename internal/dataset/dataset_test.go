package dataset

import (
	"strings"
	"testing"
)

func TestLoadInfersDTypes(t *testing.T) {
	csv := "name,age,score,joined\n" +
		"alice,30,1.5,2023-01-01\n" +
		"bob,41,2.25,2023-02-01\n" +
		"carol,29,3,2023-03-01\n"

	tbl, err := Load(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("failed to load csv: %v", err)
	}

	if tbl.RowCount() != 3 {
		t.Errorf("expected 3 rows, got %d", tbl.RowCount())
	}

	want := map[string]DType{
		"name":   DTypeString,
		"age":    DTypeInt,
		"score":  DTypeFloat,
		"joined": DTypeString,
	}
	for name, dtype := range want {
		col, ok := tbl.Column(name)
		if !ok {
			t.Fatalf("column %s not found", name)
		}
		if col.DType != dtype {
			t.Errorf("column %s: expected dtype %s, got %s", name, dtype, col.DType)
		}
	}
}

func TestLoadEmptyCellsAreNull(t *testing.T) {
	csv := "a,b\n1,x\n,y\n3,\n"

	tbl, err := Load(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("failed to load csv: %v", err)
	}

	a, _ := tbl.Column("a")
	if a.NonNullCount() != 2 {
		t.Errorf("expected 2 non-null cells in a, got %d", a.NonNullCount())
	}
	if a.DType != DTypeInt {
		t.Errorf("expected int64 dtype for a despite nulls, got %s", a.DType)
	}

	b, _ := tbl.Column("b")
	if b.NonNullCount() != 2 {
		t.Errorf("expected 2 non-null cells in b, got %d", b.NonNullCount())
	}
}

func TestLoadEmptyInput(t *testing.T) {
	if _, err := Load(strings.NewReader("")); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestColInference(t *testing.T) {
	tests := []struct {
		name   string
		values []any
		want   DType
	}{
		{"all ints", []any{1, 2, 3}, DTypeInt},
		{"mixed numeric", []any{1, 2.5}, DTypeFloat},
		{"strings", []any{"a", "b"}, DTypeString},
		{"ints with nulls", []any{1, nil, 3}, DTypeInt},
		{"all nulls", []any{nil, nil}, DTypeString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col := Col("c", tt.values...)
			if col.DType != tt.want {
				t.Errorf("expected dtype %s, got %s", tt.want, col.DType)
			}
			if len(col.Cells) != len(tt.values) {
				t.Errorf("expected %d cells, got %d", len(tt.values), len(col.Cells))
			}
		})
	}
}

func TestDistinctFirstOccurrenceOrder(t *testing.T) {
	col := Col("label", "legit", "fraud", "legit", "legit")
	got := col.Distinct()

	if len(got) != 2 {
		t.Fatalf("expected 2 distinct values, got %d", len(got))
	}
	if got[0] != "legit" || got[1] != "fraud" {
		t.Errorf("expected [legit fraud], got %v", got)
	}
}

func TestValueCounts(t *testing.T) {
	col := Col("label", "legit", "fraud", "legit", nil)
	counts := col.ValueCounts()

	if counts["legit"] != 2 {
		t.Errorf("expected legit count 2, got %d", counts["legit"])
	}
	if counts["fraud"] != 1 {
		t.Errorf("expected fraud count 1, got %d", counts["fraud"])
	}
	if len(counts) != 2 {
		t.Errorf("expected 2 entries, got %d", len(counts))
	}
}

func TestNewRejectsRaggedColumns(t *testing.T) {
	_, err := New(Col("a", 1, 2), Col("b", 1))
	if err == nil {
		t.Error("expected error for unequal column lengths")
	}
}

func TestNewRejectsDuplicateNames(t *testing.T) {
	_, err := New(Col("a", 1), Col("a", 2))
	if err == nil {
		t.Error("expected error for duplicate column name")
	}
}

func TestRowOmitsNulls(t *testing.T) {
	tbl, err := New(Col("a", 1, nil), Col("b", "x", "y"))
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	row := tbl.Row(1)
	if _, ok := row["a"]; ok {
		t.Error("expected null cell to be omitted from row")
	}
	if row["b"] != "y" {
		t.Errorf("expected b=y, got %q", row["b"])
	}
}
