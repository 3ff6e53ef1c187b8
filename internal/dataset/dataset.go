// Package dataset provides the in-memory tabular data model the schema
// profiler works on: named columns with an inferred storage dtype and
// nullable cells.
package dataset

import (
	"fmt"
	"strconv"
)

// DType is the native storage type of a column. The names follow the
// convention of the tabular tooling the training data comes from.
type DType string

const (
	DTypeString DType = "object"
	DTypeInt    DType = "int64"
	DTypeFloat  DType = "float64"
)

// Numeric reports whether the dtype is int64 or float64.
func (d DType) Numeric() bool {
	return d == DTypeInt || d == DTypeFloat
}

// Cell is one nullable value, stored in canonical string form.
type Cell struct {
	Null  bool
	Value string
}

// Column is a named, typed column of cells.
type Column struct {
	Name  string
	DType DType
	Cells []Cell
}

// NonNullCount returns the number of non-null cells.
func (c *Column) NonNullCount() int {
	n := 0
	for _, cell := range c.Cells {
		if !cell.Null {
			n++
		}
	}
	return n
}

// Distinct returns the distinct non-null values in first-occurrence order.
func (c *Column) Distinct() []string {
	seen := make(map[string]struct{}, len(c.Cells))
	var out []string
	for _, cell := range c.Cells {
		if cell.Null {
			continue
		}
		if _, ok := seen[cell.Value]; ok {
			continue
		}
		seen[cell.Value] = struct{}{}
		out = append(out, cell.Value)
	}
	return out
}

// ValueCounts returns the occurrence count of each non-null value.
func (c *Column) ValueCounts() map[string]int {
	counts := make(map[string]int)
	for _, cell := range c.Cells {
		if !cell.Null {
			counts[cell.Value]++
		}
	}
	return counts
}

// Table is an immutable set of equal-length columns.
type Table struct {
	cols   []Column
	byName map[string]int
	rows   int
}

// New builds a table from columns, which must all have the same length.
func New(cols ...Column) (*Table, error) {
	t := &Table{byName: make(map[string]int, len(cols))}
	for i, col := range cols {
		if i == 0 {
			t.rows = len(col.Cells)
		} else if len(col.Cells) != t.rows {
			return nil, fmt.Errorf("column %s has %d rows, want %d", col.Name, len(col.Cells), t.rows)
		}
		if _, dup := t.byName[col.Name]; dup {
			return nil, fmt.Errorf("duplicate column %s", col.Name)
		}
		t.byName[col.Name] = i
		t.cols = append(t.cols, col)
	}
	return t, nil
}

// Col builds a column from Go values, inferring the dtype: all-int
// values give int64, any float gives float64, anything else gives
// object. A nil value is a null cell.
func Col(name string, values ...any) Column {
	col := Column{Name: name, DType: DTypeString}
	allInt, allNum := true, true
	sawValue := false
	for _, v := range values {
		if v == nil {
			col.Cells = append(col.Cells, Cell{Null: true})
			continue
		}
		sawValue = true
		switch x := v.(type) {
		case int:
			col.Cells = append(col.Cells, Cell{Value: strconv.Itoa(x)})
		case int64:
			col.Cells = append(col.Cells, Cell{Value: strconv.FormatInt(x, 10)})
		case float64:
			allInt = false
			col.Cells = append(col.Cells, Cell{Value: strconv.FormatFloat(x, 'g', -1, 64)})
		case string:
			allInt, allNum = false, false
			col.Cells = append(col.Cells, Cell{Value: x})
		default:
			allInt, allNum = false, false
			col.Cells = append(col.Cells, Cell{Value: fmt.Sprint(x)})
		}
	}
	if sawValue {
		switch {
		case allInt:
			col.DType = DTypeInt
		case allNum:
			col.DType = DTypeFloat
		}
	}
	return col
}

// RowCount returns the number of rows.
func (t *Table) RowCount() int {
	return t.rows
}

// Columns returns the columns in declaration order.
func (t *Table) Columns() []Column {
	return t.cols
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return &t.cols[i], true
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Row returns one row as a column-name → value map. Null cells are
// omitted.
func (t *Table) Row(i int) map[string]string {
	row := make(map[string]string, len(t.cols))
	for _, col := range t.cols {
		if !col.Cells[i].Null {
			row[col.Name] = col.Cells[i].Value
		}
	}
	return row
}
