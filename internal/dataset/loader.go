package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Load reads CSV data into a Table. The first record is the header row.
// Empty cells are nulls. Column dtypes are inferred from the non-null
// cells: int64 if every cell parses as an integer, float64 if every
// cell parses as a number, object otherwise.
func Load(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty input: no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make([]Column, len(header))
	for i, name := range header {
		cols[i] = Column{Name: name}
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		for i := range cols {
			if record[i] == "" {
				cols[i].Cells = append(cols[i].Cells, Cell{Null: true})
			} else {
				cols[i].Cells = append(cols[i].Cells, Cell{Value: record[i]})
			}
		}
	}

	for i := range cols {
		cols[i].DType = inferDType(&cols[i])
	}

	return New(cols...)
}

// LoadFile reads a CSV file into a Table.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func inferDType(col *Column) DType {
	sawValue := false
	allInt, allNum := true, true
	for _, cell := range col.Cells {
		if cell.Null {
			continue
		}
		sawValue = true
		if _, err := strconv.ParseInt(cell.Value, 10, 64); err != nil {
			allInt = false
		}
		if _, err := strconv.ParseFloat(cell.Value, 64); err != nil {
			allNum = false
		}
	}
	if !sawValue {
		return DTypeString
	}
	switch {
	case allInt:
		return DTypeInt
	case allNum:
		return DTypeFloat
	default:
		return DTypeString
	}
}
