package tap

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Column describes one result column.
type Column struct {
	Name     string `json:"name"`
	Datatype string `json:"datatype,omitempty"`
	Unit     string `json:"unit,omitempty"`
	UCD      string `json:"ucd,omitempty"`
}

// Table is a decoded TAP result. Numbers are kept as json.Number so 64-bit
// identifiers survive intact.
type Table struct {
	Metadata []Column `json:"metadata"`
	Data     [][]any  `json:"data"`
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Data) }

// Index returns the position of the named column, or -1.
func (t *Table) Index(name string) int {
	for i, col := range t.Metadata {
		if col.Name == name {
			return i
		}
	}
	return -1
}

// Value returns the raw cell at row for the named column.
func (t *Table) Value(row int, name string) (any, error) {
	col := t.Index(name)
	if col < 0 {
		return nil, fmt.Errorf("%w: no column %q", ErrDecode, name)
	}
	if row < 0 || row >= len(t.Data) {
		return nil, fmt.Errorf("row %d out of range (%d rows)", row, len(t.Data))
	}
	return t.Data[row][col], nil
}

// Text returns the cell as a string. A null cell yields ok == false.
func (t *Table) Text(row int, name string) (s string, ok bool, err error) {
	v, err := t.Value(row, name)
	if err != nil || v == nil {
		return "", false, err
	}
	s, isString := v.(string)
	if !isString {
		return "", false, fmt.Errorf("%w: column %q is %T, not a string", ErrDecode, name, v)
	}
	return s, true, nil
}

// Float returns the cell as a float64. A null cell yields ok == false.
func (t *Table) Float(row int, name string) (f float64, ok bool, err error) {
	v, err := t.Value(row, name)
	if err != nil || v == nil {
		return 0, false, err
	}
	switch n := v.(type) {
	case json.Number:
		f, err = n.Float64()
	case float64:
		f = n
	case string:
		// Some services emit NaN or large values as strings.
		f, err = strconv.ParseFloat(n, 64)
	default:
		err = fmt.Errorf("column %q is %T, not a number", name, v)
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return f, true, nil
}
