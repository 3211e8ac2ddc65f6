package record

import (
	"fmt"
	"strings"
)

type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Schema is the ordered, fixed-width layout of a row.
type Schema struct {
	Cols []Column `json:"cols"`
}

// NewSchema pairs types with names; names may be shorter than types, in
// which case the remaining columns are anonymous.
func NewSchema(types []ColumnType, names []string) Schema {
	cols := make([]Column, len(types))
	for i, t := range types {
		cols[i].Type = t
		if i < len(names) {
			cols[i].Name = names[i]
		}
	}
	return Schema{Cols: cols}
}

func (s Schema) NumCols() int { return len(s.Cols) }

// RowSize is the encoded width of one row in bytes.
func (s Schema) RowSize() int {
	n := 0
	for _, c := range s.Cols {
		n += c.Type.Len()
	}
	return n
}

// FieldIndex returns the index of the first column called name.
func (s Schema) FieldIndex(name string) (int, error) {
	for i, c := range s.Cols {
		if c.Name != "" && c.Name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrNoSuchField, name)
}

// Equal compares column types only; names are ignored.
func (s Schema) Equal(o Schema) bool {
	if len(s.Cols) != len(o.Cols) {
		return false
	}
	for i := range s.Cols {
		if s.Cols[i].Type != o.Cols[i].Type {
			return false
		}
	}
	return true
}

// Merge concatenates a and b.
func Merge(a, b Schema) Schema {
	cols := make([]Column, 0, len(a.Cols)+len(b.Cols))
	cols = append(cols, a.Cols...)
	cols = append(cols, b.Cols...)
	return Schema{Cols: cols}
}

// Validate checks arity and per-column types of values.
func (s Schema) Validate(values []Value) error {
	if len(values) != len(s.Cols) {
		return fmt.Errorf("%w: got %d values for %d columns", ErrSchemaMismatch, len(values), len(s.Cols))
	}
	for i, v := range values {
		if v.Type != s.Cols[i].Type {
			return fmt.Errorf("%w: column %d is %s, value is %s", ErrSchemaMismatch, i, s.Cols[i].Type, v.Type)
		}
	}
	return nil
}

func (s Schema) String() string {
	parts := make([]string, len(s.Cols))
	for i, c := range s.Cols {
		parts[i] = fmt.Sprintf("%s(%s)", c.Name, c.Type)
	}
	return strings.Join(parts, ", ")
}
