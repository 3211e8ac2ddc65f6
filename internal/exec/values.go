package exec

import (
	"slices"

	"github.com/tuannm99/heapdb/internal/record"
)

// Values yields a fixed list of rows.
type Values struct {
	schema record.Schema
	rows   []*record.Row
	open   bool
	pos    int
}

func NewValues(schema record.Schema, rows ...*record.Row) (*Values, error) {
	for _, r := range rows {
		if err := schema.Validate(r.Values); err != nil {
			return nil, err
		}
	}
	return &Values{schema: schema, rows: slices.Clone(rows)}, nil
}

func (v *Values) Open() error {
	if !v.open {
		v.open = true
		v.pos = 0
	}
	return nil
}

func (v *Values) HasNext() (bool, error) {
	if !v.open {
		return false, ErrNotOpen
	}
	return v.pos < len(v.rows), nil
}

func (v *Values) Next() (*record.Row, error) {
	ok, err := v.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEndOfSequence
	}
	row := v.rows[v.pos]
	v.pos++
	return row, nil
}

func (v *Values) Rewind() error {
	v.pos = 0
	return nil
}

func (v *Values) Close() {
	v.open = false
}

func (v *Values) Schema() record.Schema { return v.schema }
