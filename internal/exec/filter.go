package exec

import (
	"fmt"

	"github.com/tuannm99/heapdb/internal/record"
)

// Predicate compares one field of a row against a constant.
type Predicate struct {
	Field   int
	Op      record.Op
	Operand record.Value
}

func NewPredicate(field int, op record.Op, operand record.Value) Predicate {
	return Predicate{Field: field, Op: op, Operand: operand}
}

// Matches is false for rows without the field.
func (p Predicate) Matches(row *record.Row) bool {
	if p.Field < 0 || p.Field >= len(row.Values) {
		return false
	}
	return row.Field(p.Field).Compare(p.Op, p.Operand)
}

func (p Predicate) String() string {
	return fmt.Sprintf("f%d %s %s", p.Field, p.Op, p.Operand)
}

// Filter passes through the child rows that match its predicate.
type Filter struct {
	la    lookahead
	pred  Predicate
	child Operator
}

func NewFilter(pred Predicate, child Operator) (*Filter, error) {
	if child == nil {
		return nil, fmt.Errorf("exec: filter needs a child operator")
	}
	if pred.Field < 0 || pred.Field >= child.Schema().NumCols() {
		return nil, fmt.Errorf("%w: field %d", record.ErrNoSuchField, pred.Field)
	}
	f := &Filter{pred: pred, child: child}
	f.la.readNext = f.readNext
	return f, nil
}

func (f *Filter) Predicate() Predicate { return f.pred }

func (f *Filter) Open() error {
	if f.la.open {
		return nil
	}
	if err := f.child.Open(); err != nil {
		return err
	}
	f.la.markOpened()
	return nil
}

func (f *Filter) readNext() (*record.Row, error) {
	for {
		row, err := fetch(f.child)
		if err != nil || row == nil {
			return nil, err
		}
		if f.pred.Matches(row) {
			return row, nil
		}
	}
}

func (f *Filter) HasNext() (bool, error)     { return f.la.hasNext() }
func (f *Filter) Next() (*record.Row, error) { return f.la.nextRow() }

func (f *Filter) Rewind() error {
	if err := f.child.Rewind(); err != nil {
		return err
	}
	f.la.markOpened()
	return nil
}

func (f *Filter) Close() {
	f.child.Close()
	f.la.close()
}

func (f *Filter) Schema() record.Schema { return f.child.Schema() }
