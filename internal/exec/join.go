package exec

import (
	"fmt"
	"slices"

	"github.com/tuannm99/heapdb/internal/record"
)

// JoinPredicate compares a field of a left row with a field of a right row.
type JoinPredicate struct {
	Left  int
	Op    record.Op
	Right int
}

func NewJoinPredicate(left int, op record.Op, right int) JoinPredicate {
	return JoinPredicate{Left: left, Op: op, Right: right}
}

// Matches is false when either row lacks its field.
func (p JoinPredicate) Matches(left, right *record.Row) bool {
	if p.Left < 0 || p.Left >= len(left.Values) || p.Right < 0 || p.Right >= len(right.Values) {
		return false
	}
	return left.Field(p.Left).Compare(p.Op, right.Field(p.Right))
}

func (p JoinPredicate) String() string {
	return fmt.Sprintf("l%d %s r%d", p.Left, p.Op, p.Right)
}

// Join is a nested-loop join: for every left row the right child is
// rewound and scanned. Output rows are left fields followed by right fields.
type Join struct {
	la     lookahead
	pred   JoinPredicate
	left   Operator
	right  Operator
	schema record.Schema
	outer  *record.Row
}

func NewJoin(pred JoinPredicate, left, right Operator) (*Join, error) {
	if pred.Left < 0 || pred.Left >= left.Schema().NumCols() {
		return nil, fmt.Errorf("%w: left field %d", record.ErrNoSuchField, pred.Left)
	}
	if pred.Right < 0 || pred.Right >= right.Schema().NumCols() {
		return nil, fmt.Errorf("%w: right field %d", record.ErrNoSuchField, pred.Right)
	}
	j := &Join{
		pred:   pred,
		left:   left,
		right:  right,
		schema: record.Merge(left.Schema(), right.Schema()),
	}
	j.la.readNext = j.readNext
	return j, nil
}

func (j *Join) Predicate() JoinPredicate { return j.pred }

func (j *Join) Open() error {
	if j.la.open {
		return nil
	}
	if err := j.left.Open(); err != nil {
		return err
	}
	if err := j.right.Open(); err != nil {
		j.left.Close()
		return err
	}
	j.outer = nil
	j.la.markOpened()
	return nil
}

func (j *Join) readNext() (*record.Row, error) {
	for {
		if j.outer == nil {
			row, err := fetch(j.left)
			if err != nil || row == nil {
				return nil, err
			}
			if err := j.right.Rewind(); err != nil {
				return nil, err
			}
			j.outer = row
		}
		for {
			inner, err := fetch(j.right)
			if err != nil {
				return nil, err
			}
			if inner == nil {
				break
			}
			if j.pred.Matches(j.outer, inner) {
				return record.NewRow(slices.Concat(j.outer.Values, inner.Values)...), nil
			}
		}
		j.outer = nil
	}
}

func (j *Join) HasNext() (bool, error)     { return j.la.hasNext() }
func (j *Join) Next() (*record.Row, error) { return j.la.nextRow() }

func (j *Join) Rewind() error {
	if err := j.left.Rewind(); err != nil {
		return err
	}
	j.outer = nil
	j.la.markOpened()
	return nil
}

func (j *Join) Close() {
	j.left.Close()
	j.right.Close()
	j.outer = nil
	j.la.close()
}

func (j *Join) Schema() record.Schema { return j.schema }
