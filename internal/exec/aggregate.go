package exec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tuannm99/heapdb/internal/record"
)

// NoGrouping as a group field aggregates all rows into one result.
const NoGrouping = -1

var ErrUnsupportedAggregate = errors.New("exec: aggregate not supported for column type")

// AggOp is an aggregate function over a single column.
type AggOp uint8

const (
	AggMin AggOp = iota
	AggMax
	AggSum
	AggAvg
	AggCount
)

func (op AggOp) String() string {
	switch op {
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggSum:
		return "sum"
	case AggAvg:
		return "avg"
	case AggCount:
		return "count"
	default:
		return "?"
	}
}

func ParseAggOp(s string) (AggOp, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "min":
		return AggMin, nil
	case "max":
		return AggMax, nil
	case "sum":
		return AggSum, nil
	case "avg":
		return AggAvg, nil
	case "count":
		return AggCount, nil
	default:
		return 0, fmt.Errorf("exec: unknown aggregate %q", s)
	}
}

// Aggregator folds rows into one result row per group.
type Aggregator interface {
	Merge(row *record.Row)
	// Results returns (group, value) rows, or (value) rows without
	// grouping, in the order groups were first seen.
	Results() []*record.Row
}

// groups keeps first-seen order of group keys.
type groups[T any] struct {
	gfield int
	order  []record.Value
	state  map[record.Value]*T
}

func newGroups[T any](gfield int) groups[T] {
	return groups[T]{gfield: gfield, state: make(map[record.Value]*T)}
}

func (g *groups[T]) get(row *record.Row) *T {
	var key record.Value
	if g.gfield != NoGrouping {
		key = row.Field(g.gfield)
	}
	st, ok := g.state[key]
	if !ok {
		st = new(T)
		g.state[key] = st
		g.order = append(g.order, key)
	}
	return st
}

func (g *groups[T]) results(value func(*T) record.Value) []*record.Row {
	out := make([]*record.Row, 0, len(g.order))
	for _, key := range g.order {
		v := value(g.state[key])
		if g.gfield == NoGrouping {
			out = append(out, record.NewRow(v))
		} else {
			out = append(out, record.NewRow(key, v))
		}
	}
	return out
}

type intGroup struct {
	min, max, sum int64
	count         int64
}

// IntAggregator computes any AggOp over an int column.
type IntAggregator struct {
	afield int
	op     AggOp
	groups groups[intGroup]
}

func NewIntAggregator(gfield, afield int, op AggOp) *IntAggregator {
	return &IntAggregator{afield: afield, op: op, groups: newGroups[intGroup](gfield)}
}

func (a *IntAggregator) Merge(row *record.Row) {
	v := int64(row.Field(a.afield).Int)
	g := a.groups.get(row)
	if g.count == 0 || v < g.min {
		g.min = v
	}
	if g.count == 0 || v > g.max {
		g.max = v
	}
	g.sum += v
	g.count++
}

// Results reports averages with integer division.
func (a *IntAggregator) Results() []*record.Row {
	return a.groups.results(func(g *intGroup) record.Value {
		var v int64
		switch a.op {
		case AggMin:
			v = g.min
		case AggMax:
			v = g.max
		case AggSum:
			v = g.sum
		case AggAvg:
			v = g.sum / g.count
		case AggCount:
			v = g.count
		}
		return record.IntValue(int32(v))
	})
}

// StringAggregator counts the rows of each group.
type StringAggregator struct {
	groups groups[int32]
}

// NewStringAggregator supports AggCount only.
func NewStringAggregator(gfield int, op AggOp) (*StringAggregator, error) {
	if op != AggCount {
		return nil, fmt.Errorf("%w: %s over string", ErrUnsupportedAggregate, op)
	}
	return &StringAggregator{groups: newGroups[int32](gfield)}, nil
}

func (a *StringAggregator) Merge(row *record.Row) {
	*a.groups.get(row)++
}

func (a *StringAggregator) Results() []*record.Row {
	return a.groups.results(func(n *int32) record.Value { return record.IntValue(*n) })
}

// Aggregate computes one aggregate over afield of its child, optionally
// grouped by gfield. The child is drained on Open. An empty child yields
// no rows.
type Aggregate struct {
	la     lookahead
	child  Operator
	afield int
	gfield int
	op     AggOp
	schema record.Schema

	results []*record.Row
	pos     int
}

func NewAggregate(child Operator, afield, gfield int, op AggOp) (*Aggregate, error) {
	in := child.Schema()
	if afield < 0 || afield >= in.NumCols() {
		return nil, fmt.Errorf("%w: aggregate field %d", record.ErrNoSuchField, afield)
	}
	if gfield != NoGrouping && (gfield < 0 || gfield >= in.NumCols()) {
		return nil, fmt.Errorf("%w: group field %d", record.ErrNoSuchField, gfield)
	}
	if in.Cols[afield].Type == record.ColString && op != AggCount {
		return nil, fmt.Errorf("%w: %s over string", ErrUnsupportedAggregate, op)
	}

	aggCol := record.Column{Type: record.ColInt, Name: fmt.Sprintf("%s(%s)", op, in.Cols[afield].Name)}
	cols := []record.Column{aggCol}
	if gfield != NoGrouping {
		cols = []record.Column{in.Cols[gfield], aggCol}
	}

	a := &Aggregate{child: child, afield: afield, gfield: gfield, op: op, schema: record.Schema{Cols: cols}}
	a.la.readNext = a.readNext
	return a, nil
}

func (a *Aggregate) GroupField() int     { return a.gfield }
func (a *Aggregate) AggregateField() int { return a.afield }
func (a *Aggregate) AggregateOp() AggOp  { return a.op }

func (a *Aggregate) newAggregator() (Aggregator, error) {
	if a.child.Schema().Cols[a.afield].Type == record.ColString {
		return NewStringAggregator(a.gfield, a.op)
	}
	return NewIntAggregator(a.gfield, a.afield, a.op), nil
}

func (a *Aggregate) Open() error {
	if a.la.open {
		return nil
	}
	if err := a.child.Open(); err != nil {
		return err
	}
	agg, err := a.newAggregator()
	if err != nil {
		return err
	}
	for {
		row, err := fetch(a.child)
		if err != nil {
			return err
		}
		if row == nil {
			break
		}
		agg.Merge(row)
	}
	a.results = agg.Results()
	a.pos = 0
	a.la.markOpened()
	return nil
}

func (a *Aggregate) readNext() (*record.Row, error) {
	if a.pos >= len(a.results) {
		return nil, nil
	}
	row := a.results[a.pos]
	a.pos++
	return row, nil
}

func (a *Aggregate) HasNext() (bool, error)     { return a.la.hasNext() }
func (a *Aggregate) Next() (*record.Row, error) { return a.la.nextRow() }

// Rewind replays the computed groups without reading the child again.
func (a *Aggregate) Rewind() error {
	a.pos = 0
	a.la.markOpened()
	return nil
}

func (a *Aggregate) Close() {
	a.child.Close()
	a.results = nil
	a.la.close()
}

func (a *Aggregate) Schema() record.Schema { return a.schema }
