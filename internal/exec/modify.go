package exec

import (
	"fmt"

	"github.com/tuannm99/heapdb/internal/record"
	"github.com/tuannm99/heapdb/internal/storage"
	"github.com/tuannm99/heapdb/internal/txn"
)

// countSchema is the one-column result of Insert and Delete.
var countSchema = record.NewSchema([]record.ColumnType{record.ColInt}, []string{"count"})

// Insert writes every child row into a table and then yields a single row
// holding the number of rows inserted.
type Insert struct {
	la     lookahead
	tid    txn.ID
	w      RowWriter
	child  Operator
	table  storage.TableID
	called bool
}

func NewInsert(tid txn.ID, w RowWriter, schemas SchemaResolver, child Operator, table storage.TableID) (*Insert, error) {
	want, err := schemas.Schema(table)
	if err != nil {
		return nil, err
	}
	if !want.Equal(child.Schema()) {
		return nil, fmt.Errorf("%w: table has %s, child has %s", ErrSchemaMismatch, want, child.Schema())
	}
	ins := &Insert{tid: tid, w: w, child: child, table: table}
	ins.la.readNext = ins.readNext
	return ins, nil
}

func (ins *Insert) Open() error {
	if ins.la.open {
		return nil
	}
	if err := ins.child.Open(); err != nil {
		return err
	}
	ins.called = false
	ins.la.markOpened()
	return nil
}

func (ins *Insert) readNext() (*record.Row, error) {
	if ins.called {
		return nil, nil
	}
	ins.called = true

	n := int32(0)
	for {
		row, err := fetch(ins.child)
		if err != nil {
			return nil, err
		}
		if row == nil {
			break
		}
		// The child's row may carry a location in another table.
		if err := ins.w.InsertRow(ins.tid, ins.table, record.NewRow(row.Values...)); err != nil {
			return nil, err
		}
		n++
	}
	return record.NewRow(record.IntValue(n)), nil
}

func (ins *Insert) HasNext() (bool, error)     { return ins.la.hasNext() }
func (ins *Insert) Next() (*record.Row, error) { return ins.la.nextRow() }

// Rewind rewinds the child; the next pull inserts its rows again.
func (ins *Insert) Rewind() error {
	if err := ins.child.Rewind(); err != nil {
		return err
	}
	ins.called = false
	ins.la.markOpened()
	return nil
}

func (ins *Insert) Close() {
	ins.child.Close()
	ins.la.close()
}

func (ins *Insert) Schema() record.Schema { return countSchema }

// Delete removes every child row, located by its RID, and then yields a
// single row holding the number of rows deleted.
type Delete struct {
	la     lookahead
	tid    txn.ID
	w      RowWriter
	child  Operator
	called bool
}

func NewDelete(tid txn.ID, w RowWriter, child Operator) *Delete {
	d := &Delete{tid: tid, w: w, child: child}
	d.la.readNext = d.readNext
	return d
}

func (d *Delete) Open() error {
	if d.la.open {
		return nil
	}
	if err := d.child.Open(); err != nil {
		return err
	}
	d.called = false
	d.la.markOpened()
	return nil
}

func (d *Delete) readNext() (*record.Row, error) {
	if d.called {
		return nil, nil
	}
	d.called = true

	n := int32(0)
	for {
		row, err := fetch(d.child)
		if err != nil {
			return nil, err
		}
		if row == nil {
			break
		}
		if err := d.w.DeleteRow(d.tid, row); err != nil {
			return nil, err
		}
		n++
	}
	return record.NewRow(record.IntValue(n)), nil
}

func (d *Delete) HasNext() (bool, error)     { return d.la.hasNext() }
func (d *Delete) Next() (*record.Row, error) { return d.la.nextRow() }

func (d *Delete) Rewind() error {
	if err := d.child.Rewind(); err != nil {
		return err
	}
	d.called = false
	d.la.markOpened()
	return nil
}

func (d *Delete) Close() {
	d.child.Close()
	d.la.close()
}

func (d *Delete) Schema() record.Schema { return countSchema }
