// Package exec holds pull-based operators over heap files. Every operator
// follows the Open / HasNext / Next / Rewind / Close protocol.
package exec

import (
	"errors"

	"github.com/tuannm99/heapdb/internal/heap"
	"github.com/tuannm99/heapdb/internal/record"
	"github.com/tuannm99/heapdb/internal/storage"
	"github.com/tuannm99/heapdb/internal/txn"
)

var (
	ErrNotOpen        = heap.ErrIteratorClosed
	ErrEndOfSequence  = heap.ErrEndOfSequence
	ErrSchemaMismatch = errors.New("exec: child rows do not match table schema")
)

type Operator interface {
	Open() error
	// HasNext looks ahead without consuming.
	HasNext() (bool, error)
	// Next fails with ErrEndOfSequence when nothing is left.
	Next() (*record.Row, error)
	// Rewind restarts from the first row.
	Rewind() error
	Close()
	Schema() record.Schema
}

// RowWriter is the mutation path operators write through.
type RowWriter interface {
	InsertRow(tid txn.ID, table storage.TableID, row *record.Row) error
	DeleteRow(tid txn.ID, row *record.Row) error
}

// SchemaResolver looks up a table's row layout.
type SchemaResolver interface {
	Schema(id storage.TableID) (record.Schema, error)
}

// readNextFunc produces the next row, or nil at the end.
type readNextFunc func() (*record.Row, error)

// lookahead caches the row readNext produced so HasNext can peek.
type lookahead struct {
	readNext readNextFunc
	open     bool
	next     *record.Row
	done     bool
}

func (l *lookahead) markOpened() {
	l.open = true
	l.reset()
}

func (l *lookahead) reset() {
	l.next = nil
	l.done = false
}

func (l *lookahead) close() {
	l.open = false
	l.reset()
}

func (l *lookahead) hasNext() (bool, error) {
	if !l.open {
		return false, ErrNotOpen
	}
	if l.next == nil && !l.done {
		row, err := l.readNext()
		if err != nil {
			return false, err
		}
		if row == nil {
			l.done = true
		}
		l.next = row
	}
	return l.next != nil, nil
}

func (l *lookahead) nextRow() (*record.Row, error) {
	ok, err := l.hasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEndOfSequence
	}
	row := l.next
	l.next = nil
	return row, nil
}

// fetch pulls one row from child, nil when exhausted.
func fetch(child Operator) (*record.Row, error) {
	ok, err := child.HasNext()
	if err != nil || !ok {
		return nil, err
	}
	return child.Next()
}

// Collect opens op, drains it and closes it.
func Collect(op Operator) ([]*record.Row, error) {
	if err := op.Open(); err != nil {
		return nil, err
	}
	defer op.Close()

	var out []*record.Row
	for {
		row, err := fetch(op)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return out, nil
		}
		out = append(out, row)
	}
}
