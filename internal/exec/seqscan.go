package exec

import (
	"github.com/tuannm99/heapdb/internal/heap"
	"github.com/tuannm99/heapdb/internal/record"
	"github.com/tuannm99/heapdb/internal/txn"
)

// SeqScan reads every row of a heap file in page and slot order. Column
// names of its schema are prefixed with the table alias ("alias.col").
type SeqScan struct {
	la     lookahead
	it     *heap.Iterator
	alias  string
	schema record.Schema
}

func NewSeqScan(tid txn.ID, file *heap.HeapFile, alias string) *SeqScan {
	s := &SeqScan{
		it:     file.Iterator(tid),
		alias:  alias,
		schema: prefixed(file.Schema(), alias),
	}
	s.la.readNext = s.readNext
	return s
}

func prefixed(s record.Schema, alias string) record.Schema {
	cols := make([]record.Column, len(s.Cols))
	for i, c := range s.Cols {
		cols[i] = c
		if alias != "" {
			cols[i].Name = alias + "." + c.Name
		}
	}
	return record.Schema{Cols: cols}
}

func (s *SeqScan) Alias() string { return s.alias }

func (s *SeqScan) Open() error {
	if s.la.open {
		return nil
	}
	if err := s.it.Open(); err != nil {
		return err
	}
	s.la.markOpened()
	return nil
}

func (s *SeqScan) readNext() (*record.Row, error) {
	ok, err := s.it.HasNext()
	if err != nil || !ok {
		return nil, err
	}
	return s.it.Next()
}

func (s *SeqScan) HasNext() (bool, error)     { return s.la.hasNext() }
func (s *SeqScan) Next() (*record.Row, error) { return s.la.nextRow() }

func (s *SeqScan) Rewind() error {
	if err := s.it.Rewind(); err != nil {
		return err
	}
	s.la.markOpened()
	return nil
}

func (s *SeqScan) Close() {
	s.it.Close()
	s.la.close()
}

func (s *SeqScan) Schema() record.Schema { return s.schema }
