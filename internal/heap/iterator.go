package heap

import (
	"github.com/tuannm99/heapdb/internal/bufferpool"
	"github.com/tuannm99/heapdb/internal/record"
	"github.com/tuannm99/heapdb/internal/txn"
)

// Iterator walks every row of a heap file in page then slot order, one page
// at a time, each page fetched ReadOnly through the buffer pool. Locks taken
// while scanning stay held until the transaction ends.
//
// The page count is fixed at Open, so rows appended to new pages during the
// scan are not visited until Rewind.
type Iterator struct {
	file *HeapFile
	tid  txn.ID

	open      bool
	pageCount int
	nextPage  int
	buf       []*record.Row
	pos       int
}

// Iterator returns a closed scan over hf for tid.
func (hf *HeapFile) Iterator(tid txn.ID) *Iterator {
	return &Iterator{file: hf, tid: tid}
}

// Open is idempotent.
func (it *Iterator) Open() error {
	if it.open {
		return nil
	}
	n, err := it.file.PageCount()
	if err != nil {
		return err
	}
	it.pageCount = n
	it.nextPage = 0
	it.buf = nil
	it.pos = 0
	it.open = true
	return nil
}

// HasNext looks ahead, across page boundaries if needed, without consuming.
func (it *Iterator) HasNext() (bool, error) {
	if !it.open {
		return false, ErrIteratorClosed
	}
	for it.pos >= len(it.buf) {
		if it.nextPage >= it.pageCount {
			return false, nil
		}
		hp, err := it.file.fetch(it.tid, it.nextPage, bufferpool.ReadOnly)
		if err != nil {
			return false, err
		}
		it.buf = hp.Rows()
		it.file.release(hp)
		it.pos = 0
		it.nextPage++
	}
	return true, nil
}

// Next returns the next row or ErrEndOfSequence.
func (it *Iterator) Next() (*record.Row, error) {
	ok, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEndOfSequence
	}
	row := it.buf[it.pos]
	it.pos++
	return row, nil
}

// Rewind is Close followed by Open.
func (it *Iterator) Rewind() error {
	it.Close()
	return it.Open()
}

// Close drops iterator state. Page locks are not released.
func (it *Iterator) Close() {
	it.open = false
	it.buf = nil
	it.pos = 0
}
