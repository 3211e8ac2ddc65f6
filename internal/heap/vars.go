package heap

import (
	"errors"

	"github.com/tuannm99/heapdb/internal/storage"
)

var (
	ErrPageFull       = errors.New("heap: page has no free slot")
	ErrRowNotFound    = storage.ErrRowNotFound
	ErrEndOfSequence  = errors.New("heap: no more rows")
	ErrIteratorClosed = errors.New("heap: iterator is not open")
	ErrNotHeapPage    = errors.New("heap: page does not belong to a heap file")
	ErrRowTooLarge    = errors.New("heap: row does not fit in a page")
)
