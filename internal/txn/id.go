package txn

import (
	"strconv"
	"sync/atomic"
)

// ID identifies a transaction. The zero value means "no transaction".
type ID uint64

const None ID = 0

var counter atomic.Uint64

// NewID allocates a process-unique transaction id.
func NewID() ID {
	return ID(counter.Add(1))
}

func (id ID) String() string {
	if id == None {
		return "txn(none)"
	}
	return "txn(" + strconv.FormatUint(uint64(id), 10) + ")"
}
