package heap

import (
	"fmt"
	"slices"
	"sync"

	"github.com/tuannm99/heapdb/internal/bufferpool"
	"github.com/tuannm99/heapdb/internal/record"
	"github.com/tuannm99/heapdb/internal/storage"
	"github.com/tuannm99/heapdb/internal/txn"
)

// Page layout:
//
//	[bitmap header: HeaderSize(n) bytes][slot 0]...[slot n-1][zero padding]
//
// Bit i (LSB first within its byte) is set iff slot i holds a row. Free slots
// are zero filled so slot offsets never move.

// SlotCount is how many rows of rowSize bytes fit in a page, one header bit
// per slot included.
func SlotCount(pageSize, rowSize int) int {
	if pageSize <= 0 || rowSize <= 0 {
		return 0
	}
	return (pageSize * 8) / (rowSize*8 + 1)
}

// HeaderSize is the bitmap length in bytes for n slots.
func HeaderSize(n int) int { return (n + 7) / 8 }

// EmptyPageData returns the bytes of a page with no used slot.
func EmptyPageData(pageSize int) []byte { return make([]byte, pageSize) }

// HeapPage is the decoded form of one page of a heap file.
//
// Row content is guarded by the page lock the caller holds through the
// buffer pool. mu only covers the dirty state and the before-image, which
// the pool reads while choosing eviction victims.
type HeapPage struct {
	pid      storage.PageID
	schema   record.Schema
	pageSize int
	numSlots int

	header []byte
	rows   []*record.Row // nil == free slot

	mu      sync.Mutex
	dirty   bool
	dirtier txn.ID
	before  []byte
}

var _ bufferpool.Page = (*HeapPage)(nil)

// DecodeHeapPage parses data (exactly one page) as a page of schema rows.
// The decoded image becomes the page's before-image.
func DecodeHeapPage(pid storage.PageID, schema record.Schema, data []byte) (*HeapPage, error) {
	pageSize := len(data)
	rowSize := schema.RowSize()
	n := SlotCount(pageSize, rowSize)
	if n == 0 {
		return nil, fmt.Errorf("%w: row %d bytes, page %d bytes", ErrRowTooLarge, rowSize, pageSize)
	}

	hp := &HeapPage{
		pid:      pid,
		schema:   schema,
		pageSize: pageSize,
		numSlots: n,
	}
	if err := hp.load(data); err != nil {
		return nil, err
	}
	hp.before = slices.Clone(data)
	return hp, nil
}

// NewEmptyHeapPage is a page with every slot free.
func NewEmptyHeapPage(pid storage.PageID, schema record.Schema, pageSize int) (*HeapPage, error) {
	return DecodeHeapPage(pid, schema, EmptyPageData(pageSize))
}

// load replaces header and rows with the content of data.
func (hp *HeapPage) load(data []byte) error {
	hsize := HeaderSize(hp.numSlots)
	rowSize := hp.schema.RowSize()

	header := slices.Clone(data[:hsize])
	rows := make([]*record.Row, hp.numSlots)
	for i := range hp.numSlots {
		if !bitSet(header, i) {
			continue
		}
		off := hsize + i*rowSize
		values, err := record.DecodeRow(hp.schema, data[off:off+rowSize])
		if err != nil {
			return fmt.Errorf("heap: decode %s slot %d: %w", hp.pid, i, err)
		}
		rows[i] = &record.Row{
			Values: values,
			RID:    &storage.RowID{Page: hp.pid, Slot: i},
		}
	}

	hp.header = header
	hp.rows = rows
	return nil
}

func bitSet(header []byte, i int) bool {
	return header[i/8]&(1<<(i%8)) != 0
}

func (hp *HeapPage) setBit(i int, used bool) {
	if used {
		hp.header[i/8] |= 1 << (i % 8)
	} else {
		hp.header[i/8] &^= 1 << (i % 8)
	}
}

func (hp *HeapPage) ID() storage.PageID    { return hp.pid }
func (hp *HeapPage) Schema() record.Schema { return hp.schema }
func (hp *HeapPage) NumSlots() int         { return hp.numSlots }

// IsSlotUsed reports whether slot i holds a row.
func (hp *HeapPage) IsSlotUsed(i int) bool {
	return i >= 0 && i < hp.numSlots && bitSet(hp.header, i)
}

// EmptySlotCount counts unset header bits.
func (hp *HeapPage) EmptySlotCount() int {
	n := 0
	for i := range hp.numSlots {
		if !bitSet(hp.header, i) {
			n++
		}
	}
	return n
}

// Bytes encodes the page to exactly pageSize bytes.
func (hp *HeapPage) Bytes() ([]byte, error) {
	buf := make([]byte, hp.pageSize)
	hsize := copy(buf, hp.header)
	rowSize := hp.schema.RowSize()

	for i, row := range hp.rows {
		if row == nil {
			continue
		}
		off := hsize + i*rowSize
		if _, err := record.EncodeRow(buf[off:off], hp.schema, row.Values); err != nil {
			return nil, fmt.Errorf("heap: encode %s slot %d: %w", hp.pid, i, err)
		}
	}
	return buf, nil
}

// InsertRow stores row in the lowest free slot and sets row.RID.
func (hp *HeapPage) InsertRow(tid txn.ID, row *record.Row) (storage.RowID, error) {
	if err := hp.schema.Validate(row.Values); err != nil {
		return storage.RowID{}, err
	}

	slot := -1
	for i := range hp.numSlots {
		if !bitSet(hp.header, i) {
			slot = i
			break
		}
	}
	if slot < 0 {
		return storage.RowID{}, ErrPageFull
	}

	values := slices.Clone(row.Values)
	for i := range values {
		values[i] = values[i].Stored()
	}
	rid := storage.RowID{Page: hp.pid, Slot: slot}
	hp.rows[slot] = &record.Row{Values: values, RID: &rid}
	hp.setBit(slot, true)
	row.RID = &rid

	hp.MarkDirty(true, tid)
	return rid, nil
}

// DeleteRow frees the slot row.RID points at. The row's location is cleared.
func (hp *HeapPage) DeleteRow(tid txn.ID, row *record.Row) error {
	if row == nil || row.RID == nil {
		return fmt.Errorf("%w: row has no location", ErrRowNotFound)
	}
	rid := *row.RID
	if rid.Page != hp.pid || !hp.IsSlotUsed(rid.Slot) {
		return fmt.Errorf("%w: %s", ErrRowNotFound, rid)
	}

	hp.rows[rid.Slot] = nil
	hp.setBit(rid.Slot, false)
	row.RID = nil

	hp.MarkDirty(true, tid)
	return nil
}

// Row returns a copy of the row in slot i, if used.
func (hp *HeapPage) Row(i int) (*record.Row, bool) {
	if !hp.IsSlotUsed(i) {
		return nil, false
	}
	return cloneRow(hp.rows[i]), true
}

// Rows returns copies of the used slots in ascending slot order.
func (hp *HeapPage) Rows() []*record.Row {
	out := make([]*record.Row, 0, hp.numSlots)
	for _, row := range hp.rows {
		if row != nil {
			out = append(out, cloneRow(row))
		}
	}
	return out
}

func cloneRow(r *record.Row) *record.Row {
	rid := *r.RID
	return &record.Row{Values: slices.Clone(r.Values), RID: &rid}
}

func (hp *HeapPage) MarkDirty(dirty bool, tid txn.ID) {
	hp.mu.Lock()
	defer hp.mu.Unlock()
	hp.dirty = dirty
	if dirty {
		hp.dirtier = tid
	} else {
		hp.dirtier = txn.None
	}
}

func (hp *HeapPage) IsDirty() (txn.ID, bool) {
	hp.mu.Lock()
	defer hp.mu.Unlock()
	return hp.dirtier, hp.dirty
}

// SetBeforeImage captures the current content as the rollback baseline.
func (hp *HeapPage) SetBeforeImage() error {
	data, err := hp.Bytes()
	if err != nil {
		return err
	}
	hp.mu.Lock()
	hp.before = data
	hp.mu.Unlock()
	return nil
}

// BeforeImage returns a copy of the last captured baseline.
func (hp *HeapPage) BeforeImage() []byte {
	hp.mu.Lock()
	defer hp.mu.Unlock()
	return slices.Clone(hp.before)
}

// Rollback restores the before-image in place and clears the dirty flag.
func (hp *HeapPage) Rollback() error {
	before := hp.BeforeImage()
	if err := hp.load(before); err != nil {
		return err
	}
	hp.MarkDirty(false, txn.None)
	return nil
}
