package heap

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tuannm99/heapdb/internal/bufferpool"
	"github.com/tuannm99/heapdb/internal/record"
	"github.com/tuannm99/heapdb/internal/storage"
	"github.com/tuannm99/heapdb/internal/txn"
)

// HeapFile stores the rows of one table, unordered, in a flat page file.
// Every page access goes through the buffer pool.
type HeapFile struct {
	id     storage.TableID
	schema record.Schema
	file   *storage.PageFile
	pool   *bufferpool.Pool

	// tailMu serializes page appends so two inserters never claim the
	// same new page number.
	tailMu sync.Mutex
}

var _ bufferpool.DBFile = (*HeapFile)(nil)

// OpenHeapFile opens (or creates) the heap file at path. The table id is
// derived from the canonical path.
func OpenHeapFile(path string, schema record.Schema, pageSize int, pool *bufferpool.Pool) (*HeapFile, error) {
	if SlotCount(pageSize, schema.RowSize()) == 0 {
		return nil, fmt.Errorf("%w: row %d bytes, page %d bytes", ErrRowTooLarge, schema.RowSize(), pageSize)
	}
	id, err := storage.TableIDFromPath(path)
	if err != nil {
		return nil, err
	}
	pf, err := storage.OpenPageFile(path, pageSize)
	if err != nil {
		return nil, fmt.Errorf("heap: open %s: %w", path, err)
	}
	return &HeapFile{id: id, schema: schema, file: pf, pool: pool}, nil
}

func (hf *HeapFile) ID() storage.TableID   { return hf.id }
func (hf *HeapFile) Schema() record.Schema { return hf.schema }
func (hf *HeapFile) Path() string          { return hf.file.Path() }
func (hf *HeapFile) PageSize() int         { return hf.file.PageSize() }

func (hf *HeapFile) PageCount() (int, error) { return hf.file.PageCount() }

func (hf *HeapFile) pageID(pageNo int) storage.PageID {
	return storage.PageID{Table: hf.id, PageNo: pageNo}
}

// ReadPage loads and decodes a page straight from disk. Callers other than
// the buffer pool should use the pool instead.
func (hf *HeapFile) ReadPage(pid storage.PageID) (bufferpool.Page, error) {
	if pid.Table != hf.id {
		return nil, fmt.Errorf("%w: %s not in table %d", storage.ErrUnknownPage, pid, hf.id)
	}
	data, err := hf.file.ReadPage(pid.PageNo)
	if err != nil {
		return nil, err
	}
	return DecodeHeapPage(pid, hf.schema, data)
}

// WritePage encodes page and writes it at its page number.
func (hf *HeapFile) WritePage(page bufferpool.Page) error {
	hp, ok := page.(*HeapPage)
	if !ok || hp.pid.Table != hf.id {
		return ErrNotHeapPage
	}
	data, err := hp.Bytes()
	if err != nil {
		return err
	}
	return hf.file.WritePage(hp.pid.PageNo, data)
}

// InsertRow places row in the first page, in ascending page order, that has
// a free slot. When every page is full an empty page is appended. Pages are
// fetched under ReadWrite and unpinned once inspected; a page that received
// the row is dirty and stays cached until the transaction ends.
func (hf *HeapFile) InsertRow(tid txn.ID, row *record.Row) ([]bufferpool.Page, error) {
	if err := hf.schema.Validate(row.Values); err != nil {
		return nil, err
	}

	start := 0
	for {
		n, err := hf.PageCount()
		if err != nil {
			return nil, err
		}

		for pageNo := start; pageNo < n; pageNo++ {
			hp, err := hf.fetch(tid, pageNo, bufferpool.ReadWrite)
			if err != nil {
				return nil, err
			}
			if hp.EmptySlotCount() == 0 {
				hf.release(hp)
				continue
			}
			_, err = hp.InsertRow(tid, row)
			hf.release(hp)
			if err != nil {
				return nil, err
			}
			return []bufferpool.Page{hp}, nil
		}
		start = n

		pageNo, err := hf.appendEmptyPage()
		if err != nil {
			return nil, err
		}
		hp, err := hf.fetch(tid, pageNo, bufferpool.ReadWrite)
		if err != nil {
			return nil, err
		}
		_, err = hp.InsertRow(tid, row)
		hf.release(hp)
		if errors.Is(err, ErrPageFull) {
			// Another transaction filled the new page first.
			start = pageNo + 1
			continue
		}
		if err != nil {
			return nil, err
		}
		return []bufferpool.Page{hp}, nil
	}
}

// appendEmptyPage writes an all-zero page after the last one.
func (hf *HeapFile) appendEmptyPage() (int, error) {
	hf.tailMu.Lock()
	defer hf.tailMu.Unlock()

	n, err := hf.PageCount()
	if err != nil {
		return 0, err
	}
	if err := hf.file.WritePage(n, EmptyPageData(hf.PageSize())); err != nil {
		return 0, fmt.Errorf("heap: append page %d: %w", n, err)
	}
	slog.Debug("heap: appended page", "table", hf.id, "page", n)
	return n, nil
}

// DeleteRow removes row from the page its RID points at.
func (hf *HeapFile) DeleteRow(tid txn.ID, row *record.Row) ([]bufferpool.Page, error) {
	if row == nil || row.RID == nil {
		return nil, fmt.Errorf("%w: row has no location", ErrRowNotFound)
	}
	if row.RID.Page.Table != hf.id {
		return nil, fmt.Errorf("%w: %s not in table %d", ErrRowNotFound, row.RID, hf.id)
	}

	hp, err := hf.fetch(tid, row.RID.Page.PageNo, bufferpool.ReadWrite)
	if err != nil {
		return nil, err
	}
	err = hp.DeleteRow(tid, row)
	hf.release(hp)
	if err != nil {
		return nil, err
	}
	return []bufferpool.Page{hp}, nil
}

// fetch returns the page pinned; callers pair it with release.
func (hf *HeapFile) fetch(tid txn.ID, pageNo int, perm bufferpool.Perm) (*HeapPage, error) {
	pg, err := hf.pool.GetPage(tid, hf, hf.pageID(pageNo), perm)
	if err != nil {
		return nil, err
	}
	hp, ok := pg.(*HeapPage)
	if !ok {
		return nil, ErrNotHeapPage
	}
	return hp, nil
}

func (hf *HeapFile) release(hp *HeapPage) { hf.pool.Unpin(hp.pid) }

// Page returns page pageNo under a shared lock held by tid. The page is not
// pinned: the lock keeps its content stable, though the pool may drop it
// from the cache.
func (hf *HeapFile) Page(tid txn.ID, pageNo int) (*HeapPage, error) {
	hp, err := hf.fetch(tid, pageNo, bufferpool.ReadOnly)
	if err != nil {
		return nil, err
	}
	hf.release(hp)
	return hp, nil
}

func (hf *HeapFile) Sync() error  { return hf.file.Sync() }
func (hf *HeapFile) Close() error { return hf.file.Close() }
