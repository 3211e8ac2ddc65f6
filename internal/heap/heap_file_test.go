package heap

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/heapdb/internal/bufferpool"
	"github.com/tuannm99/heapdb/internal/lock"
	"github.com/tuannm99/heapdb/internal/record"
	"github.com/tuannm99/heapdb/internal/storage"
	"github.com/tuannm99/heapdb/internal/txn"
)

const testPageSize = 64 // 7 (int, int) rows per page

type tableResolver map[storage.TableID]bufferpool.DBFile

func (r tableResolver) DBFile(id storage.TableID) (bufferpool.DBFile, error) {
	f, ok := r[id]
	if !ok {
		return nil, errors.New("unknown table")
	}
	return f, nil
}

// newTestHeapFile opens path with a fresh pool that resolves only this file.
func newTestHeapFile(t *testing.T, path string) (*HeapFile, *bufferpool.Pool) {
	t.Helper()
	return newTestHeapFileCap(t, path, 16)
}

func newTestHeapFileCap(t *testing.T, path string, capacity int) (*HeapFile, *bufferpool.Pool) {
	t.Helper()

	resolver := tableResolver{}
	pool := bufferpool.NewPool(capacity, lock.NewManager(time.Second), resolver)
	hf, err := OpenHeapFile(path, twoInts(), testPageSize, pool)
	require.NoError(t, err)
	resolver[hf.ID()] = hf
	t.Cleanup(func() { _ = hf.Close() })
	return hf, pool
}

func scanAll(t *testing.T, hf *HeapFile, tid txn.ID) []*record.Row {
	t.Helper()

	it := hf.Iterator(tid)
	require.NoError(t, it.Open())
	defer it.Close()

	var out []*record.Row
	for {
		ok, err := it.HasNext()
		require.NoError(t, err)
		if !ok {
			return out
		}
		row, err := it.Next()
		require.NoError(t, err)
		out = append(out, row)
	}
}

func TestHeapFile_FillsPageThenAppends(t *testing.T) {
	hf, pool := newTestHeapFile(t, filepath.Join(t.TempDir(), "t.dat"))
	slots := SlotCount(testPageSize, twoInts().RowSize())

	t1 := txn.NewID()
	for i := range slots + 1 {
		require.NoError(t, pool.InsertRow(t1, hf.ID(), intRow(int32(i), int32(i*10))))
	}
	require.NoError(t, pool.TransactionComplete(t1, true))

	n, err := hf.PageCount()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	p0, err := hf.ReadPage(storage.PageID{Table: hf.ID(), PageNo: 0})
	require.NoError(t, err)
	require.Equal(t, 0, p0.(*HeapPage).EmptySlotCount())
	p1, err := hf.ReadPage(storage.PageID{Table: hf.ID(), PageNo: 1})
	require.NoError(t, err)
	require.Len(t, p1.(*HeapPage).Rows(), 1)

	rows := scanAll(t, hf, txn.NewID())
	require.Len(t, rows, slots+1)
	for i, row := range rows {
		require.Equal(t, int32(i), row.Field(0).Int)
		require.Equal(t, i/slots, row.RID.Page.PageNo)
		require.Equal(t, i%slots, row.RID.Slot)
	}
}

func TestHeapFile_GrowsPastPoolCapacity(t *testing.T) {
	const capacity = 4
	hf, pool := newTestHeapFileCap(t, filepath.Join(t.TempDir(), "t.dat"), capacity)
	slots := SlotCount(testPageSize, twoInts().RowSize())
	total := capacity*slots*5 + 3

	// One row per transaction, then batches of five.
	next := 0
	for ; next < total/2; next++ {
		tid := txn.NewID()
		require.NoError(t, pool.InsertRow(tid, hf.ID(), intRow(int32(next), 0)), "row %d", next)
		require.NoError(t, pool.TransactionComplete(tid, true))
	}
	for next < total {
		tid := txn.NewID()
		for j := 0; j < 5 && next < total; j, next = j+1, next+1 {
			require.NoError(t, pool.InsertRow(tid, hf.ID(), intRow(int32(next), 0)), "row %d", next)
		}
		require.NoError(t, pool.TransactionComplete(tid, true))
	}

	n, err := hf.PageCount()
	require.NoError(t, err)
	require.Equal(t, (total+slots-1)/slots, n)
	require.LessOrEqual(t, pool.Len(), capacity)

	rows := scanAll(t, hf, txn.NewID())
	require.Len(t, rows, total)
	for i, row := range rows {
		require.Equal(t, int32(i), row.Field(0).Int)
	}
}

func TestHeapFile_ReleasesPins(t *testing.T) {
	hf, pool := newTestHeapFile(t, filepath.Join(t.TempDir(), "t.dat"))
	pid := storage.PageID{Table: hf.ID(), PageNo: 0}

	t1 := txn.NewID()
	require.NoError(t, pool.InsertRow(t1, hf.ID(), intRow(1, 1)))
	require.Equal(t, 0, pool.Pinned(pid))

	rows := scanAll(t, hf, t1)
	require.Equal(t, 0, pool.Pinned(pid))
	require.NoError(t, pool.DeleteRow(t1, rows[0]))
	require.Equal(t, 0, pool.Pinned(pid))

	_, err := hf.Page(t1, 0)
	require.NoError(t, err)
	require.Equal(t, 0, pool.Pinned(pid))
	require.NoError(t, pool.TransactionComplete(t1, true))
}

func TestHeapFile_AbortedInsertIsInvisible(t *testing.T) {
	hf, pool := newTestHeapFile(t, filepath.Join(t.TempDir(), "t.dat"))

	t1 := txn.NewID()
	require.NoError(t, pool.InsertRow(t1, hf.ID(), intRow(1, 2)))
	require.NoError(t, pool.TransactionComplete(t1, false))

	require.Empty(t, scanAll(t, hf, txn.NewID()))

	// The appended page stays, empty.
	n, err := hf.PageCount()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestHeapFile_AbortRestoresCommittedContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.dat")
	hf, pool := newTestHeapFile(t, path)

	t1 := txn.NewID()
	require.NoError(t, pool.InsertRow(t1, hf.ID(), intRow(1, 1)))
	require.NoError(t, pool.TransactionComplete(t1, true))
	pid := storage.PageID{Table: hf.ID(), PageNo: 0}
	committed, err := hf.file.ReadPage(0)
	require.NoError(t, err)

	t2 := txn.NewID()
	rows := scanAll(t, hf, t2)
	require.Len(t, rows, 1)
	require.NoError(t, pool.DeleteRow(t2, rows[0]))
	require.NoError(t, pool.InsertRow(t2, hf.ID(), intRow(2, 2)))
	require.NoError(t, pool.TransactionComplete(t2, false))

	onDisk, err := hf.file.ReadPage(0)
	require.NoError(t, err)
	require.Equal(t, committed, onDisk)

	t3 := txn.NewID()
	pg, err := pool.GetPage(t3, hf, pid, bufferpool.ReadOnly)
	require.NoError(t, err)
	cached, err := pg.(*HeapPage).Bytes()
	require.NoError(t, err)
	require.Equal(t, committed, cached)
}

func TestHeapFile_CommittedRowsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.dat")
	hf, pool := newTestHeapFile(t, path)

	t1 := txn.NewID()
	for i := range 10 {
		require.NoError(t, pool.InsertRow(t1, hf.ID(), intRow(int32(i), 0)))
	}
	require.NoError(t, pool.TransactionComplete(t1, true))
	require.NoError(t, hf.Close())

	reopened, _ := newTestHeapFile(t, path)
	require.Equal(t, hf.ID(), reopened.ID())

	rows := scanAll(t, reopened, txn.NewID())
	require.Len(t, rows, 10)
	require.Equal(t, int32(9), rows[9].Field(0).Int)
}

func TestHeapFile_InsertReusesFreedSlot(t *testing.T) {
	hf, pool := newTestHeapFile(t, filepath.Join(t.TempDir(), "t.dat"))
	slots := SlotCount(testPageSize, twoInts().RowSize())

	t1 := txn.NewID()
	for i := range slots + 1 {
		require.NoError(t, pool.InsertRow(t1, hf.ID(), intRow(int32(i), 0)))
	}
	rows := scanAll(t, hf, t1)
	require.NoError(t, pool.DeleteRow(t1, rows[3]))
	require.Nil(t, rows[3].RID)

	row := intRow(100, 0)
	require.NoError(t, pool.InsertRow(t1, hf.ID(), row))
	require.Equal(t, storage.RowID{Page: storage.PageID{Table: hf.ID(), PageNo: 0}, Slot: 3}, *row.RID)
	require.NoError(t, pool.TransactionComplete(t1, true))

	n, err := hf.PageCount()
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestHeapFile_DeleteErrors(t *testing.T) {
	hf, _ := newTestHeapFile(t, filepath.Join(t.TempDir(), "t.dat"))
	tid := txn.NewID()

	_, err := hf.DeleteRow(tid, intRow(1, 1))
	require.ErrorIs(t, err, ErrRowNotFound)

	row := intRow(1, 1)
	row.RID = &storage.RowID{Page: storage.PageID{Table: hf.ID() + 1, PageNo: 0}}
	_, err = hf.DeleteRow(tid, row)
	require.ErrorIs(t, err, ErrRowNotFound)

	row.RID = &storage.RowID{Page: storage.PageID{Table: hf.ID(), PageNo: 4}}
	_, err = hf.DeleteRow(tid, row)
	require.ErrorIs(t, err, storage.ErrUnknownPage)
}

func TestHeapFile_ReadWritePage(t *testing.T) {
	hf, _ := newTestHeapFile(t, filepath.Join(t.TempDir(), "t.dat"))

	_, err := hf.ReadPage(storage.PageID{Table: hf.ID(), PageNo: 0})
	require.ErrorIs(t, err, storage.ErrUnknownPage)
	_, err = hf.ReadPage(storage.PageID{Table: hf.ID() + 1, PageNo: 0})
	require.ErrorIs(t, err, storage.ErrUnknownPage)

	pid := storage.PageID{Table: hf.ID(), PageNo: 0}
	hp, err := NewEmptyHeapPage(pid, twoInts(), testPageSize)
	require.NoError(t, err)
	_, err = hp.InsertRow(txn.NewID(), intRow(4, 2))
	require.NoError(t, err)
	require.NoError(t, hf.WritePage(hp))

	got, err := hf.ReadPage(pid)
	require.NoError(t, err)
	require.Len(t, got.(*HeapPage).Rows(), 1)

	other, err := NewEmptyHeapPage(storage.PageID{Table: hf.ID() + 1}, twoInts(), testPageSize)
	require.NoError(t, err)
	require.ErrorIs(t, hf.WritePage(other), ErrNotHeapPage)
}

func TestHeapFile_RowTooLarge(t *testing.T) {
	schema := record.NewSchema([]record.ColumnType{record.ColString}, []string{"s"})
	_, err := OpenHeapFile(filepath.Join(t.TempDir(), "t.dat"), schema, 64, bufferpool.NewPool(1, nil, nil))
	require.ErrorIs(t, err, ErrRowTooLarge)
}

func TestIterator_Protocol(t *testing.T) {
	hf, pool := newTestHeapFile(t, filepath.Join(t.TempDir(), "t.dat"))
	tid := txn.NewID()
	require.NoError(t, pool.InsertRow(tid, hf.ID(), intRow(1, 1)))
	require.NoError(t, pool.InsertRow(tid, hf.ID(), intRow(2, 2)))

	it := hf.Iterator(tid)
	_, err := it.HasNext()
	require.ErrorIs(t, err, ErrIteratorClosed)

	require.NoError(t, it.Open())
	require.NoError(t, it.Open())

	// HasNext does not consume.
	for range 3 {
		ok, err := it.HasNext()
		require.NoError(t, err)
		require.True(t, ok)
	}
	first, err := it.Next()
	require.NoError(t, err)
	require.Equal(t, int32(1), first.Field(0).Int)
	_, err = it.Next()
	require.NoError(t, err)

	_, err = it.Next()
	require.ErrorIs(t, err, ErrEndOfSequence)

	require.NoError(t, it.Rewind())
	again, err := it.Next()
	require.NoError(t, err)
	require.Equal(t, first.Values, again.Values)

	it.Close()
	_, err = it.Next()
	require.ErrorIs(t, err, ErrIteratorClosed)
}

func TestIterator_EmptyFile(t *testing.T) {
	hf, _ := newTestHeapFile(t, filepath.Join(t.TempDir(), "t.dat"))
	require.Empty(t, scanAll(t, hf, txn.NewID()))
}

func TestIterator_ScanTakesSharedLocks(t *testing.T) {
	hf, pool := newTestHeapFile(t, filepath.Join(t.TempDir(), "t.dat"))
	t1 := txn.NewID()
	require.NoError(t, pool.InsertRow(t1, hf.ID(), intRow(1, 1)))
	require.NoError(t, pool.TransactionComplete(t1, true))

	t2, t3 := txn.NewID(), txn.NewID()
	require.Len(t, scanAll(t, hf, t2), 1)
	require.Len(t, scanAll(t, hf, t3), 1)

	pid := storage.PageID{Table: hf.ID(), PageNo: 0}
	mode, ok := pool.Locks().LockMode(t2, pid)
	require.True(t, ok)
	require.Equal(t, lock.Shared, mode)
	require.True(t, pool.HoldsLock(t3, pid))
}
