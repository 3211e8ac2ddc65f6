package exec

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/heapdb/internal/bufferpool"
	"github.com/tuannm99/heapdb/internal/catalog"
	"github.com/tuannm99/heapdb/internal/heap"
	"github.com/tuannm99/heapdb/internal/lock"
	"github.com/tuannm99/heapdb/internal/record"
	"github.com/tuannm99/heapdb/internal/storage"
	"github.com/tuannm99/heapdb/internal/txn"
)

var twoInts = record.NewSchema(
	[]record.ColumnType{record.ColInt, record.ColInt},
	[]string{"a", "b"},
)

type testTable struct {
	cat  *catalog.Catalog
	pool *bufferpool.Pool
	file *heap.HeapFile
}

func newTestTable(t *testing.T) testTable {
	t.Helper()

	cat := catalog.New()
	pool := bufferpool.NewPool(32, lock.NewManager(time.Second), cat)
	hf, err := heap.OpenHeapFile(filepath.Join(t.TempDir(), "t.dat"), twoInts, storage.DefaultPageSize, pool)
	require.NoError(t, err)
	t.Cleanup(func() { _ = hf.Close() })
	require.NoError(t, cat.AddTable(hf, "t", "a"))
	return testTable{cat: cat, pool: pool, file: hf}
}

// load inserts (i, i*10) for i in [0, n) and commits.
func (tt testTable) load(t *testing.T, n int) {
	t.Helper()

	tid := txn.NewID()
	rows := make([]*record.Row, n)
	for i := range n {
		rows[i] = record.NewRow(record.IntValue(int32(i)), record.IntValue(int32(i*10)))
	}
	src, err := NewValues(twoInts, rows...)
	require.NoError(t, err)
	ins, err := NewInsert(tid, tt.pool, tt.cat, src, tt.file.ID())
	require.NoError(t, err)

	out, err := Collect(ins)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int32(n), out[0].Field(0).Int)
	require.NoError(t, tt.pool.TransactionComplete(tid, true))
}

func TestSeqScan_ReadsAllRowsWithAlias(t *testing.T) {
	tt := newTestTable(t)
	tt.load(t, 20)

	scan := NewSeqScan(txn.NewID(), tt.file, "t")
	require.Equal(t, "t.a", scan.Schema().Cols[0].Name)
	require.Equal(t, "t", scan.Alias())

	rows, err := Collect(scan)
	require.NoError(t, err)
	require.Len(t, rows, 20)
	for i, row := range rows {
		require.Equal(t, int32(i), row.Field(0).Int)
		require.NotNil(t, row.RID)
	}
}

func TestSeqScan_Protocol(t *testing.T) {
	tt := newTestTable(t)
	tt.load(t, 2)

	scan := NewSeqScan(txn.NewID(), tt.file, "")
	_, err := scan.Next()
	require.ErrorIs(t, err, ErrNotOpen)

	require.NoError(t, scan.Open())
	ok, err := scan.HasNext()
	require.NoError(t, err)
	require.True(t, ok)
	_, err = scan.Next()
	require.NoError(t, err)
	_, err = scan.Next()
	require.NoError(t, err)
	_, err = scan.Next()
	require.ErrorIs(t, err, ErrEndOfSequence)

	require.NoError(t, scan.Rewind())
	row, err := scan.Next()
	require.NoError(t, err)
	require.Equal(t, int32(0), row.Field(0).Int)
	scan.Close()
}

func TestFilter(t *testing.T) {
	tt := newTestTable(t)
	tt.load(t, 10)
	tid := txn.NewID()

	cases := []struct {
		op   record.Op
		v    int32
		want int
	}{
		{record.OpEquals, 3, 1},
		{record.OpNotEquals, 3, 9},
		{record.OpLessThan, 3, 3},
		{record.OpLessThanOrEq, 3, 4},
		{record.OpGreaterThan, 3, 6},
		{record.OpGreaterThanOrEq, 3, 7},
		{record.OpLike, 3, 1},
	}
	for _, tc := range cases {
		f, err := NewFilter(NewPredicate(0, tc.op, record.IntValue(tc.v)), NewSeqScan(tid, tt.file, "t"))
		require.NoError(t, err)
		rows, err := Collect(f)
		require.NoError(t, err)
		require.Len(t, rows, tc.want, tc.op.String())
	}
}

func TestFilter_RewindAndBadField(t *testing.T) {
	tt := newTestTable(t)
	tt.load(t, 5)
	tid := txn.NewID()

	_, err := NewFilter(NewPredicate(2, record.OpEquals, record.IntValue(1)), NewSeqScan(tid, tt.file, ""))
	require.ErrorIs(t, err, record.ErrNoSuchField)

	f, err := NewFilter(NewPredicate(1, record.OpGreaterThan, record.IntValue(20)), NewSeqScan(tid, tt.file, ""))
	require.NoError(t, err)
	require.NoError(t, f.Open())
	first, err := f.Next()
	require.NoError(t, err)
	require.Equal(t, int32(30), first.Field(1).Int)

	require.NoError(t, f.Rewind())
	again, err := f.Next()
	require.NoError(t, err)
	require.Equal(t, first.Values, again.Values)
	f.Close()
}

func TestInsert_SchemaMismatch(t *testing.T) {
	tt := newTestTable(t)
	oneString := record.NewSchema([]record.ColumnType{record.ColString}, []string{"s"})
	src, err := NewValues(oneString, record.NewRow(record.StringValue("x")))
	require.NoError(t, err)

	_, err = NewInsert(txn.NewID(), tt.pool, tt.cat, src, tt.file.ID())
	require.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = NewInsert(txn.NewID(), tt.pool, tt.cat, src, tt.file.ID()+1)
	require.ErrorIs(t, err, catalog.ErrUnknownTable)
}

func TestInsert_YieldsCountOnce(t *testing.T) {
	tt := newTestTable(t)
	tid := txn.NewID()
	src, err := NewValues(twoInts, record.NewRow(record.IntValue(1), record.IntValue(2)))
	require.NoError(t, err)

	ins, err := NewInsert(tid, tt.pool, tt.cat, src, tt.file.ID())
	require.NoError(t, err)
	require.Equal(t, "count", ins.Schema().Cols[0].Name)

	require.NoError(t, ins.Open())
	row, err := ins.Next()
	require.NoError(t, err)
	require.Equal(t, int32(1), row.Field(0).Int)
	_, err = ins.Next()
	require.ErrorIs(t, err, ErrEndOfSequence)
	ins.Close()

	rows, err := Collect(NewSeqScan(tid, tt.file, ""))
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestDelete_FilteredRows(t *testing.T) {
	tt := newTestTable(t)
	tt.load(t, 10)

	tid := txn.NewID()
	f, err := NewFilter(NewPredicate(0, record.OpLessThan, record.IntValue(4)), NewSeqScan(tid, tt.file, "t"))
	require.NoError(t, err)

	out, err := Collect(NewDelete(tid, tt.pool, f))
	require.NoError(t, err)
	require.Equal(t, int32(4), out[0].Field(0).Int)
	require.NoError(t, tt.pool.TransactionComplete(tid, true))

	rows, err := Collect(NewSeqScan(txn.NewID(), tt.file, ""))
	require.NoError(t, err)
	require.Len(t, rows, 6)
	require.Equal(t, int32(4), rows[0].Field(0).Int)
}

func TestDelete_AbortKeepsRows(t *testing.T) {
	tt := newTestTable(t)
	tt.load(t, 3)

	tid := txn.NewID()
	out, err := Collect(NewDelete(tid, tt.pool, NewSeqScan(tid, tt.file, "")))
	require.NoError(t, err)
	require.Equal(t, int32(3), out[0].Field(0).Int)
	require.NoError(t, tt.pool.TransactionComplete(tid, false))

	rows, err := Collect(NewSeqScan(txn.NewID(), tt.file, ""))
	require.NoError(t, err)
	require.Len(t, rows, 3)
}

func TestPredicate_Strings(t *testing.T) {
	row := record.NewRow(record.IntValue(1), record.StringValue("hello world"))

	require.True(t, NewPredicate(1, record.OpLike, record.StringValue("lo w")).Matches(row))
	require.False(t, NewPredicate(1, record.OpEquals, record.StringValue("hello")).Matches(row))
	require.False(t, NewPredicate(5, record.OpEquals, record.IntValue(1)).Matches(row))
	require.Equal(t, "f1 LIKE lo w", NewPredicate(1, record.OpLike, record.StringValue("lo w")).String())
}

func TestValues_RejectsBadRows(t *testing.T) {
	_, err := NewValues(twoInts, record.NewRow(record.IntValue(1)))
	require.ErrorIs(t, err, record.ErrSchemaMismatch)
}
