package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/tuannm99/heapdb/internal/catalog"
	"github.com/tuannm99/heapdb/internal/engine"
	"github.com/tuannm99/heapdb/internal/lock"
	"github.com/tuannm99/heapdb/internal/record"
	"github.com/tuannm99/heapdb/internal/txn"
)

type benchOptions struct {
	Table   string
	Workers int
	Rows    int // per worker
	Batch   int // rows per transaction
}

type benchResult struct {
	Rows     int64
	Aborts   int64
	Elapsed  time.Duration
	Scanned  int
	Workers  int
	PerTxn   int
	Table    string
	TableNew bool
}

func (r benchResult) print(w io.Writer) {
	rate := float64(r.Rows) / r.Elapsed.Seconds()
	created := ""
	if r.TableNew {
		created = " (created)"
	}
	fmt.Fprintf(w, "table %s%s: %s rows by %d workers (%d per txn) in %s\n",
		r.Table, created, humanize.Comma(r.Rows), r.Workers, r.PerTxn, r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  %s rows/s, %s lock aborts retried, %s rows visible after\n",
		humanize.Comma(int64(rate)), humanize.Comma(r.Aborts), humanize.Comma(int64(r.Scanned)))
}

// runBench inserts Workers*Rows rows from concurrent transactions, retrying
// any transaction aborted by the lock manager, then counts the table.
func runBench(ctx context.Context, db *engine.Database, opts benchOptions) (benchResult, error) {
	if opts.Workers <= 0 || opts.Rows <= 0 || opts.Batch <= 0 {
		return benchResult{}, errors.New("bench: workers, rows and batch must be positive")
	}

	res := benchResult{Table: opts.Table, Workers: opts.Workers, PerTxn: opts.Batch}
	if _, err := db.OpenTable(opts.Table); errors.Is(err, catalog.ErrUnknownTable) {
		schema := record.NewSchema([]record.ColumnType{record.ColInt, record.ColInt}, []string{"worker", "seq"})
		if _, err := db.CreateTable(opts.Table, schema, ""); err != nil {
			return res, err
		}
		res.TableNew = true
	} else if err != nil {
		return res, err
	}

	var inserted, aborts atomic.Int64
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for w := range opts.Workers {
		g.Go(func() error {
			for from := 0; from < opts.Rows; from += opts.Batch {
				to := min(from+opts.Batch, opts.Rows)
				for {
					if err := ctx.Err(); err != nil {
						return err
					}
					err := db.Update(func(tid txn.ID) error {
						for i := from; i < to; i++ {
							if _, err := db.InsertRow(tid, opts.Table, record.IntValue(int32(w)), record.IntValue(int32(i))); err != nil {
								return err
							}
						}
						return nil
					})
					if errors.Is(err, lock.ErrTransactionAborted) {
						aborts.Add(1)
						continue
					}
					if err != nil {
						return err
					}
					inserted.Add(int64(to - from))
					break
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	res.Elapsed = time.Since(start)
	res.Rows = inserted.Load()
	res.Aborts = aborts.Load()

	err := db.Update(func(tid txn.ID) error {
		hf, err := db.OpenTable(opts.Table)
		if err != nil {
			return err
		}
		it := hf.Iterator(tid)
		if err := it.Open(); err != nil {
			return err
		}
		defer it.Close()
		for {
			ok, err := it.HasNext()
			if err != nil || !ok {
				return err
			}
			if _, err := it.Next(); err != nil {
				return err
			}
			res.Scanned++
		}
	})
	return res, err
}
