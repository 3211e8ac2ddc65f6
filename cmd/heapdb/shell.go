package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/tuannm99/heapdb/internal/catalog"
	"github.com/tuannm99/heapdb/internal/engine"
	"github.com/tuannm99/heapdb/internal/exec"
	"github.com/tuannm99/heapdb/internal/heap"
	"github.com/tuannm99/heapdb/internal/lock"
	"github.com/tuannm99/heapdb/internal/record"
	"github.com/tuannm99/heapdb/internal/txn"
)

const shellHelp = `commands:
  tables                               list tables
  create <name> (<field> <type> [pk], ...)
  load <schema file>                   register tables of a schema file
  begin | commit | abort               explicit transaction (default: one per command)
  insert <table> <v1> <v2> ...
  scan <table> [<field> <op> <value>]
  delete <table> [<field> <op> <value>]
  agg <table> <min|max|sum|avg|count> <field> [by <field>]
  join <left> <field> <op> <right> <field>
  stats                                buffer pool and table sizes
  dump <table> <page>                  page header bitmap and slots
  \help | \q`

var errQuit = errors.New("quit")

// shell runs one command per line against a database. Without an explicit
// begin, every command runs in its own transaction.
type shell struct {
	db  *engine.Database
	out io.Writer
	tid txn.ID
}

func newShell(db *engine.Database, out io.Writer) *shell {
	return &shell{db: db, out: out}
}

func (s *shell) exec(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	cmd, rest, _ := strings.Cut(line, " ")
	cmd = strings.ToLower(cmd)
	rest = strings.TrimSpace(rest)

	switch cmd {
	case `\q`, "quit", "exit":
		return errQuit
	case `\help`, "help":
		fmt.Fprintln(s.out, shellHelp)
		return nil
	case "tables":
		return s.tables()
	case "create":
		def, err := catalog.ParseTableDef(rest)
		if err != nil {
			return err
		}
		if _, err := s.db.CreateTable(def.Name, def.Schema, def.PrimaryKey); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "created %s (%s)\n", def.Name, def.Schema)
		return nil
	case "load":
		names, err := s.db.LoadSchema(rest)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "loaded %d table(s): %s\n", len(names), strings.Join(names, ", "))
		return nil
	case "begin":
		if s.tid != txn.None {
			return fmt.Errorf("transaction %s already running", s.tid)
		}
		tid, err := s.db.Begin()
		if err != nil {
			return err
		}
		s.tid = tid
		fmt.Fprintf(s.out, "begin %s\n", tid)
		return nil
	case "commit", "abort":
		if s.tid == txn.None {
			return errors.New("no transaction running")
		}
		tid := s.tid
		s.tid = txn.None
		if cmd == "commit" {
			return s.db.Commit(tid)
		}
		return s.db.Abort(tid)
	case "insert":
		return s.run(func(tid txn.ID) error { return s.insert(tid, rest) })
	case "scan":
		return s.run(func(tid txn.ID) error { return s.scan(tid, rest) })
	case "delete":
		return s.run(func(tid txn.ID) error { return s.delete(tid, rest) })
	case "agg":
		return s.run(func(tid txn.ID) error { return s.aggregate(tid, rest) })
	case "join":
		return s.run(func(tid txn.ID) error { return s.join(tid, rest) })
	case "stats":
		return s.stats()
	case "dump":
		return s.run(func(tid txn.ID) error { return s.dump(tid, rest) })
	default:
		return fmt.Errorf("unknown command %q (try \\help)", cmd)
	}
}

func (s *shell) inTxn() bool { return s.tid != txn.None }

// abortOpen aborts the explicit transaction, if any.
func (s *shell) abortOpen() {
	if s.tid == txn.None {
		return
	}
	if err := s.db.Abort(s.tid); err != nil {
		fmt.Fprintf(s.out, "abort %s: %v\n", s.tid, err)
	}
	s.tid = txn.None
}

// run executes fn in the explicit transaction, or in a fresh one that is
// committed on success. A lock abort also ends the explicit transaction.
func (s *shell) run(fn func(tid txn.ID) error) error {
	if s.tid == txn.None {
		return s.db.Update(fn)
	}
	err := fn(s.tid)
	if errors.Is(err, lock.ErrTransactionAborted) {
		tid := s.tid
		s.tid = txn.None
		return errors.Join(err, s.db.Abort(tid))
	}
	return err
}

func (s *shell) tables() error {
	for _, t := range s.db.Catalog().Tables() {
		pk := ""
		if t.PrimaryKey != "" {
			pk = " pk=" + t.PrimaryKey
		}
		fmt.Fprintf(s.out, "%-16s %s%s\n", t.Name, t.Schema(), pk)
	}
	return nil
}

func (s *shell) insert(tid txn.ID, args string) error {
	name, rest, _ := strings.Cut(args, " ")
	hf, err := s.db.OpenTable(name)
	if err != nil {
		return err
	}
	values, err := parseValues(hf.Schema(), strings.Fields(rest))
	if err != nil {
		return err
	}
	src, err := exec.NewValues(hf.Schema(), record.NewRow(values...))
	if err != nil {
		return err
	}
	ins, err := exec.NewInsert(tid, s.db.Pool(), s.db.Catalog(), src, hf.ID())
	if err != nil {
		return err
	}
	return s.printCount("inserted", ins)
}

func (s *shell) scan(tid txn.ID, args string) error {
	op, err := s.source(tid, args)
	if err != nil {
		return err
	}
	return s.printRows(op)
}

// printRows drains op as a tab-separated table with a header line.
func (s *shell) printRows(op exec.Operator) error {
	rows, err := exec.Collect(op)
	if err != nil {
		return err
	}
	names := make([]string, op.Schema().NumCols())
	for i, c := range op.Schema().Cols {
		names[i] = c.Name
	}
	fmt.Fprintln(s.out, strings.Join(names, "\t"))
	for _, r := range rows {
		fmt.Fprintln(s.out, strings.ReplaceAll(r.String(), " ", "\t"))
	}
	fmt.Fprintf(s.out, "(%d rows)\n", len(rows))
	return nil
}

// aggregate runs "<table> <op> <field> [by <field>]".
func (s *shell) aggregate(tid txn.ID, args string) error {
	parts := strings.Fields(args)
	if len(parts) != 3 && !(len(parts) == 5 && strings.EqualFold(parts[3], "by")) {
		return errors.New("usage: agg <table> <op> <field> [by <field>]")
	}
	hf, err := s.db.OpenTable(parts[0])
	if err != nil {
		return err
	}
	op, err := exec.ParseAggOp(parts[1])
	if err != nil {
		return err
	}
	afield, err := hf.Schema().FieldIndex(parts[2])
	if err != nil {
		return err
	}
	gfield := exec.NoGrouping
	if len(parts) == 5 {
		if gfield, err = hf.Schema().FieldIndex(parts[4]); err != nil {
			return err
		}
	}
	agg, err := exec.NewAggregate(exec.NewSeqScan(tid, hf, parts[0]), afield, gfield, op)
	if err != nil {
		return err
	}
	return s.printRows(agg)
}

// join runs "<left> <field> <op> <right> <field>" as a nested-loop join.
func (s *shell) join(tid txn.ID, args string) error {
	parts := strings.Fields(args)
	if len(parts) != 5 {
		return errors.New("usage: join <left> <field> <op> <right> <field>")
	}
	left, err := s.db.OpenTable(parts[0])
	if err != nil {
		return err
	}
	right, err := s.db.OpenTable(parts[3])
	if err != nil {
		return err
	}
	lfield, err := left.Schema().FieldIndex(parts[1])
	if err != nil {
		return err
	}
	op, err := record.ParseOp(parts[2])
	if err != nil {
		return err
	}
	rfield, err := right.Schema().FieldIndex(parts[4])
	if err != nil {
		return err
	}
	j, err := exec.NewJoin(
		exec.NewJoinPredicate(lfield, op, rfield),
		exec.NewSeqScan(tid, left, parts[0]),
		exec.NewSeqScan(tid, right, parts[3]),
	)
	if err != nil {
		return err
	}
	return s.printRows(j)
}

func (s *shell) delete(tid txn.ID, args string) error {
	op, err := s.source(tid, args)
	if err != nil {
		return err
	}
	return s.printCount("deleted", exec.NewDelete(tid, s.db.Pool(), op))
}

// source builds "<table> [<field> <op> <value>]" into a scan, filtered when
// a predicate is given.
func (s *shell) source(tid txn.ID, args string) (exec.Operator, error) {
	parts := strings.Fields(args)
	if len(parts) != 1 && len(parts) != 4 {
		return nil, errors.New("usage: <table> [<field> <op> <value>]")
	}
	hf, err := s.db.OpenTable(parts[0])
	if err != nil {
		return nil, err
	}
	scan := exec.NewSeqScan(tid, hf, parts[0])
	if len(parts) == 1 {
		return scan, nil
	}

	schema := hf.Schema()
	field, err := schema.FieldIndex(parts[1])
	if err != nil {
		return nil, err
	}
	op, err := record.ParseOp(parts[2])
	if err != nil {
		return nil, err
	}
	operand, err := parseValue(schema.Cols[field].Type, parts[3])
	if err != nil {
		return nil, err
	}
	return exec.NewFilter(exec.NewPredicate(field, op, operand), scan)
}

func (s *shell) printCount(verb string, op exec.Operator) error {
	rows, err := exec.Collect(op)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s %s row(s)\n", verb, rows[0].Field(0))
	return nil
}

func (s *shell) stats() error {
	pool := s.db.Pool()
	fmt.Fprintf(s.out, "buffer pool: %d/%d pages cached, page size %s\n",
		pool.Len(), pool.Capacity(), humanize.IBytes(uint64(s.db.PageSize())))
	for _, t := range s.db.Catalog().Tables() {
		n, err := t.File.PageCount()
		if err != nil {
			return err
		}
		slots := heap.SlotCount(t.File.PageSize(), t.Schema().RowSize())
		fmt.Fprintf(s.out, "%-16s %s page(s), %s, %d slots/page\n",
			t.Name, humanize.Comma(int64(n)), humanize.IBytes(uint64(n*t.File.PageSize())), slots)
	}
	return nil
}

func (s *shell) dump(tid txn.ID, args string) error {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return errors.New("usage: dump <table> <page>")
	}
	hf, err := s.db.OpenTable(parts[0])
	if err != nil {
		return err
	}
	pageNo, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("page number %q: %w", parts[1], err)
	}
	hp, err := hf.Page(tid, pageNo)
	if err != nil {
		return err
	}
	return hp.Debug(s.out)
}

func parseValues(schema record.Schema, raw []string) ([]record.Value, error) {
	if len(raw) != schema.NumCols() {
		return nil, fmt.Errorf("%w: want %d values, got %d", record.ErrSchemaMismatch, schema.NumCols(), len(raw))
	}
	out := make([]record.Value, len(raw))
	for i, r := range raw {
		v, err := parseValue(schema.Cols[i].Type, r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseValue(t record.ColumnType, raw string) (record.Value, error) {
	switch t {
	case record.ColInt:
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return record.Value{}, fmt.Errorf("bad int %q: %w", raw, err)
		}
		return record.IntValue(int32(n)), nil
	case record.ColString:
		return record.StringValue(strings.Trim(raw, `'"`)), nil
	default:
		return record.Value{}, fmt.Errorf("%w: %s", record.ErrUnsupportedType, t)
	}
}
