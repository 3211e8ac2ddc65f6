package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tuannm99/heapdb/internal"
	"github.com/tuannm99/heapdb/internal/bufferpool"
	"github.com/tuannm99/heapdb/internal/catalog"
	"github.com/tuannm99/heapdb/internal/heap"
	"github.com/tuannm99/heapdb/internal/lock"
	"github.com/tuannm99/heapdb/internal/record"
	"github.com/tuannm99/heapdb/internal/storage"
	"github.com/tuannm99/heapdb/internal/txn"
)

var (
	ErrDatabaseClosed = errors.New("heapdb: database is closed")
	ErrTableExists    = errors.New("heapdb: table already exists")
	ErrBadTableName   = errors.New("heapdb: invalid table name")
)

const metaSuffix = ".meta.json"

type Options struct {
	DataDir      string
	PageSize     int
	PoolCapacity int
	LockTimeout  time.Duration
}

func OptionsFromConfig(cfg *internal.HeapDBConfig) Options {
	return Options{
		DataDir:      cfg.Storage.DataDir,
		PageSize:     cfg.Storage.PageSize,
		PoolCapacity: cfg.BufferPool.Capacity,
		LockTimeout:  cfg.BufferPool.LockTimeout,
	}
}

// TableMeta is persisted next to each table created through CreateTable so
// the table is registered again on the next Open.
type TableMeta struct {
	Name       string        `json:"name"`
	Schema     record.Schema `json:"schema"`
	PrimaryKey string        `json:"primary_key,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Database is the process context: one catalog, one lock manager and one
// buffer pool shared by every table and transaction.
type Database struct {
	opts    Options
	catalog *catalog.Catalog
	locks   *lock.Manager
	pool    *bufferpool.Pool

	mu     sync.Mutex
	closed bool
}

// Open prepares DataDir and registers every table created there earlier.
func Open(opts Options) (*Database, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = storage.DefaultPageSize
	}
	if opts.PoolCapacity <= 0 {
		opts.PoolCapacity = bufferpool.DefaultCapacity
	}

	cat := catalog.New()
	locks := lock.NewManager(opts.LockTimeout)
	db := &Database{
		opts:    opts,
		catalog: cat,
		locks:   locks,
		pool:    bufferpool.NewPool(opts.PoolCapacity, locks, cat),
	}

	if err := os.MkdirAll(db.tableDir(), storage.FileMode0755); err != nil {
		return nil, err
	}
	if err := db.openExisting(); err != nil {
		_ = db.closeFiles()
		return nil, err
	}

	slog.Info("heapdb: database opened",
		"data_dir", opts.DataDir, "page_size", opts.PageSize,
		"pool_capacity", opts.PoolCapacity, "tables", len(cat.TableIDs()))
	return db, nil
}

func (db *Database) Catalog() *catalog.Catalog { return db.catalog }
func (db *Database) Pool() *bufferpool.Pool    { return db.pool }
func (db *Database) Locks() *lock.Manager      { return db.locks }
func (db *Database) PageSize() int             { return db.opts.PageSize }

func (db *Database) tableDir() string {
	return filepath.Join(db.opts.DataDir, "tables")
}

func (db *Database) tablePath(name string) string {
	return filepath.Join(db.tableDir(), name+".dat")
}

func (db *Database) tableMetaPath(name string) string {
	return filepath.Join(db.tableDir(), name+metaSuffix)
}

func (db *Database) checkOpen() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrDatabaseClosed
	}
	return nil
}

func (db *Database) openExisting() error {
	entries, err := os.ReadDir(db.tableDir())
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), metaSuffix) {
			continue
		}
		meta, err := db.readTableMeta(strings.TrimSuffix(e.Name(), metaSuffix))
		if err != nil {
			return fmt.Errorf("heapdb: read %s: %w", e.Name(), err)
		}
		if _, err := db.register(db.tablePath(meta.Name), meta.Name, meta.Schema, meta.PrimaryKey); err != nil {
			return err
		}
	}
	return nil
}

func (db *Database) writeTableMeta(meta *TableMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(db.tableMetaPath(meta.Name), data, storage.FileMode0644)
}

func (db *Database) readTableMeta(name string) (*TableMeta, error) {
	data, err := os.ReadFile(db.tableMetaPath(name))
	if err != nil {
		return nil, err
	}
	var meta TableMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// register opens the heap file at path and adds it to the catalog. A table
// it replaces is closed.
func (db *Database) register(path, name string, schema record.Schema, pk string) (*heap.HeapFile, error) {
	var replaced []*heap.HeapFile
	if old, err := db.catalog.Table(name); err == nil {
		if mustAbs(path) == mustAbs(old.File.Path()) {
			return old.File, nil
		}
		replaced = append(replaced, old.File)
	}

	hf, err := heap.OpenHeapFile(path, schema, db.opts.PageSize, db.pool)
	if err != nil {
		return nil, err
	}
	if old, err := db.catalog.HeapFile(hf.ID()); err == nil {
		replaced = append(replaced, old)
	}
	if err := db.catalog.AddTable(hf, name, pk); err != nil {
		storage.CloseQuietly(hf, "table", "path", path)
		return nil, err
	}

	for _, old := range replaced {
		storage.CloseQuietly(old, "replaced table", "path", old.Path())
	}
	return hf, nil
}

func mustAbs(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

// CreateTable creates an empty table under DataDir and records its schema.
func (db *Database) CreateTable(name string, schema record.Schema, primaryKey string) (*heap.HeapFile, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	if name == "" || strings.ContainsAny(name, `/\ `) {
		return nil, fmt.Errorf("%w: %q", ErrBadTableName, name)
	}
	if primaryKey != "" {
		if _, err := schema.FieldIndex(primaryKey); err != nil {
			return nil, err
		}
	}
	if _, err := db.catalog.Table(name); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, name)
	}

	meta := &TableMeta{
		Name:       name,
		Schema:     schema,
		PrimaryKey: primaryKey,
		CreatedAt:  time.Now(),
	}
	if err := db.writeTableMeta(meta); err != nil {
		return nil, err
	}
	return db.register(db.tablePath(name), name, schema, primaryKey)
}

// OpenTable returns a registered table by name.
func (db *Database) OpenTable(name string) (*heap.HeapFile, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	t, err := db.catalog.Table(name)
	if err != nil {
		return nil, err
	}
	return t.File, nil
}

// LoadSchema registers every table of a schema file. Each table's rows live
// in <schema dir>/<name>.dat; a table registered earlier under the same name
// is replaced.
func (db *Database) LoadSchema(path string) ([]string, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	defs, err := catalog.ParseSchemaFile(path)
	if err != nil {
		return nil, fmt.Errorf("heapdb: load schema %s: %w", path, err)
	}

	dir := filepath.Dir(mustAbs(path))
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		if _, err := db.register(filepath.Join(dir, def.Name+".dat"), def.Name, def.Schema, def.PrimaryKey); err != nil {
			return names, err
		}
		names = append(names, def.Name)
	}
	return names, nil
}

// Begin starts a transaction. It only allocates an id; locks are taken
// lazily by page accesses.
func (db *Database) Begin() (txn.ID, error) {
	if err := db.checkOpen(); err != nil {
		return txn.None, err
	}
	tid := txn.NewID()
	slog.Debug("heapdb: begin", "txn", tid)
	return tid, nil
}

func (db *Database) Commit(tid txn.ID) error {
	return db.pool.TransactionComplete(tid, true)
}

func (db *Database) Abort(tid txn.ID) error {
	return db.pool.TransactionComplete(tid, false)
}

// Update runs fn in a new transaction, committing when fn succeeds and
// aborting otherwise.
func (db *Database) Update(fn func(tid txn.ID) error) error {
	tid, err := db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tid); err != nil {
		return errors.Join(err, db.Abort(tid))
	}
	return db.Commit(tid)
}

// InsertRow inserts values into the named table under tid.
func (db *Database) InsertRow(tid txn.ID, table string, values ...record.Value) (*record.Row, error) {
	hf, err := db.OpenTable(table)
	if err != nil {
		return nil, err
	}
	row := record.NewRow(values...)
	if err := db.pool.InsertRow(tid, hf.ID(), row); err != nil {
		return nil, err
	}
	return row, nil
}

// Close closes all table files. Committed pages are already on disk;
// changes of transactions still running are dropped.
func (db *Database) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	db.mu.Unlock()

	if n := len(db.locks.Waiting()); n > 0 {
		slog.Warn("heapdb: closing with blocked transactions", "waiting", n)
	}
	return db.closeFiles()
}

func (db *Database) closeFiles() error {
	var g errgroup.Group
	for _, t := range db.catalog.Tables() {
		g.Go(func() error {
			if err := t.File.Sync(); err != nil {
				return err
			}
			return t.File.Close()
		})
	}
	err := g.Wait()
	db.catalog.Clear()
	return err
}
