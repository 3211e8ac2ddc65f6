package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/tuannm99/heapdb/internal/bufferpool"
	"github.com/tuannm99/heapdb/internal/heap"
	"github.com/tuannm99/heapdb/internal/record"
	"github.com/tuannm99/heapdb/internal/storage"
)

var (
	ErrUnknownTable = errors.New("catalog: unknown table")
	ErrNilFile      = errors.New("catalog: nil heap file")
)

// Table is one registered table. PrimaryKey is informational only.
type Table struct {
	File       *heap.HeapFile
	Name       string
	PrimaryKey string
}

func (t *Table) ID() storage.TableID   { return t.File.ID() }
func (t *Table) Schema() record.Schema { return t.File.Schema() }

// Catalog maps table ids and names to heap files. It is safe for
// concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	byID   map[storage.TableID]*Table
	byName map[string]*Table
}

var _ bufferpool.FileResolver = (*Catalog)(nil)

func New() *Catalog {
	return &Catalog{
		byID:   make(map[storage.TableID]*Table),
		byName: make(map[string]*Table),
	}
}

// AddTable registers file under name. A table already registered with the
// same id or the same name is replaced. An empty name gets a generated one.
func (c *Catalog) AddTable(file *heap.HeapFile, name, primaryKey string) error {
	if file == nil {
		return ErrNilFile
	}
	if name == "" {
		name = fmt.Sprintf("table_%08x", uint32(file.ID()))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.byID[file.ID()]; ok {
		c.drop(old)
	}
	if old, ok := c.byName[name]; ok {
		c.drop(old)
	}

	t := &Table{File: file, Name: name, PrimaryKey: primaryKey}
	c.byID[file.ID()] = t
	c.byName[name] = t

	slog.Info("catalog: added table", "name", name, "id", file.ID(), "schema", file.Schema().String())
	return nil
}

// drop removes t from both indexes. Caller holds c.mu.
func (c *Catalog) drop(t *Table) {
	delete(c.byID, t.ID())
	if cur, ok := c.byName[t.Name]; ok && cur == t {
		delete(c.byName, t.Name)
	}
}

func (c *Catalog) lookup(id storage.TableID) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownTable, id)
	}
	return t, nil
}

// Table returns the table registered under name.
func (c *Catalog) Table(name string) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return t, nil
}

func (c *Catalog) TableID(name string) (storage.TableID, error) {
	t, err := c.Table(name)
	if err != nil {
		return 0, err
	}
	return t.ID(), nil
}

func (c *Catalog) Schema(id storage.TableID) (record.Schema, error) {
	t, err := c.lookup(id)
	if err != nil {
		return record.Schema{}, err
	}
	return t.Schema(), nil
}

func (c *Catalog) HeapFile(id storage.TableID) (*heap.HeapFile, error) {
	t, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	return t.File, nil
}

// DBFile lets the buffer pool resolve a table id to its file.
func (c *Catalog) DBFile(id storage.TableID) (bufferpool.DBFile, error) {
	return c.HeapFile(id)
}

func (c *Catalog) TableName(id storage.TableID) (string, error) {
	t, err := c.lookup(id)
	if err != nil {
		return "", err
	}
	return t.Name, nil
}

func (c *Catalog) PrimaryKey(id storage.TableID) (string, error) {
	t, err := c.lookup(id)
	if err != nil {
		return "", err
	}
	return t.PrimaryKey, nil
}

// TableIDs lists registered ids in ascending order.
func (c *Catalog) TableIDs() []storage.TableID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]storage.TableID, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Tables lists registered tables ordered by name.
func (c *Catalog) Tables() []*Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Table, 0, len(c.byID))
	for _, t := range c.byID {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *Table) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Clear forgets every table. Files are not closed.
func (c *Catalog) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.byID)
	clear(c.byName)
}
