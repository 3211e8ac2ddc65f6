package storage

import (
	"fmt"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

// TableID identifies a heap file for the lifetime of the process.
type TableID uint32

// TableIDFromPath hashes the canonical (absolute, cleaned) path of a heap file.
// The same path always yields the same id.
func TableIDFromPath(path string) (TableID, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("storage: resolve table path %q: %w", path, err)
	}
	return TableID(uint32(xxhash.Sum64String(filepath.Clean(abs)))), nil
}

// PageID = (table, page number). It is comparable and used as a map key by
// the buffer pool and the lock manager.
type PageID struct {
	Table  TableID
	PageNo int
}

func (p PageID) String() string {
	return fmt.Sprintf("%d:%d", p.Table, p.PageNo)
}

// RowID points at a slot of a page.
type RowID struct {
	Page PageID
	Slot int
}

func (r RowID) String() string {
	return fmt.Sprintf("(%s,%d)", r.Page, r.Slot)
}
