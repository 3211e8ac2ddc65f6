package bufferpool

import (
	"github.com/tuannm99/heapdb/internal/record"
	"github.com/tuannm99/heapdb/internal/storage"
	"github.com/tuannm99/heapdb/internal/txn"
)

// Perm is the access a caller asks for when fetching a page.
type Perm uint8

const (
	ReadOnly Perm = iota
	ReadWrite
)

func (p Perm) String() string {
	if p == ReadWrite {
		return "read-write"
	}
	return "read-only"
}

// Page is a cached page as the pool sees it.
type Page interface {
	ID() storage.PageID
	// IsDirty returns the transaction that last dirtied the page.
	IsDirty() (txn.ID, bool)
	MarkDirty(dirty bool, tid txn.ID)
	// SetBeforeImage makes the current content the rollback baseline.
	SetBeforeImage() error
	// Rollback restores the baseline in place and clears the dirty flag.
	Rollback() error
}

// DBFile is the on-disk side of a table.
type DBFile interface {
	ID() storage.TableID
	ReadPage(pid storage.PageID) (Page, error)
	WritePage(page Page) error
	InsertRow(tid txn.ID, row *record.Row) ([]Page, error)
	DeleteRow(tid txn.ID, row *record.Row) ([]Page, error)
}

// FileResolver maps a table id to its file.
type FileResolver interface {
	DBFile(id storage.TableID) (DBFile, error)
}
