package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// PageFile is a flat file made of page-sized blocks, page 0 first.
// Reads and writes are positional so they may run concurrently.
type PageFile struct {
	path     string
	pageSize int

	mu sync.RWMutex
	f  *os.File
}

// OpenPageFile opens (or creates, without truncating) the file at path.
func OpenPageFile(path string, pageSize int) (*PageFile, error) {
	if pageSize <= 0 {
		return nil, ErrBadPageSize
	}
	if err := os.MkdirAll(filepath.Dir(path), FileMode0755); err != nil {
		return nil, err
	}
	// RDWR | CREATE (no truncate)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, FileMode0644)
	if err != nil {
		return nil, err
	}
	return &PageFile{path: path, pageSize: pageSize, f: f}, nil
}

func (pf *PageFile) Path() string  { return pf.path }
func (pf *PageFile) PageSize() int { return pf.pageSize }

// PageCount = file length / page size. A trailing partial page is ignored.
func (pf *PageFile) PageCount() (int, error) {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	if pf.f == nil {
		return 0, ErrFileClosed
	}
	info, err := pf.f.Stat()
	if err != nil {
		return 0, err
	}
	return int(info.Size() / int64(pf.pageSize)), nil
}

// ReadPage reads exactly one page. Reading past the last page fails with
// ErrUnknownPage.
func (pf *PageFile) ReadPage(pageNo int) ([]byte, error) {
	n, err := pf.PageCount()
	if err != nil {
		return nil, err
	}
	if pageNo < 0 || pageNo >= n {
		return nil, fmt.Errorf("%w: page %d of %d in %s", ErrUnknownPage, pageNo, n, pf.path)
	}

	pf.mu.RLock()
	defer pf.mu.RUnlock()
	if pf.f == nil {
		return nil, ErrFileClosed
	}

	buf := make([]byte, pf.pageSize)
	read, err := pf.f.ReadAt(buf, int64(pageNo)*int64(pf.pageSize))
	if err != nil && err != io.EOF {
		return nil, err
	}
	if read != pf.pageSize {
		return nil, ErrShortPageIO
	}
	return buf, nil
}

// WritePage writes exactly one page-sized buffer at its slot. Writing at
// PageCount() appends a page.
func (pf *PageFile) WritePage(pageNo int, src []byte) error {
	if len(src) != pf.pageSize {
		return fmt.Errorf("%w: got %d want %d", ErrWrongSize, len(src), pf.pageSize)
	}
	if pageNo < 0 {
		return fmt.Errorf("%w: page %d", ErrUnknownPage, pageNo)
	}

	pf.mu.RLock()
	defer pf.mu.RUnlock()
	if pf.f == nil {
		return ErrFileClosed
	}

	n, err := pf.f.WriteAt(src, int64(pageNo)*int64(pf.pageSize))
	if err != nil {
		return err
	}
	if n != pf.pageSize {
		return io.ErrShortWrite
	}
	return nil
}

// Sync flushes the file to stable storage.
func (pf *PageFile) Sync() error {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	if pf.f == nil {
		return ErrFileClosed
	}
	return pf.f.Sync()
}

func (pf *PageFile) Close() error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pf.f == nil {
		return nil
	}
	err := pf.f.Close()
	pf.f = nil
	return err
}
