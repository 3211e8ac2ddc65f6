package storage

import "errors"

const (
	OneB  = 1 << 0  // 1
	OneKB = 1 << 10 // 1,024

	// DefaultPageSize is the on-disk size of a heap page.
	DefaultPageSize = 4 * OneKB // 4,096
)

const (
	FileMode0644 = 0o644
	FileMode0755 = 0o755
)

var (
	ErrUnknownPage = errors.New("storage: page number out of range")
	ErrWrongSize   = errors.New("storage: buffer size != page size")
	ErrBadPageSize = errors.New("storage: page size must be positive")
	ErrFileClosed  = errors.New("storage: page file is closed")
	ErrShortPageIO = errors.New("storage: short page read/write")
	ErrRowNotFound = errors.New("storage: row not found at its location")
)
