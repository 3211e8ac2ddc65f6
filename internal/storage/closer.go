package storage

import (
	"io"
	"log/slog"
)

// CloseQuietly closes c on a path that has no error to return and logs a
// failure instead.
func CloseQuietly(c io.Closer, what string, args ...any) {
	if err := c.Close(); err != nil {
		slog.Warn("storage: close "+what, append(args, "err", err)...)
	}
}
