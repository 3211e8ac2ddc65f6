package heap

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"unicode"
	"unicode/utf8"
)

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Fprintf(format string, a ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, a...)
}

func (e *errWriter) Fprintln(a ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintln(e.w, a...)
}

// printable: valid UTF-8 shown rune by rune, anything else byte by byte;
// control characters become '.'.
func printable(b []byte) string {
	var buf bytes.Buffer
	if utf8.Valid(b) {
		for _, r := range string(b) {
			if unicode.IsPrint(r) {
				buf.WriteRune(r)
			} else {
				buf.WriteByte('.')
			}
		}
		return buf.String()
	}
	for _, c := range b {
		if c < utf8.RuneSelf && unicode.IsPrint(rune(c)) {
			buf.WriteByte(c)
		} else {
			buf.WriteByte('.')
		}
	}
	return buf.String()
}

// Debug prints the header bitmap and every used slot, decoded and as a
// byte preview.
func (hp *HeapPage) Debug(w io.Writer) error {
	const maxPreview = 24

	ew := &errWriter{w: w}
	owner, dirty := hp.IsDirty()

	ew.Fprintf("=== Page %s ===\n", hp.pid)
	ew.Fprintf("pageSize=%d rowSize=%d slots=%d header=%d used=%d dirty=%t",
		hp.pageSize, hp.schema.RowSize(), hp.numSlots, len(hp.header),
		hp.numSlots-hp.EmptySlotCount(), dirty)
	if dirty {
		ew.Fprintf(" by=%s", owner)
	}
	ew.Fprintln()
	ew.Fprintf("bitmap=%s\n", hex.EncodeToString(hp.header))

	data, err := hp.Bytes()
	if err != nil {
		return err
	}
	rowSize := hp.schema.RowSize()
	ew.Fprintln("\n-- Slots --")
	if hp.EmptySlotCount() == hp.numSlots {
		ew.Fprintln("(none)")
	}
	for i, row := range hp.rows {
		if ew.err != nil {
			break
		}
		if row == nil {
			continue
		}
		off := len(hp.header) + i*rowSize
		preview := data[off : off+min(rowSize, maxPreview)]
		ew.Fprintf("[%d] off=%d %s\n", i, off, row)
		ew.Fprintf("     hex=%s ascii=%q\n", hex.EncodeToString(preview), printable(preview))
	}

	ew.Fprintln("=== End Page ===")
	return ew.err
}

func (hp *HeapPage) DebugString() string {
	var b bytes.Buffer
	if err := hp.Debug(&b); err != nil {
		_, _ = b.WriteString("\n<debug write error: " + err.Error() + ">\n")
	}
	return b.String()
}
