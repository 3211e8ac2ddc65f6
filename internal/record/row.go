package record

import (
	"strings"

	"github.com/tuannm99/heapdb/internal/storage"
)

// Row is a tuple of values. RID is set once the row is stored in a page
// and goes stale when the row is deleted.
type Row struct {
	Values []Value
	RID    *storage.RowID
}

func NewRow(values ...Value) *Row {
	return &Row{Values: values}
}

func (r *Row) Field(i int) Value       { return r.Values[i] }
func (r *Row) SetField(i int, v Value) { r.Values[i] = v }

// Placed reports whether the row currently carries a location.
func (r *Row) Placed() bool { return r.RID != nil }

func (r *Row) String() string {
	parts := make([]string, len(r.Values))
	for i, v := range r.Values {
		parts[i] = v.String()
	}
	return strings.Join(parts, " ")
}
