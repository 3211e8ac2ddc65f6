package record

import (
	"errors"
	"fmt"
	"strings"
)

// StringLen is the fixed payload width of a string column.
const StringLen = 128

var (
	ErrFormat          = errors.New("record: malformed row bytes")
	ErrSchemaMismatch  = errors.New("record: schema/values mismatch")
	ErrUnsupportedType = errors.New("record: unsupported type")
	ErrNoSuchField     = errors.New("record: no such field")
)

type ColumnType uint8

const (
	ColInt ColumnType = iota + 1
	ColString
)

// Len is the encoded width in bytes.
func (t ColumnType) Len() int {
	switch t {
	case ColInt:
		return 4
	case ColString:
		return 4 + StringLen
	default:
		return 0
	}
}

func (t ColumnType) String() string {
	switch t {
	case ColInt:
		return "int"
	case ColString:
		return "string"
	default:
		return "unknown"
	}
}

// ParseColumnType accepts "int" and "string", case-insensitive.
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int":
		return ColInt, nil
	case "string":
		return ColString, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedType, s)
	}
}

func (t ColumnType) MarshalText() ([]byte, error) {
	if t.Len() == 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedType, t)
	}
	return []byte(t.String()), nil
}

func (t *ColumnType) UnmarshalText(b []byte) error {
	ct, err := ParseColumnType(string(b))
	if err != nil {
		return err
	}
	*t = ct
	return nil
}
