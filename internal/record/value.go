package record

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Value is one field of a row. Type selects which of Int/Str is meaningful.
type Value struct {
	Type ColumnType
	Int  int32
	Str  string
}

func IntValue(v int32) Value     { return Value{Type: ColInt, Int: v} }
func StringValue(s string) Value { return Value{Type: ColString, Str: s} }

// TruncateString cuts s to at most StringLen bytes without splitting a
// UTF-8 sequence.
func TruncateString(s string) string {
	if len(s) <= StringLen {
		return s
	}
	n := StringLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Stored returns v as it reads back after encoding.
func (v Value) Stored() Value {
	if v.Type == ColString {
		v.Str = TruncateString(v.Str)
	}
	return v
}

func (v Value) String() string {
	switch v.Type {
	case ColInt:
		return strconv.FormatInt(int64(v.Int), 10)
	case ColString:
		return v.Str
	default:
		return "<invalid>"
	}
}

// Op is a comparison operator usable by predicates.
type Op uint8

const (
	OpEquals Op = iota
	OpGreaterThan
	OpLessThan
	OpLessThanOrEq
	OpGreaterThanOrEq
	OpLike
	OpNotEquals
)

func (o Op) String() string {
	switch o {
	case OpEquals:
		return "="
	case OpGreaterThan:
		return ">"
	case OpLessThan:
		return "<"
	case OpLessThanOrEq:
		return "<="
	case OpGreaterThanOrEq:
		return ">="
	case OpLike:
		return "LIKE"
	case OpNotEquals:
		return "<>"
	default:
		return "?"
	}
}

func ParseOp(s string) (Op, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "=", "==":
		return OpEquals, nil
	case ">":
		return OpGreaterThan, nil
	case "<":
		return OpLessThan, nil
	case "<=":
		return OpLessThanOrEq, nil
	case ">=":
		return OpGreaterThanOrEq, nil
	case "LIKE":
		return OpLike, nil
	case "<>", "!=":
		return OpNotEquals, nil
	default:
		return 0, fmt.Errorf("record: unknown operator %q", s)
	}
}

// Compare evaluates `v op other`. Values of different types never match.
func (v Value) Compare(op Op, other Value) bool {
	if v.Type != other.Type {
		return false
	}

	switch v.Type {
	case ColInt:
		return compareOrdered(op, v.Int, other.Int, v.Int == other.Int)
	case ColString:
		if op == OpLike {
			return strings.Contains(v.Str, other.Str)
		}
		return compareOrdered(op, v.Str, other.Str, v.Str == other.Str)
	default:
		return false
	}
}

func compareOrdered[T int32 | string](op Op, a, b T, like bool) bool {
	switch op {
	case OpEquals:
		return a == b
	case OpNotEquals:
		return a != b
	case OpGreaterThan:
		return a > b
	case OpGreaterThanOrEq:
		return a >= b
	case OpLessThan:
		return a < b
	case OpLessThanOrEq:
		return a <= b
	case OpLike:
		return like
	default:
		return false
	}
}
