package record

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

// makeTestSchema builds a simple schema used across tests.
func makeTestSchema() Schema {
	return NewSchema(
		[]ColumnType{ColInt, ColString, ColInt},
		[]string{"id", "name", "age"},
	)
}

func TestEncodeDecodeRow_RoundTrip(t *testing.T) {
	schema := makeTestSchema()
	values := []Value{IntValue(-42), StringValue("hello"), IntValue(1 << 30)}

	buf, err := EncodeRow(nil, schema, values)
	require.NoError(t, err)
	require.Len(t, buf, schema.RowSize())
	require.Equal(t, 4+4+StringLen+4, schema.RowSize())

	got, err := DecodeRow(schema, buf)
	require.NoError(t, err)
	require.Equal(t, values, got)
}

func TestEncodeRow_EmptyAndLongStrings(t *testing.T) {
	schema := NewSchema([]ColumnType{ColString}, nil)

	buf, err := EncodeRow(nil, schema, []Value{StringValue("")})
	require.NoError(t, err)
	got, err := DecodeRow(schema, buf)
	require.NoError(t, err)
	require.Equal(t, "", got[0].Str)

	long := strings.Repeat("x", StringLen+10)
	buf, err = EncodeRow(nil, schema, []Value{StringValue(long)})
	require.NoError(t, err)
	require.Len(t, buf, schema.RowSize())

	got, err = DecodeRow(schema, buf)
	require.NoError(t, err)
	require.Equal(t, long[:StringLen], got[0].Str)
}

func TestEncodeRow_TruncatesOnRuneBoundary(t *testing.T) {
	schema := NewSchema([]ColumnType{ColString}, nil)

	// 127 ASCII bytes followed by a two-byte rune straddling the limit.
	s := strings.Repeat("a", StringLen-1) + "é" + "tail"
	buf, err := EncodeRow(nil, schema, []Value{StringValue(s)})
	require.NoError(t, err)

	got, err := DecodeRow(schema, buf)
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("a", StringLen-1), got[0].Str)
	require.True(t, utf8.ValidString(got[0].Str))
	require.Equal(t, StringValue(s).Stored(), got[0])

	again, err := EncodeRow(nil, schema, got)
	require.NoError(t, err)
	require.Equal(t, buf, again)

	// A rune that ends exactly at the limit is kept whole.
	fits := strings.Repeat("a", StringLen-2) + "é" + "x"
	require.Equal(t, fits[:StringLen], TruncateString(fits))
	require.Equal(t, "short", TruncateString("short"))
}

func TestEncodeRow_AppendsToDst(t *testing.T) {
	schema := NewSchema([]ColumnType{ColInt}, nil)

	buf, err := EncodeRow([]byte{0xAA}, schema, []Value{IntValue(1)})
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0, 0, 0, 1}, buf)
}

func TestEncodeRow_Mismatch(t *testing.T) {
	schema := makeTestSchema()

	_, err := EncodeRow(nil, schema, []Value{IntValue(1)})
	require.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = EncodeRow(nil, schema, []Value{StringValue("x"), StringValue("y"), IntValue(1)})
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestDecodeRow_Truncated(t *testing.T) {
	schema := makeTestSchema()
	buf, err := EncodeRow(nil, schema, []Value{IntValue(1), StringValue("a"), IntValue(2)})
	require.NoError(t, err)

	_, err = DecodeRow(schema, buf[:len(buf)-1])
	require.ErrorIs(t, err, ErrFormat)
}

func TestDecodeRow_BadStringLength(t *testing.T) {
	schema := NewSchema([]ColumnType{ColString}, nil)
	buf := make([]byte, schema.RowSize())
	buf[0] = 0xFF // length far above StringLen

	_, err := DecodeRow(schema, buf)
	require.ErrorIs(t, err, ErrFormat)
}

func TestParseColumnType(t *testing.T) {
	ct, err := ParseColumnType("INT")
	require.NoError(t, err)
	require.Equal(t, ColInt, ct)

	ct, err = ParseColumnType(" String ")
	require.NoError(t, err)
	require.Equal(t, ColString, ct)

	_, err = ParseColumnType("float")
	require.ErrorIs(t, err, ErrUnsupportedType)
}
