package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchema_FieldIndexAndSize(t *testing.T) {
	s := makeTestSchema()

	require.Equal(t, 3, s.NumCols())
	idx, err := s.FieldIndex("age")
	require.NoError(t, err)
	require.Equal(t, 2, idx)

	_, err = s.FieldIndex("missing")
	require.ErrorIs(t, err, ErrNoSuchField)

	anon := NewSchema([]ColumnType{ColInt, ColInt}, nil)
	require.Equal(t, 8, anon.RowSize())
	_, err = anon.FieldIndex("")
	require.ErrorIs(t, err, ErrNoSuchField)
}

func TestSchema_EqualIgnoresNames(t *testing.T) {
	a := NewSchema([]ColumnType{ColInt, ColString}, []string{"a", "b"})
	b := NewSchema([]ColumnType{ColInt, ColString}, []string{"x", "y"})
	c := NewSchema([]ColumnType{ColString, ColInt}, []string{"a", "b"})

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
	require.False(t, a.Equal(NewSchema([]ColumnType{ColInt}, nil)))
}

func TestMerge(t *testing.T) {
	a := NewSchema([]ColumnType{ColInt}, []string{"a"})
	b := NewSchema([]ColumnType{ColString, ColInt}, []string{"b", "c"})

	m := Merge(a, b)
	require.Equal(t, 3, m.NumCols())
	require.Equal(t, a.RowSize()+b.RowSize(), m.RowSize())
	require.Equal(t, "a(int), b(string), c(int)", m.String())
}

func TestRow_String(t *testing.T) {
	r := NewRow(IntValue(1), StringValue("bob"))
	require.False(t, r.Placed())
	require.Equal(t, "1 bob", r.String())

	r.SetField(0, IntValue(7))
	require.Equal(t, int32(7), r.Field(0).Int)
}
