package record

import (
	"encoding/binary"
	"fmt"
)

// Field encodings (big-endian):
//
//	int    : 4 bytes two's complement
//	string : u32 length | StringLen bytes, zero padded; longer strings
//	         are cut at the last rune boundary that fits
//
// Every row of a schema therefore encodes to exactly Schema.RowSize() bytes.

// EncodeRow appends the fixed-width encoding of values to dst.
func EncodeRow(dst []byte, s Schema, values []Value) ([]byte, error) {
	if err := s.Validate(values); err != nil {
		return nil, err
	}
	for _, v := range values {
		dst = appendValue(dst, v)
	}
	return dst, nil
}

func appendValue(dst []byte, v Value) []byte {
	switch v.Type {
	case ColInt:
		return binary.BigEndian.AppendUint32(dst, uint32(v.Int))
	case ColString:
		bs := []byte(TruncateString(v.Str))
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(bs)))
		dst = append(dst, bs...)
		return append(dst, make([]byte, StringLen-len(bs))...)
	}
	return dst
}

// DecodeRow reads one row of s from the front of buf.
func DecodeRow(s Schema, buf []byte) ([]Value, error) {
	if len(buf) < s.RowSize() {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrFormat, s.RowSize(), len(buf))
	}

	out := make([]Value, len(s.Cols))
	off := 0
	for i, col := range s.Cols {
		switch col.Type {
		case ColInt:
			out[i] = IntValue(int32(binary.BigEndian.Uint32(buf[off:])))

		case ColString:
			l := int(binary.BigEndian.Uint32(buf[off:]))
			if l > StringLen {
				return nil, fmt.Errorf("%w: column %d string length %d", ErrFormat, i, l)
			}
			start := off + 4
			out[i] = StringValue(string(buf[start : start+l]))

		default:
			return nil, fmt.Errorf("%w: column %d", ErrUnsupportedType, i)
		}
		off += col.Type.Len()
	}
	return out, nil
}
