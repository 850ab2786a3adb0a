package pzpipe

import (
	"bytes"
	"io"
)

// vlint.go implements the variable-length integer encoding used by PCF
// uncompressed-data records in the legacy (length-prefixed) container
// dialect. Unlike plain base-128 varints, every additional byte shifts the
// value range upward, so each integer has exactly one encoding and encoded
// length grows strictly with the value.

// AppendVLInt appends the variable-length encoding of v to dst and returns
// the extended slice. Zero encodes as the single byte 0x00.
func AppendVLInt(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v&0x7f)|0x80)
		v = (v >> 7) - 1
	}
	return append(dst, byte(v))
}

// ReadVLInt decodes a variable-length integer from r. A stream that ends in
// the middle of an encoding yields io.ErrUnexpectedEOF.
func ReadVLInt(r io.ByteReader) (uint64, error) {
	c, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	var v, o uint64
	var s uint
	for c >= 0x80 {
		v += uint64(c&0x7f) << s
		s += 7
		o = (o + 1) << 7
		c, err = r.ReadByte()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}
	}
	return v + o + uint64(c)<<s, nil
}

// DecodeVLInt decodes a variable-length integer from the start of data,
// returning the value and the number of bytes consumed.
func DecodeVLInt(data []byte) (uint64, int, error) {
	r := bytes.NewReader(data)
	v, err := ReadVLInt(r)
	if err != nil {
		return 0, 0, err
	}
	return v, len(data) - r.Len(), nil
}
