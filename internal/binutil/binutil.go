// Package binutil provides the little-endian primitive encode/decode
// helpers that every CAB record type is built on: fixed-width unsigned
// integers and NUL-terminated byte strings.
package binutil

import (
	"errors"
	"io"
	"math"
)

// ErrOverflow is returned when a value does not fit the width it is
// being narrowed to.
var ErrOverflow = errors.New("binutil: value does not fit target width")

// PutUint8 narrows v into a single byte, failing with ErrOverflow if v
// exceeds a byte's range.
func PutUint8(v uint64) (byte, error) {
	if v > math.MaxUint8 {
		return 0, ErrOverflow
	}
	return byte(v), nil
}

// PutUint16 narrows v into two little-endian bytes.
func PutUint16(v uint64) ([2]byte, error) {
	var b [2]byte
	if v > math.MaxUint16 {
		return b, ErrOverflow
	}
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	return b, nil
}

// PutUint32 narrows v into four little-endian bytes.
func PutUint32(v uint64) ([4]byte, error) {
	var b [4]byte
	if v > math.MaxUint32 {
		return b, ErrOverflow
	}
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	return b, nil
}

// Uint16 decodes two little-endian bytes.
func Uint16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

// Uint32 decodes four little-endian bytes.
func Uint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// WriteUint8 writes a single byte.
func WriteUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

// WriteUint16 writes v as two little-endian bytes.
func WriteUint16(w io.Writer, v uint16) error {
	b, err := PutUint16(uint64(v))
	if err != nil {
		return err
	}
	_, err = w.Write(b[:])
	return err
}

// WriteUint32 writes v as four little-endian bytes.
func WriteUint32(w io.Writer, v uint32) error {
	b, err := PutUint32(uint64(v))
	if err != nil {
		return err
	}
	_, err = w.Write(b[:])
	return err
}

// ReadUint8 reads a single byte.
func ReadUint8(r io.Reader) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16 reads two little-endian bytes.
func ReadUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return Uint16(b[:]), nil
}

// ReadUint32 reads four little-endian bytes.
func ReadUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return Uint32(b[:]), nil
}

// NulString encodes s as a NUL-terminated byte string. s must not itself
// contain a NUL byte.
func NulString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	b[len(s)] = 0
	return b
}

// ReadNulString reads bytes up to and including the next NUL terminator,
// returning the string without the terminator and the number of bytes
// consumed (including the terminator).
func ReadNulString(r io.ByteReader) (string, int, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", len(buf), err
		}
		if b == 0 {
			return string(buf), len(buf) + 1, nil
		}
		buf = append(buf, b)
	}
}
