// Package codec holds the little-endian integer and string helpers shared by
// every EtherNet/IP and CIP builder.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedWidth is returned when an integer width is not 1, 2 or 4 bytes.
	ErrUnsupportedWidth = errors.New("unsupported integer width")
	// ErrDecodeLengthMismatch is returned when a decode buffer is not 1, 2 or 4 bytes long.
	ErrDecodeLengthMismatch = errors.New("decode length mismatch")
	// ErrValueOverflow is returned when a value does not fit the requested width.
	ErrValueOverflow = errors.New("value overflows width")
)

// EncodeUint encodes value as a little-endian integer of the given width.
func EncodeUint(value uint32, width int) ([]byte, error) {
	switch width {
	case 1:
		if value > 0xFF {
			return nil, fmt.Errorf("encode %d in %d byte: %w", value, width, ErrValueOverflow)
		}
		return []byte{byte(value)}, nil
	case 2:
		if value > 0xFFFF {
			return nil, fmt.Errorf("encode %d in %d bytes: %w", value, width, ErrValueOverflow)
		}
		return AppendUint16(nil, uint16(value)), nil
	case 4:
		return AppendUint32(nil, value), nil
	default:
		return nil, fmt.Errorf("width %d: %w", width, ErrUnsupportedWidth)
	}
}

// DecodeUint decodes a little-endian integer whose width is the buffer length.
func DecodeUint(b []byte) (uint32, error) {
	switch len(b) {
	case 1:
		return uint32(b[0]), nil
	case 2:
		return uint32(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return binary.LittleEndian.Uint32(b), nil
	default:
		return 0, fmt.Errorf("buffer of %d bytes: %w", len(b), ErrDecodeLengthMismatch)
	}
}

// WidthOf returns the smallest of 1, 2 or 4 bytes that holds value.
func WidthOf(value uint32) int {
	switch {
	case value <= 0xFF:
		return 1
	case value <= 0xFFFF:
		return 2
	default:
		return 4
	}
}

// EncodeString returns the UTF-8 bytes of s. Framing is up to the caller.
func EncodeString(s string) []byte {
	return []byte(s)
}

// DecodeString interprets b as UTF-8.
func DecodeString(b []byte) string {
	return string(b)
}

// Concat joins buffers into a freshly allocated slice.
func Concat(bufs ...[]byte) []byte {
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	out := make([]byte, 0, n)
	for _, b := range bufs {
		out = append(out, b...)
	}
	return out
}

// PutUint16 writes a little-endian uint16 to dst.
func PutUint16(dst []byte, value uint16) {
	binary.LittleEndian.PutUint16(dst, value)
}

// PutUint32 writes a little-endian uint32 to dst.
func PutUint32(dst []byte, value uint32) {
	binary.LittleEndian.PutUint32(dst, value)
}

// AppendUint16 appends a little-endian uint16 to dst.
func AppendUint16(dst []byte, value uint16) []byte {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], value)
	return append(dst, buf[:]...)
}

// AppendUint32 appends a little-endian uint32 to dst.
func AppendUint32(dst []byte, value uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	return append(dst, buf[:]...)
}
