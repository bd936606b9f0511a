package epath

import (
	"fmt"
	"strings"
)

// Path is an ordered list of segments.
type Path []Segment

// Encode concatenates the encoding of every segment.
func (p Path) Encode(padded bool) ([]byte, error) {
	var out []byte
	for i, seg := range p {
		b, err := seg.Encode(padded)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		out = append(out, b...)
	}
	if len(out)/2 > 0xFF {
		return nil, fmt.Errorf("%d bytes: %w", len(out), ErrPathTooLong)
	}
	return out, nil
}

func (p Path) String() string {
	parts := make([]string, 0, len(p))
	for _, seg := range p {
		parts = append(parts, fmt.Sprint(seg))
	}
	return strings.Join(parts, " ")
}

// Encode builds a padded EPATH from segments. With prefixLength the path is
// preceded by its size in 16-bit words, and padLengthByte adds the reserved
// zero byte some services expect after that size.
func Encode(segments []Segment, prefixLength, padLengthByte bool) ([]byte, error) {
	path, err := Path(segments).Encode(true)
	if err != nil {
		return nil, err
	}
	return withLength(path, prefixLength, padLengthByte), nil
}

func withLength(path []byte, prefixLength, padLengthByte bool) []byte {
	if !prefixLength {
		return path
	}
	out := make([]byte, 0, len(path)+2)
	out = append(out, byte(len(path)/2))
	if padLengthByte {
		out = append(out, 0x00)
	}
	return append(out, path...)
}

// BuildRequestPath returns the length-prefixed class/instance[/attribute]
// path used by generic CIP requests.
func BuildRequestPath(class, instance uint32, attribute ...uint32) ([]byte, error) {
	return Encode(RequestPath(class, instance, attribute...), true, false)
}

// RequestPath returns the class/instance[/attribute] segments.
func RequestPath(class, instance uint32, attribute ...uint32) Path {
	path := Path{ClassID(class), InstanceID(instance)}
	if len(attribute) > 0 {
		path = append(path, AttributeID(attribute[0]))
	}
	return path
}
