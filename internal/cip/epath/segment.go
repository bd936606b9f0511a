// Package epath builds CIP EPATHs: logical segments addressing class, instance
// and attribute, and port segments describing a route across backplanes and
// networks.
package epath

import (
	"errors"
	"fmt"

	"github.com/tturner/cipengine/internal/cip/codec"
)

var (
	// ErrPathTooLong is returned when an encoded path exceeds 255 words.
	ErrPathTooLong = errors.New("epath exceeds 255 words")
	// ErrLinkTooLong is returned when a port segment link address exceeds 255 bytes.
	ErrLinkTooLong = errors.New("port link address exceeds 255 bytes")
	// ErrInvalidPort is returned for a zero port or an unknown port name.
	ErrInvalidPort = errors.New("invalid port")
)

// Segment is one element of an EPATH.
type Segment interface {
	// Encode returns the wire form. When padded is set the segment is
	// word aligned.
	Encode(padded bool) ([]byte, error)
}

// LogicalType selects what a logical segment addresses.
type LogicalType uint8

// Logical types, already shifted into header position.
const (
	LogicalClassID         LogicalType = 0x00
	LogicalInstanceID      LogicalType = 0x04
	LogicalMemberID        LogicalType = 0x08
	LogicalConnectionPoint LogicalType = 0x0C
	LogicalAttributeID     LogicalType = 0x10
	LogicalSpecial         LogicalType = 0x14
	LogicalServiceID       LogicalType = 0x18
)

const (
	segmentTypeLogical = 0x20
	segmentTypeMask    = 0xE0

	logicalFormat8  = 0x00
	logicalFormat16 = 0x01
	logicalFormat32 = 0x02
)

func (t LogicalType) String() string {
	switch t {
	case LogicalClassID:
		return "class"
	case LogicalInstanceID:
		return "instance"
	case LogicalMemberID:
		return "member"
	case LogicalConnectionPoint:
		return "connection_point"
	case LogicalAttributeID:
		return "attribute"
	case LogicalSpecial:
		return "special"
	case LogicalServiceID:
		return "service"
	default:
		return fmt.Sprintf("logical(0x%02X)", uint8(t))
	}
}

// LogicalSegment addresses a class, instance, attribute or similar by number.
type LogicalSegment struct {
	Type  LogicalType
	Value uint32
}

// ClassID returns a class logical segment.
func ClassID(v uint32) LogicalSegment { return LogicalSegment{Type: LogicalClassID, Value: v} }

// InstanceID returns an instance logical segment.
func InstanceID(v uint32) LogicalSegment { return LogicalSegment{Type: LogicalInstanceID, Value: v} }

// AttributeID returns an attribute logical segment.
func AttributeID(v uint32) LogicalSegment { return LogicalSegment{Type: LogicalAttributeID, Value: v} }

// MemberID returns a member logical segment.
func MemberID(v uint32) LogicalSegment { return LogicalSegment{Type: LogicalMemberID, Value: v} }

// ConnectionPoint returns a connection point logical segment.
func ConnectionPoint(v uint32) LogicalSegment {
	return LogicalSegment{Type: LogicalConnectionPoint, Value: v}
}

// Encode picks the smallest of the 8, 16 and 32-bit formats that holds the
// value. In padded form the 16 and 32-bit formats carry a zero byte between
// the header and the value so the segment stays word aligned.
func (s LogicalSegment) Encode(padded bool) ([]byte, error) {
	width := codec.WidthOf(s.Value)
	format := byte(logicalFormat8)
	switch width {
	case 2:
		format = logicalFormat16
	case 4:
		format = logicalFormat32
	}

	out := make([]byte, 0, 2+width)
	out = append(out, segmentTypeLogical|byte(s.Type)|format)
	if padded && (1+width)%2 != 0 {
		out = append(out, 0x00)
	}
	value, err := codec.EncodeUint(s.Value, width)
	if err != nil {
		return nil, fmt.Errorf("%s segment: %w", s.Type, err)
	}
	return append(out, value...), nil
}

func (s LogicalSegment) String() string {
	return fmt.Sprintf("%s=0x%X", s.Type, s.Value)
}
