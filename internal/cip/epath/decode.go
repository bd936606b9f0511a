package epath

import (
	"fmt"
	"strconv"

	"github.com/tturner/cipengine/internal/cip/codec"
)

// Decode parses an encoded path (without length prefix) back into segments.
// padded must match the form the path was encoded with.
func Decode(data []byte, padded bool) (Path, error) {
	var path Path
	offset := 0
	for offset < len(data) {
		seg := data[offset]
		switch {
		case seg&segmentTypeMask == segmentTypeLogical:
			s, next, err := decodeLogical(data, offset, padded)
			if err != nil {
				return path, err
			}
			path = append(path, s)
			offset = next
		case seg&segmentTypeMask == 0x00:
			s, next, err := decodePort(data, offset)
			if err != nil {
				return path, err
			}
			path = append(path, s)
			offset = next
		default:
			return path, fmt.Errorf("unsupported EPATH segment 0x%02X at offset %d", seg, offset)
		}
	}
	return path, nil
}

func decodeLogical(data []byte, offset int, padded bool) (LogicalSegment, int, error) {
	header := data[offset]
	seg := LogicalSegment{Type: LogicalType(header & 0x1C)}
	width := 1
	switch header & 0x03 {
	case logicalFormat16:
		width = 2
	case logicalFormat32:
		width = 4
	case logicalFormat8:
	default:
		return seg, offset, fmt.Errorf("reserved logical format in 0x%02X", header)
	}
	offset++
	if padded && width > 1 {
		offset++
	}
	if len(data) < offset+width {
		return seg, offset, fmt.Errorf("incomplete %s segment", seg.Type)
	}
	value, err := codec.DecodeUint(data[offset : offset+width])
	if err != nil {
		return seg, offset, err
	}
	seg.Value = value
	return seg, offset + width, nil
}

func decodePort(data []byte, start int) (PortSegment, int, error) {
	header := data[start]
	offset := start + 1
	seg := PortSegment{Port: uint16(header & portIDMask)}

	linkSize := 1
	if header&portExtendedLink != 0 {
		if len(data) < offset+1 {
			return seg, offset, fmt.Errorf("incomplete port link size")
		}
		linkSize = int(data[offset])
		offset++
	}
	if seg.Port == portIDExtended {
		if len(data) < offset+2 {
			return seg, offset, fmt.Errorf("incomplete extended port segment")
		}
		port, _ := codec.DecodeUint(data[offset : offset+2])
		seg.Port = uint16(port)
		offset += 2
	}
	if len(data) < offset+linkSize {
		return seg, offset, fmt.Errorf("incomplete port link address")
	}
	link := data[offset : offset+linkSize]
	offset += linkSize
	if value, err := codec.DecodeUint(link); err == nil && (linkSize == 1 || !printable(link)) {
		seg.Link = strconv.FormatUint(uint64(value), 10)
	} else {
		seg.Link = codec.DecodeString(link)
	}

	if (offset-start)%2 != 0 && offset < len(data) {
		offset++
	}
	return seg, offset, nil
}

func printable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7E {
			return false
		}
	}
	return true
}
