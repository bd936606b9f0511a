package epath

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tturner/cipengine/internal/cip/codec"
)

const (
	portExtendedLink = 0x10
	portIDMask       = 0x0F
	portIDExtended   = 0x0F
)

// Named ports understood by ParseRoute and PortSegment.
var portNames = map[string]uint16{
	"backplane": 1,
	"bp":        1,
	"enet":      2,
	"dhrioa":    2,
	"dhriob":    3,
	"dnet":      2,
	"cnet":      2,
	"dh485a":    2,
	"dh485b":    3,
}

// PortByName resolves a named port such as "backplane" or "enet".
func PortByName(name string) (uint16, bool) {
	port, ok := portNames[strings.ToLower(strings.TrimSpace(name))]
	return port, ok
}

// PortSegment routes a message out of a device port to a link address. A link
// made only of digits is a numeric node or slot number; anything else (for
// example an IP address) is sent as a symbolic extended link address.
type PortSegment struct {
	Port uint16
	Link string
	Name string // diagnostic label only
}

// Port returns a port segment with a numeric link address.
func Port(port uint16, link uint32) PortSegment {
	return PortSegment{Port: port, Link: strconv.FormatUint(uint64(link), 10)}
}

// NamedPort returns a port segment for a named port such as "backplane".
func NamedPort(name, link string) (PortSegment, error) {
	port, ok := PortByName(name)
	if !ok {
		return PortSegment{}, fmt.Errorf("port %q: %w", name, ErrInvalidPort)
	}
	return PortSegment{Port: port, Link: link, Name: name}, nil
}

func (s PortSegment) linkBytes() ([]byte, error) {
	if s.Link == "" {
		return nil, fmt.Errorf("port %d: empty link address", s.Port)
	}
	if isDigits(s.Link) {
		n, err := strconv.ParseUint(s.Link, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("port %d link %q: %w", s.Port, s.Link, err)
		}
		value := uint32(n)
		return codec.EncodeUint(value, codec.WidthOf(value))
	}
	return codec.EncodeString(s.Link), nil
}

// Encode always produces a word-aligned segment; port segments carry their
// own pad byte regardless of the padded flag.
func (s PortSegment) Encode(padded bool) ([]byte, error) {
	if s.Port == 0 {
		return nil, fmt.Errorf("port 0: %w", ErrInvalidPort)
	}
	link, err := s.linkBytes()
	if err != nil {
		return nil, err
	}
	if len(link) > 0xFF {
		return nil, fmt.Errorf("port %d: %d bytes: %w", s.Port, len(link), ErrLinkTooLong)
	}

	extendedLink := len(link) > 1
	header := byte(0)
	if s.Port >= portIDExtended {
		header |= portIDExtended
	} else {
		header |= byte(s.Port) & portIDMask
	}
	if extendedLink {
		header |= portExtendedLink
	}

	out := []byte{header}
	if extendedLink {
		out = append(out, byte(len(link)))
	}
	if s.Port >= portIDExtended {
		out = codec.AppendUint16(out, s.Port)
	}
	out = append(out, link...)
	if len(out)%2 != 0 {
		out = append(out, 0x00)
	}
	return out, nil
}

func (s PortSegment) String() string {
	if s.Name != "" {
		return fmt.Sprintf("%s(%d)->%s", s.Name, s.Port, s.Link)
	}
	return fmt.Sprintf("port%d->%s", s.Port, s.Link)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
