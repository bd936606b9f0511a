package epath

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseRoute parses a comma separated list of port/link pairs such as
// "1,0" or "backplane,2,enet,192.168.1.10" into port segments.
func ParseRoute(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("route %q: expected port,link pairs", s)
	}

	path := make(Path, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		portField := strings.TrimSpace(fields[i])
		link := strings.TrimSpace(fields[i+1])
		if link == "" {
			return nil, fmt.Errorf("route %q: empty link address at pair %d", s, i/2)
		}
		if isDigits(portField) {
			n, err := strconv.ParseUint(portField, 10, 16)
			if err != nil || n == 0 {
				return nil, fmt.Errorf("route %q: port %q: %w", s, portField, ErrInvalidPort)
			}
			path = append(path, PortSegment{Port: uint16(n), Link: link})
			continue
		}
		seg, err := NamedPort(portField, link)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", s, err)
		}
		path = append(path, seg)
	}
	return path, nil
}
