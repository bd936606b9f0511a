package enip

import (
	"fmt"
	"io"
)

// ReadFrame reads exactly one encapsulation frame: the fixed header followed
// by the number of body bytes the header announces.
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	length := int(header[2]) | int(header[3])<<8
	if length == 0 {
		return header, nil
	}
	frame := make([]byte, HeaderSize+length)
	copy(frame, header)
	if _, err := io.ReadFull(r, frame[HeaderSize:]); err != nil {
		return nil, fmt.Errorf("read %d byte body: %w", length, err)
	}
	return frame, nil
}
