package enip

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Identity is a decoded ListIdentity identity item.
type Identity struct {
	EncapsulationVersion uint16
	IP                   net.IP
	Port                 uint16
	VendorID             uint16
	DeviceType           uint16
	ProductCode          uint16
	RevisionMajor        uint8
	RevisionMinor        uint8
	Status               uint16
	SerialNumber         uint32
	ProductName          string
	State                uint8
}

// Revision formats the major/minor revision as "major.minor".
func (id Identity) Revision() string {
	return fmt.Sprintf("%d.%d", id.RevisionMajor, id.RevisionMinor)
}

// ParseListIdentity decodes every identity item in a ListIdentity reply body.
func ParseListIdentity(body []byte) ([]Identity, error) {
	items, err := ParseItems(body)
	if err != nil {
		return nil, err
	}
	var out []Identity
	for _, item := range items {
		if item.TypeID != ItemListIdentity {
			continue
		}
		id, err := ParseIdentity(item.Data)
		if err != nil {
			return out, err
		}
		out = append(out, id)
	}
	return out, nil
}

// ParseIdentity decodes the data of a 0x000C identity item. The embedded
// socket address is big-endian; everything else is little-endian.
func ParseIdentity(data []byte) (Identity, error) {
	const fixed = 2 + 16 + 2 + 2 + 2 + 1 + 1 + 2 + 4 + 1
	if len(data) < fixed {
		return Identity{}, fmt.Errorf("identity item of %d bytes (minimum %d): %w", len(data), fixed, ErrShortFrame)
	}
	var id Identity
	le := binary.LittleEndian
	id.EncapsulationVersion = le.Uint16(data[0:2])
	// sin_family(2) sin_port(2) sin_addr(4) sin_zero(8)
	id.Port = binary.BigEndian.Uint16(data[4:6])
	id.IP = net.IPv4(data[6], data[7], data[8], data[9])
	off := 18
	id.VendorID = le.Uint16(data[off : off+2])
	id.DeviceType = le.Uint16(data[off+2 : off+4])
	id.ProductCode = le.Uint16(data[off+4 : off+6])
	id.RevisionMajor = data[off+6]
	id.RevisionMinor = data[off+7]
	id.Status = le.Uint16(data[off+8 : off+10])
	id.SerialNumber = le.Uint32(data[off+10 : off+14])
	off += 14

	nameLen := int(data[off])
	off++
	if len(data) < off+nameLen {
		return id, fmt.Errorf("product name needs %d bytes, have %d: %w", nameLen, len(data)-off, ErrShortFrame)
	}
	id.ProductName = string(data[off : off+nameLen])
	off += nameLen
	if off < len(data) {
		id.State = data[off]
	}
	return id, nil
}
