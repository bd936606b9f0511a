package enip

import (
	"fmt"

	"github.com/tturner/cipengine/internal/cip/codec"
)

// Common Packet Format item type IDs.
const (
	ItemNullAddress       uint16 = 0x0000
	ItemListIdentity      uint16 = 0x000C
	ItemConnectionAddress uint16 = 0x00A1
	ItemConnectedData     uint16 = 0x00B1
	ItemUnconnectedData   uint16 = 0x00B2
	ItemListServices      uint16 = 0x0100
	ItemSockAddrOToT      uint16 = 0x8000
	ItemSockAddrTToO      uint16 = 0x8001
	ItemSequencedAddress  uint16 = 0x8002
)

// Item is one Common Packet Format item.
type Item struct {
	TypeID uint16
	Data   []byte
}

// CPF describes the two-item body of SendRRData and SendUnitData.
type CPF struct {
	InterfaceHandle uint32
	Timeout         uint16
	AddressType     uint16
	AddressData     []byte
	DataType        uint16
	Message         []byte
}

// Build serializes the CPF body: interface handle, timeout, item count of 2,
// the address item and the data item.
func (c CPF) Build() ([]byte, error) {
	if len(c.AddressData) > 0xFFFF || len(c.Message) > 0xFFFF {
		return nil, fmt.Errorf("cpf item too large: address %d bytes, data %d bytes", len(c.AddressData), len(c.Message))
	}
	out := make([]byte, 0, 16+len(c.AddressData)+len(c.Message))
	out = codec.AppendUint32(out, c.InterfaceHandle)
	out = codec.AppendUint16(out, c.Timeout)
	out = codec.AppendUint16(out, 2)
	out = codec.AppendUint16(out, c.AddressType)
	out = codec.AppendUint16(out, uint16(len(c.AddressData)))
	out = append(out, c.AddressData...)
	out = codec.AppendUint16(out, c.DataType)
	out = codec.AppendUint16(out, uint16(len(c.Message)))
	out = append(out, c.Message...)
	return out, nil
}

// CommandData is a parsed SendRRData/SendUnitData body.
type CommandData struct {
	InterfaceHandle uint32
	Timeout         uint16
	Items           []Item
}

// ParseCommandData parses the interface handle and timeout, then the item list.
func ParseCommandData(body []byte) (CommandData, error) {
	if len(body) < 6 {
		return CommandData{}, fmt.Errorf("command data of %d bytes (minimum 6): %w", len(body), ErrShortFrame)
	}
	handle, _ := codec.DecodeUint(body[0:4])
	timeout, _ := codec.DecodeUint(body[4:6])
	items, err := ParseItems(body[6:])
	if err != nil {
		return CommandData{}, err
	}
	return CommandData{InterfaceHandle: handle, Timeout: uint16(timeout), Items: items}, nil
}

// ParseItems walks a counted item list using each item's length field.
func ParseItems(raw []byte) ([]Item, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("item count missing: %w", ErrShortFrame)
	}
	count := int(raw[0]) | int(raw[1])<<8
	raw = raw[2:]

	items := make([]Item, 0, count)
	for i := 0; i < count; i++ {
		if len(raw) < 4 {
			return nil, fmt.Errorf("item %d header truncated at %d bytes: %w", i, len(raw), ErrShortFrame)
		}
		typeID := uint16(raw[0]) | uint16(raw[1])<<8
		length := int(raw[2]) | int(raw[3])<<8
		if len(raw) < 4+length {
			return nil, fmt.Errorf("item %d (0x%04X) needs %d bytes, have %d: %w", i, typeID, length, len(raw)-4, ErrShortFrame)
		}
		items = append(items, Item{TypeID: typeID, Data: raw[4 : 4+length]})
		raw = raw[4+length:]
	}
	return items, nil
}

// Find returns the first item of the given type.
func (d CommandData) Find(typeID uint16) (Item, bool) {
	for _, item := range d.Items {
		if item.TypeID == typeID {
			return item, true
		}
	}
	return Item{}, false
}

// DataItem returns the connected or unconnected data item of a reply.
func (d CommandData) DataItem() (Item, error) {
	for _, item := range d.Items {
		if item.TypeID == ItemConnectedData || item.TypeID == ItemUnconnectedData {
			return item, nil
		}
	}
	return Item{}, fmt.Errorf("no data item among %d cpf items", len(d.Items))
}
