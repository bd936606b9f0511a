package enip

import (
	"bytes"
	"errors"
	"testing"
)

func TestCPFBuildUnconnected(t *testing.T) {
	body, err := CPF{
		Timeout:     0x000A,
		AddressType: ItemNullAddress,
		DataType:    ItemUnconnectedData,
		Message:     []byte{0x0E, 0x03, 0x20, 0x01, 0x24, 0x01, 0x30, 0x07},
	}.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	want := []byte{
		0x00, 0x00, 0x00, 0x00, // interface handle
		0x0A, 0x00, // timeout
		0x02, 0x00, // item count
		0x00, 0x00, 0x00, 0x00, // null address
		0xB2, 0x00, 0x08, 0x00, // unconnected data item
		0x0E, 0x03, 0x20, 0x01, 0x24, 0x01, 0x30, 0x07,
	}
	if !bytes.Equal(body, want) {
		t.Errorf("body = % X\nwant   % X", body, want)
	}
}

func TestCPFBuildConnected(t *testing.T) {
	body, err := CPF{
		AddressType: ItemConnectionAddress,
		AddressData: []byte{0xAA, 0xBB, 0xCC, 0xDD},
		DataType:    ItemConnectedData,
		Message:     []byte{0x01, 0x00, 0x0E},
	}.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	data, err := ParseCommandData(body)
	if err != nil {
		t.Fatalf("ParseCommandData() error: %v", err)
	}
	addr, ok := data.Find(ItemConnectionAddress)
	if !ok || !bytes.Equal(addr.Data, []byte{0xAA, 0xBB, 0xCC, 0xDD}) {
		t.Errorf("address item = %+v", addr)
	}
	item, err := data.DataItem()
	if err != nil {
		t.Fatalf("DataItem() error: %v", err)
	}
	if item.TypeID != ItemConnectedData || !bytes.Equal(item.Data, []byte{0x01, 0x00, 0x0E}) {
		t.Errorf("data item = %+v", item)
	}
}

func TestParseItemsWalksVariableAddress(t *testing.T) {
	// Sequenced address item (8 bytes) ahead of the data item.
	raw := []byte{
		0x02, 0x00,
		0x02, 0x80, 0x08, 0x00, 1, 2, 3, 4, 5, 6, 7, 8,
		0xB1, 0x00, 0x02, 0x00, 0x09, 0x00,
	}
	items, err := ParseItems(raw)
	if err != nil {
		t.Fatalf("ParseItems() error: %v", err)
	}
	if len(items) != 2 || items[0].TypeID != ItemSequencedAddress || len(items[0].Data) != 8 {
		t.Fatalf("items = %+v", items)
	}
	if !bytes.Equal(items[1].Data, []byte{0x09, 0x00}) {
		t.Errorf("data = % X", items[1].Data)
	}
}

func TestParseItemsTruncated(t *testing.T) {
	cases := [][]byte{
		{0x01},
		{0x01, 0x00, 0xB2},
		{0x01, 0x00, 0xB2, 0x00, 0x05, 0x00, 0x01},
	}
	for _, raw := range cases {
		if _, err := ParseItems(raw); !errors.Is(err, ErrShortFrame) {
			t.Errorf("ParseItems(% X): expected ErrShortFrame, got %v", raw, err)
		}
	}
	if _, err := ParseCommandData([]byte{0, 0, 0}); !errors.Is(err, ErrShortFrame) {
		t.Errorf("expected ErrShortFrame, got %v", err)
	}
}

func TestDataItemMissing(t *testing.T) {
	data := CommandData{Items: []Item{{TypeID: ItemNullAddress}}}
	if _, err := data.DataItem(); err == nil {
		t.Error("expected error when no data item present")
	}
}
