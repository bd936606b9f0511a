package catalog

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tturner/cipengine/internal/cip/protocol"
)

func TestCoreCatalog(t *testing.T) {
	c := Core()
	if len(c.ListAll()) == 0 {
		t.Fatal("built-in catalog is empty")
	}

	e, ok := c.Lookup("identity.vendor_id")
	if !ok {
		t.Fatal("identity.vendor_id missing")
	}
	if e.Service != protocol.ServiceGetAttributeSingle {
		t.Errorf("service = %s, want Get_Attribute_Single", e.Service)
	}
	if e.Path != (Path{Class: 0x01, Instance: 1, Attribute: 0x01}) {
		t.Errorf("path = %+v", e.Path)
	}
	req, err := e.Message().Request()
	if err != nil {
		t.Fatal(err)
	}
	if got := fmt.Sprintf("% X", req.Encode()); got != "0E 03 20 01 24 01 30 01" {
		t.Errorf("request = %s", got)
	}

	all, ok := c.Lookup("identity.all")
	if !ok {
		t.Fatal("identity.all missing")
	}
	if all.Message().Attribute != nil {
		t.Error("identity.all should not carry an attribute")
	}

	asm, _ := c.Lookup("assembly.data")
	if asm.Path.Instance != 0x64 {
		t.Errorf("assembly instance = %d, want 100", asm.Path.Instance)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"bad version", "version: 2\nentries: []\n", "unsupported catalog version"},
		{"missing key", "version: 1\nentries:\n  - service: \"0x0E\"\n    path: {class: \"1\"}\n", "missing key"},
		{"duplicate", "version: 1\nentries:\n  - {key: a, service: \"0x0E\", path: {class: \"1\"}}\n  - {key: a, service: \"0x0E\", path: {class: \"1\"}}\n", "duplicate key"},
		{"missing class", "version: 1\nentries:\n  - {key: a, service: \"0x0E\", path: {}}\n", "missing class"},
		{"unknown service", "version: 1\nentries:\n  - {key: a, service: Frobnicate, path: {class: \"1\"}}\n", "unknown service"},
		{"bad hex", "version: 1\nentries:\n  - {key: a, service: \"0x10\", path: {class: \"1\"}, data: \"zz\"}\n", "data"},
		{"bad number", "version: 1\nentries:\n  - {key: a, service: \"0x0E\", path: {class: \"0xZZ\"}}\n", "class"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	file := &File{
		Version: 1,
		Name:    "site",
		Entries: []*Entry{{
			Key:      "drive.speed",
			Name:     "Speed Reference",
			Service:  protocol.ServiceSetAttributeSingle,
			Path:     Path{Class: 0x2A, Instance: 1, Attribute: 0x05},
			Category: CategoryDataAccess,
			Data:     []byte{0xE8, 0x03},
		}},
	}
	path := filepath.Join(t.TempDir(), "site.yaml")
	if err := Save(path, file); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	got := loaded.Entries[0]
	if got.Service != protocol.ServiceSetAttributeSingle || got.Path != file.Entries[0].Path {
		t.Errorf("loaded entry = %+v", got)
	}
	if fmt.Sprintf("% X", got.Data) != "E8 03" {
		t.Errorf("data = % X", got.Data)
	}
}

func TestNewCatalogOverride(t *testing.T) {
	site, err := Parse([]byte("version: 1\nname: site\nentries:\n  - {key: identity.vendor_id, service: Get_Attribute_Single, path: {class: \"1\", instance: \"2\", attribute: \"1\"}}\n  - {key: site.extra, service: Reset, path: {class: \"1\"}}\n"))
	if err != nil {
		t.Fatal(err)
	}
	core := Core()
	merged := NewCatalog(&File{Version: 1, Entries: core.ListAll()}, site)

	if len(merged.ListAll()) != len(core.ListAll())+1 {
		t.Errorf("merged has %d entries, want %d", len(merged.ListAll()), len(core.ListAll())+1)
	}
	e, _ := merged.Lookup("identity.vendor_id")
	if e.Path.Instance != 2 {
		t.Errorf("override not applied: instance %d", e.Path.Instance)
	}
	if merged.ListAll()[0].Key != "identity.vendor_id" {
		t.Error("override should keep the original position")
	}
	if keys := merged.Keys(); keys[len(keys)-1] != "tcpip.hostname" {
		t.Errorf("keys not sorted: %v", keys)
	}
}

func TestSearch(t *testing.T) {
	c := Core()
	tests := []struct {
		query string
		want  string
	}{
		{"vendor", "identity.vendor_id"},
		{"ETHERNET LINK", "ethernet.mac_address"},
		{"classes the target", "message_router.object_list"},
	}
	for _, tt := range tests {
		matches := c.Search(tt.query)
		if len(matches) == 0 || matches[0].Key != tt.want {
			t.Errorf("Search(%q) first match = %v, want %s", tt.query, matches, tt.want)
		}
	}
	if len(c.Search("")) != len(c.ListAll()) {
		t.Error("empty query should return every entry")
	}
}
