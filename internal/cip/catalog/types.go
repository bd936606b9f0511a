// Package catalog names frequently used CIP requests so they can be sent by
// key instead of by raw service, class, instance and attribute numbers.
package catalog

import (
	"fmt"

	"github.com/tturner/cipengine/internal/cip/client"
	"github.com/tturner/cipengine/internal/cip/protocol"
)

// Category groups entries for listing.
type Category string

const (
	CategoryDiscovery     Category = "discovery"
	CategoryConfiguration Category = "configuration"
	CategoryConnection    Category = "connection"
	CategoryDataAccess    Category = "data_access"
)

// Path is the logical address of an entry. Attribute 0 means none.
type Path struct {
	Class     uint32
	Instance  uint32
	Attribute uint32
}

// Entry is one named request.
type Entry struct {
	Key         string
	Name        string
	Service     protocol.ServiceCode
	ObjectName  string
	Path        Path
	Category    Category
	Data        []byte
	Description string
}

// Message returns the request the entry describes.
func (e *Entry) Message() client.Message {
	msg := client.Message{
		Service:  e.Service,
		Class:    e.Path.Class,
		Instance: e.Path.Instance,
		Data:     e.Data,
	}
	if e.Path.Attribute != 0 {
		msg.Attribute = client.Attribute(e.Path.Attribute)
	}
	return msg
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s (%s)", e.Key, e.Message())
}

// File is a catalog YAML document.
type File struct {
	Version int      `yaml:"version"`
	Name    string   `yaml:"name"`
	Entries []*Entry `yaml:"entries"`
}

// Validate checks the file for missing fields and duplicate keys.
func (f *File) Validate() error {
	if f.Version != 1 {
		return fmt.Errorf("unsupported catalog version: %d", f.Version)
	}

	keys := make(map[string]bool)
	for i, e := range f.Entries {
		if e.Key == "" {
			return fmt.Errorf("entry %d: missing key", i)
		}
		if keys[e.Key] {
			return fmt.Errorf("entry %d: duplicate key %q", i, e.Key)
		}
		keys[e.Key] = true

		if e.Service == 0 {
			return fmt.Errorf("entry %q: missing service", e.Key)
		}
		if e.Service.IsReply() {
			return fmt.Errorf("entry %q: service 0x%02X is a reply code", e.Key, uint8(e.Service))
		}
		if e.Path.Class == 0 {
			return fmt.Errorf("entry %q: missing class", e.Key)
		}
		if _, err := e.Message().Request(); err != nil {
			return fmt.Errorf("entry %q: %w", e.Key, err)
		}
	}
	return nil
}
