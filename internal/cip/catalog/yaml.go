package catalog

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tturner/cipengine/internal/cip/protocol"
)

// entryYAML is the YAML form, with numbers written as hex strings and the
// service as a name or a code.
type entryYAML struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Service     string   `yaml:"service"`
	ObjectName  string   `yaml:"object_name,omitempty"`
	Path        pathYAML `yaml:"path"`
	Category    Category `yaml:"category,omitempty"`
	Data        string   `yaml:"data,omitempty"`
	Description string   `yaml:"description,omitempty"`
}

type pathYAML struct {
	Class     string `yaml:"class"`
	Instance  string `yaml:"instance,omitempty"`
	Attribute string `yaml:"attribute,omitempty"`
}

// UnmarshalYAML implements yaml.Unmarshaler for Entry.
func (e *Entry) UnmarshalYAML(value *yaml.Node) error {
	var raw entryYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}

	var service protocol.ServiceCode
	if raw.Service != "" {
		var err error
		service, err = protocol.ParseServiceCode(raw.Service)
		if err != nil {
			return fmt.Errorf("line %d: service: %w", value.Line, err)
		}
	}
	path, err := parsePathYAML(raw.Path)
	if err != nil {
		return fmt.Errorf("line %d: path: %w", value.Line, err)
	}
	var data []byte
	if raw.Data != "" {
		data, err = hex.DecodeString(strings.ReplaceAll(raw.Data, " ", ""))
		if err != nil {
			return fmt.Errorf("line %d: data: %w", value.Line, err)
		}
	}

	*e = Entry{
		Key:         raw.Key,
		Name:        raw.Name,
		Service:     service,
		ObjectName:  raw.ObjectName,
		Path:        path,
		Category:    raw.Category,
		Data:        data,
		Description: raw.Description,
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler for Entry.
func (e Entry) MarshalYAML() (interface{}, error) {
	raw := entryYAML{
		Key:         e.Key,
		Name:        e.Name,
		Service:     e.Service.String(),
		ObjectName:  e.ObjectName,
		Path:        marshalPathYAML(e.Path),
		Category:    e.Category,
		Description: e.Description,
	}
	if len(e.Data) > 0 {
		raw.Data = fmt.Sprintf("% X", e.Data)
	}
	return raw, nil
}

func parsePathYAML(raw pathYAML) (Path, error) {
	var path Path
	var err error
	if path.Class, err = parseNumber(raw.Class); err != nil {
		return path, fmt.Errorf("class: %w", err)
	}
	if raw.Instance == "" {
		path.Instance = 1
	} else if path.Instance, err = parseNumber(raw.Instance); err != nil {
		return path, fmt.Errorf("instance: %w", err)
	}
	if path.Attribute, err = parseNumber(raw.Attribute); err != nil {
		return path, fmt.Errorf("attribute: %w", err)
	}
	return path, nil
}

func marshalPathYAML(p Path) pathYAML {
	y := pathYAML{Class: fmt.Sprintf("0x%02X", p.Class)}
	if p.Instance != 1 {
		y.Instance = fmt.Sprintf("0x%02X", p.Instance)
	}
	if p.Attribute != 0 {
		y.Attribute = fmt.Sprintf("0x%02X", p.Attribute)
	}
	return y
}

// parseNumber accepts "0x"-prefixed hex or decimal. Empty is 0.
func parseNumber(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return uint32(v), nil
}
