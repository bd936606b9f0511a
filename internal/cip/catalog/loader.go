package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed core.yaml
var coreYAML []byte

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*File, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog YAML: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	return &file, nil
}

// Load reads a catalog from a YAML file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return Parse(data)
}

// Save writes a catalog to a YAML file.
func Save(path string, file *File) error {
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write catalog file: %w", err)
	}
	return nil
}

// Core returns the built-in catalog.
func Core() *Catalog {
	file, err := Parse(coreYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog: %v", err))
	}
	return NewCatalog(file)
}

// Catalog provides indexed access to catalog entries.
type Catalog struct {
	entries []*Entry
	byKey   map[string]*Entry
}

// NewCatalog indexes the entries of one or more files. Later files override
// earlier entries with the same key.
func NewCatalog(files ...*File) *Catalog {
	c := &Catalog{byKey: make(map[string]*Entry)}
	for _, file := range files {
		for _, e := range file.Entries {
			if _, ok := c.byKey[e.Key]; !ok {
				c.entries = append(c.entries, e)
			} else {
				for i := range c.entries {
					if c.entries[i].Key == e.Key {
						c.entries[i] = e
					}
				}
			}
			c.byKey[e.Key] = e
		}
	}
	return c
}

// Lookup finds an entry by key.
func (c *Catalog) Lookup(key string) (*Entry, bool) {
	e, ok := c.byKey[key]
	return e, ok
}

// ListAll returns all entries in load order.
func (c *Catalog) ListAll() []*Entry {
	return c.entries
}

// Keys returns the sorted entry keys.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.byKey))
	for k := range c.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Search finds entries matching query in key, name, object or description.
func (c *Catalog) Search(query string) []*Entry {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return c.entries
	}

	var matches []*Entry
	for _, e := range c.entries {
		if strings.Contains(strings.ToLower(e.Key), query) ||
			strings.Contains(strings.ToLower(e.Name), query) ||
			strings.Contains(strings.ToLower(e.ObjectName), query) ||
			strings.Contains(strings.ToLower(e.Description), query) {
			matches = append(matches, e)
		}
	}
	return matches
}
