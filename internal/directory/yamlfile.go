package directory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlExport is the on-disk shape of a directory export:
//
//	entries:
//	  - dn: erglobalid=123,ou=services,dc=example
//	    attributes:
//	      erservicename: [HR Feed]
type yamlExport struct {
	Entries []yamlEntry `yaml:"entries"`
}

type yamlEntry struct {
	DN         string              `yaml:"dn"`
	Attributes map[string][]string `yaml:"attributes"`
}

// LoadYAML reads a directory export into an in-memory directory, for
// offline audits against a snapshot of the directory
func LoadYAML(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory export: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML parses a directory export document
func ParseYAML(data []byte) (*Memory, error) {
	var doc yamlExport
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse directory export: %w", err)
	}

	m := NewMemory()
	for i, e := range doc.Entries {
		if e.DN == "" {
			return nil, fmt.Errorf("directory export entry %d has no dn", i)
		}
		m.Add(&Entry{DN: e.DN, Attributes: e.Attributes})
	}
	return m, nil
}
