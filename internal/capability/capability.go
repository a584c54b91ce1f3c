// Package capability detects which MCP capabilities a user message asks for
// and augments the model's system prompt with them.
package capability

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/coedaniel/aws-propuestas-v3/internal/mcpclient"
)

//go:embed catalog.yaml
var builtinCatalogData []byte

// Descriptor is a static capability definition. Loaded at startup, never mutated.
type Descriptor struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Service     string   `yaml:"service" json:"service"`
	Tools       []string `yaml:"tools" json:"tools"`
	Keywords    []string `yaml:"keywords" json:"keywords"`
	Priority    int      `yaml:"priority" json:"priority"`
}

// Catalog is the on-disk form of the capability list.
type Catalog struct {
	Version      int          `yaml:"version"`
	Capabilities []Descriptor `yaml:"capabilities"`
}

// LoadCatalog parses the embedded catalog.
func LoadCatalog() ([]Descriptor, error) {
	return ParseCatalog(builtinCatalogData)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) ([]Descriptor, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse capability catalog: %w", err)
	}
	if len(cat.Capabilities) == 0 {
		return nil, fmt.Errorf("capability catalog is empty")
	}

	seen := make(map[string]bool, len(cat.Capabilities))
	for i, d := range cat.Capabilities {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, fmt.Errorf("capability %d: name is required", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("capability %q: duplicate name", name)
		}
		seen[name] = true
		if len(d.Keywords) == 0 {
			return nil, fmt.Errorf("capability %q: at least one keyword is required", name)
		}
		for _, kw := range d.Keywords {
			if strings.TrimSpace(kw) == "" {
				return nil, fmt.Errorf("capability %q: empty keyword", name)
			}
		}
		if _, ok := mcpclient.Lookup(d.Service); !ok {
			return nil, fmt.Errorf("capability %q: unknown service %q", name, d.Service)
		}
		cat.Capabilities[i].Name = name
	}
	return cat.Capabilities, nil
}

// Find returns the descriptor with the given name.
func Find(descs []Descriptor, name string) (Descriptor, bool) {
	for _, d := range descs {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}
