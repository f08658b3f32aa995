package catalog

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the built-in dashboard catalog.
// Callers must not modify the returned value.
func Default() *Catalog {
	defaultOnce.Do(func() {
		cat, err := Parse(defaultCatalogYAML)
		if err != nil {
			panic(fmt.Sprintf("catalog: embedded default catalog is invalid: %v", err))
		}
		defaultCatalog = cat
	})
	return defaultCatalog
}

// LoadFile reads and validates a catalog from a YAML file
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Load reads and validates a catalog from YAML
func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog document
func Parse(data []byte) (*Catalog, error) {
	var sections orderedNodes
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("catalog has no sections")
	}

	cat := New(sections...)
	if err := Validate(cat); err != nil {
		return nil, err
	}
	return cat, nil
}

// yamlNode is the document form of a Node; the key comes from the parent mapping
type yamlNode struct {
	Label    string       `yaml:"label"`
	Chart    *ChartHint   `yaml:"chart"`
	Children orderedNodes `yaml:"children"`
}

// orderedNodes decodes a YAML mapping into nodes, keeping document order
type orderedNodes []*Node

// UnmarshalYAML implements yaml.Unmarshaler
func (o *orderedNodes) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping of navigation keys", value.Line)
	}

	nodes := make([]*Node, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode, valueNode := value.Content[i], value.Content[i+1]

		var raw yamlNode
		switch valueNode.Kind {
		case yaml.ScalarNode:
			// "key: Label" shorthand for a page
			raw.Label = valueNode.Value
		default:
			if err := valueNode.Decode(&raw); err != nil {
				return fmt.Errorf("%s: %w", keyNode.Value, err)
			}
		}

		nodes = append(nodes, &Node{
			Key:      keyNode.Value,
			Label:    strings.TrimSpace(raw.Label),
			Children: raw.Children,
			Chart:    raw.Chart,
		})
	}

	*o = nodes
	return nil
}

// UnmarshalYAML accepts either "NA" or a list of column names
func (s *Series) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		if value.Value != notApplicable && value.Value != "" {
			return fmt.Errorf("line %d: invalid y values %q", value.Line, value.Value)
		}
		*s = Series{}
		return nil
	}

	var values []string
	if err := value.Decode(&values); err != nil {
		return fmt.Errorf("line %d: invalid y values: %w", value.Line, err)
	}
	*s = values
	return nil
}
