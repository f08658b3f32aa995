package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MaxDepth is the deepest nesting the dashboard menu can render
const MaxDepth = 3

// ChartType names a chart renderer
type ChartType string

const (
	ChartBar  ChartType = "bar"
	ChartLine ChartType = "line"
	ChartPie  ChartType = "pie"
)

// Valid reports whether the chart type is one the dashboard can draw
func (t ChartType) Valid() bool {
	switch t {
	case ChartBar, ChartLine, ChartPie:
		return true
	}
	return false
}

// notApplicable is the wire value for a chart without y-axis columns
const notApplicable = "NA"

// Series lists the y-axis columns of a default chart.
// An empty Series is encoded as "NA".
type Series []string

// MarshalJSON encodes an empty series as "NA"
func (s Series) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return json.Marshal(notApplicable)
	}
	return json.Marshal([]string(s))
}

// UnmarshalJSON accepts either "NA" or a list of column names
func (s *Series) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single != notApplicable && single != "" {
			return fmt.Errorf("invalid y values %q", single)
		}
		*s = Series{}
		return nil
	}
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("invalid y values: %w", err)
	}
	*s = values
	return nil
}

// ChartHint is the default chart drawn for a page
type ChartHint struct {
	Type    ChartType `json:"chartType" yaml:"type"`
	YValues Series    `json:"yValues" yaml:"y_values"`
}

// Node is one entry of the navigation tree
type Node struct {
	Key      string     `json:"key"`
	Label    string     `json:"label"`
	Children []*Node    `json:"children,omitempty"`
	Chart    *ChartHint `json:"defaultChart,omitempty"`
}

// IsLeaf reports whether the node is a page
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Child returns the direct child with the given key, or nil
func (n *Node) Child(key string) *Node {
	for _, c := range n.Children {
		if c.Key == key {
			return c
		}
	}
	return nil
}

// Catalog is the ordered navigation tree
type Catalog struct {
	Sections []*Node `json:"sections"`
}

// New builds a catalog from top-level sections
func New(sections ...*Node) *Catalog {
	return &Catalog{Sections: sections}
}

// Section returns the top-level node with the given key, or nil
func (c *Catalog) Section(key string) *Node {
	for _, s := range c.Sections {
		if s.Key == key {
			return s
		}
	}
	return nil
}

// Lookup resolves a key path to its node
func (c *Catalog) Lookup(path []string) (*Node, bool) {
	if len(path) == 0 {
		return nil, false
	}
	node := c.Section(path[0])
	for _, key := range path[1:] {
		if node == nil {
			return nil, false
		}
		node = node.Child(key)
	}
	return node, node != nil
}

// SkipChildren is returned by a WalkFunc to skip the current node's subtree
var SkipChildren = errors.New("skip children")

// WalkFunc is called for every node in depth-first catalog order.
// The path slice is owned by the callee.
type WalkFunc func(path []string, node *Node) error

// Walk visits every node depth-first in catalog order
func (c *Catalog) Walk(fn WalkFunc) error {
	for _, section := range c.Sections {
		if err := walk(nil, section, fn); err != nil {
			return err
		}
	}
	return nil
}

func walk(parent []string, node *Node, fn WalkFunc) error {
	path := make([]string, 0, len(parent)+1)
	path = append(append(path, parent...), node.Key)

	if err := fn(path, node); err != nil {
		if errors.Is(err, SkipChildren) {
			return nil
		}
		return err
	}
	for _, child := range node.Children {
		if err := walk(path, child, fn); err != nil {
			return err
		}
	}
	return nil
}

// Leaf is a page together with its key path
type Leaf struct {
	Path []string
	Node *Node
}

// Leaves lists every page in catalog order
func (c *Catalog) Leaves() []Leaf {
	var leaves []Leaf
	_ = c.Walk(func(path []string, n *Node) error {
		if n.IsLeaf() {
			leaves = append(leaves, Leaf{Path: path, Node: n})
		}
		return nil
	})
	return leaves
}

// RoutePath renders a key path as a lowercase URL path
func RoutePath(path []string) string {
	return "/" + strings.ToLower(strings.Join(path, "/"))
}

// SplitPath is the inverse of RoutePath for already-lowercase keys
func SplitPath(route string) []string {
	route = strings.Trim(route, "/")
	if route == "" {
		return nil
	}
	return strings.Split(route, "/")
}
