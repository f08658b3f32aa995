package permissions

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrPathNotFound is returned when a toggle targets a node that does not exist
	ErrPathNotFound = errors.New("permission path not found")
	// ErrEmptyPath is returned when a toggle has no target
	ErrEmptyPath = errors.New("empty permission path")
)

// Field selects which flag of a node a toggle flips
type Field int

const (
	Access Field = iota
	Edit
)

func (f Field) String() string {
	switch f {
	case Access:
		return "access"
	case Edit:
		return "edit"
	default:
		return fmt.Sprintf("Field(%d)", int(f))
	}
}

// ParseField parses a field name, accepting the legacy spellings
func ParseField(s string) (Field, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "access", "acesso":
		return Access, nil
	case "edit", "edicao":
		return Edit, nil
	default:
		return 0, fmt.Errorf("unknown permission field %q", s)
	}
}

// Node is the permission state of one catalog node
type Node struct {
	Access   bool `json:"access"`
	Edit     bool `json:"edit"`
	Children Tree `json:"children,omitempty"`
}

// UnmarshalJSON accepts both access/edit and the legacy acesso/edicao keys
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw struct {
		Access   *bool `json:"access"`
		Edit     *bool `json:"edit"`
		Acesso   *bool `json:"acesso"`
		Edicao   *bool `json:"edicao"`
		Children Tree  `json:"children"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*n = Node{Children: raw.Children}
	switch {
	case raw.Access != nil:
		n.Access = *raw.Access
	case raw.Acesso != nil:
		n.Access = *raw.Acesso
	}
	switch {
	case raw.Edit != nil:
		n.Edit = *raw.Edit
	case raw.Edicao != nil:
		n.Edit = *raw.Edicao
	}
	return nil
}

// Clone returns a deep copy of the node
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	return &Node{
		Access:   n.Access,
		Edit:     n.Edit,
		Children: n.Children.Clone(),
	}
}

// IsLeaf reports whether the node has no children
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Tree maps top-level section keys to their permission nodes
type Tree map[string]*Node

// Clone returns a structural deep copy sharing no nodes with t
func (t Tree) Clone() Tree {
	if t == nil {
		return nil
	}
	out := make(Tree, len(t))
	for key, node := range t {
		out[key] = node.Clone()
	}
	return out
}

// Lookup resolves a key path to its node
func (t Tree) Lookup(path []string) (*Node, bool) {
	if len(path) == 0 {
		return nil, false
	}
	level := t
	var node *Node
	for _, key := range path {
		node = level[key]
		if node == nil {
			return nil, false
		}
		level = node.Children
	}
	return node, true
}

// EffectiveAccess reports whether every node from the root down to path
// grants access. Missing nodes deny.
func (t Tree) EffectiveAccess(path []string) bool {
	if len(path) == 0 {
		return false
	}
	level := t
	for _, key := range path {
		node := level[key]
		if node == nil || !node.Access {
			return false
		}
		level = node.Children
	}
	return true
}

// CanEdit reports whether path is reachable and its node grants edit
func (t Tree) CanEdit(path []string) bool {
	if !t.EffectiveAccess(path) {
		return false
	}
	node, _ := t.Lookup(path)
	return node.Edit
}

// Toggle returns a copy of t with field flipped on the node at path.
// t itself is left untouched.
func Toggle(t Tree, path []string, field Field) (Tree, error) {
	if len(path) == 0 {
		return nil, ErrEmptyPath
	}
	if field != Access && field != Edit {
		return nil, fmt.Errorf("toggle %s: unknown field %s", strings.Join(path, "/"), field)
	}
	if _, ok := t.Lookup(path); !ok {
		return nil, fmt.Errorf("toggle %s: %w", strings.Join(path, "/"), ErrPathNotFound)
	}

	next := t.Clone()
	node, _ := next.Lookup(path)
	switch field {
	case Access:
		node.Access = !node.Access
	case Edit:
		node.Edit = !node.Edit
	}
	return next, nil
}

// MustToggle is like Toggle but panics on error. Use it only with paths
// taken from the same catalog the tree was built from.
func MustToggle(t Tree, path []string, field Field) Tree {
	next, err := Toggle(t, path, field)
	if err != nil {
		panic(err)
	}
	return next
}

// Equal reports whether two trees have the same shape and flags
func Equal(a, b Tree) bool {
	if len(a) != len(b) {
		return false
	}
	for key, na := range a {
		nb, ok := b[key]
		if !ok {
			return false
		}
		if (na == nil) != (nb == nil) {
			return false
		}
		if na == nil {
			continue
		}
		if na.Access != nb.Access || na.Edit != nb.Edit || !Equal(na.Children, nb.Children) {
			return false
		}
	}
	return true
}

// Paths lists the key path of every node, sorted lexically
func (t Tree) Paths() [][]string {
	var paths [][]string
	var visit func(prefix []string, level Tree)
	visit = func(prefix []string, level Tree) {
		for key, node := range level {
			if node == nil {
				continue
			}
			path := append(append(make([]string, 0, len(prefix)+1), prefix...), key)
			paths = append(paths, path)
			visit(path, node.Children)
		}
	}
	visit(nil, t)

	sort.Slice(paths, func(i, j int) bool {
		return strings.Join(paths[i], "/") < strings.Join(paths[j], "/")
	})
	return paths
}
