package permissions

import (
	"sort"
	"strings"

	"github.com/platinummonkey/backoffice/pkg/catalog"
)

// Skeleton builds a tree with exactly the catalog's shape, every node set
// to the given flags. It is the starting point for new users.
func Skeleton(cat *catalog.Catalog, access, edit bool) Tree {
	return skeletonLevel(cat.Sections, access, edit)
}

func skeletonLevel(nodes []*catalog.Node, access, edit bool) Tree {
	if len(nodes) == 0 {
		return nil
	}
	level := make(Tree, len(nodes))
	for _, n := range nodes {
		level[n.Key] = &Node{
			Access:   access,
			Edit:     edit,
			Children: skeletonLevel(n.Children, access, edit),
		}
	}
	return level
}

// Drift describes where a tree and a catalog disagree. Paths are
// slash-joined key paths.
type Drift struct {
	// Missing lists catalog nodes without a permission node; they are denied.
	Missing []string `json:"missing,omitempty"`
	// Extra lists permission nodes the catalog does not know; they are ignored.
	Extra []string `json:"extra,omitempty"`
}

// Empty reports whether the tree conforms to the catalog
func (d Drift) Empty() bool {
	return len(d.Missing) == 0 && len(d.Extra) == 0
}

// Conform compares a tree's shape against the catalog
func Conform(t Tree, cat *catalog.Catalog) Drift {
	var drift Drift

	_ = cat.Walk(func(path []string, _ *catalog.Node) error {
		if _, ok := t.Lookup(path); !ok {
			drift.Missing = append(drift.Missing, strings.Join(path, "/"))
			return catalog.SkipChildren
		}
		return nil
	})

	for _, path := range t.Paths() {
		if _, ok := cat.Lookup(path); ok {
			continue
		}
		// report only the topmost unknown node
		if _, parentKnown := cat.Lookup(path[:len(path)-1]); len(path) == 1 || parentKnown {
			drift.Extra = append(drift.Extra, strings.Join(path, "/"))
		}
	}

	sort.Strings(drift.Missing)
	sort.Strings(drift.Extra)
	return drift
}

// Normalize returns a tree with the catalog's shape: flags are copied from t
// where the path exists, missing nodes are added denied, and extra nodes are
// dropped.
func Normalize(t Tree, cat *catalog.Catalog) Tree {
	return normalizeLevel(t, cat.Sections)
}

func normalizeLevel(level Tree, nodes []*catalog.Node) Tree {
	if len(nodes) == 0 {
		return nil
	}
	out := make(Tree, len(nodes))
	for _, n := range nodes {
		next := &Node{}
		var children Tree
		if existing := level[n.Key]; existing != nil {
			next.Access = existing.Access
			next.Edit = existing.Edit
			children = existing.Children
		}
		next.Children = normalizeLevel(children, n.Children)
		out[n.Key] = next
	}
	return out
}
