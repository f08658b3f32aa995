package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidationError lists every problem found in a catalog
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid catalog: %s", strings.Join(e.Problems, "; "))
}

// Validate checks the structural invariants of a catalog: key syntax,
// depth, labels, chart placement, sibling uniqueness and route uniqueness.
func Validate(c *Catalog) error {
	var problems []string
	addf := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	checkSiblings := func(parent string, nodes []*Node) {
		seen := make(map[string]bool, len(nodes))
		for _, n := range nodes {
			if seen[n.Key] {
				addf("%s: duplicate key %q", parent, n.Key)
			}
			seen[n.Key] = true
		}
	}
	checkSiblings("/", c.Sections)

	routes := make(map[string]string)
	_ = c.Walk(func(path []string, n *Node) error {
		joined := strings.Join(path, ".")

		if !keyPattern.MatchString(n.Key) {
			addf("%s: invalid key %q", joined, n.Key)
		}
		if len(path) > MaxDepth {
			addf("%s: nested deeper than %d levels", joined, MaxDepth)
		}
		if n.Label == "" {
			addf("%s: missing label", joined)
		}

		if !n.IsLeaf() {
			if n.Chart != nil {
				addf("%s: chart hint on a non-page node", joined)
			}
			checkSiblings(joined, n.Children)
			return nil
		}

		if n.Chart != nil && !n.Chart.Type.Valid() {
			addf("%s: unknown chart type %q", joined, n.Chart.Type)
		}
		route := RoutePath(path)
		if prev, ok := routes[route]; ok {
			addf("%s: route %s collides with %s", joined, route, prev)
		} else {
			routes[route] = joined
		}
		return nil
	})

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
