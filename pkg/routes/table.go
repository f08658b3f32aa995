package routes

import (
	"strings"

	"github.com/platinummonkey/backoffice/pkg/catalog"
	"github.com/platinummonkey/backoffice/pkg/permissions"
)

// Route is one reachable page
type Route struct {
	Path  string `json:"path"`
	Key   string `json:"key"`
	Label string `json:"label"`

	// Section is the key path of the page's ancestors
	Section   []string           `json:"section"`
	Component Component          `json:"component"`
	Module    string             `json:"module"`
	CanEdit   bool               `json:"canEdit"`
	Chart     *catalog.ChartHint `json:"defaultChart,omitempty"`
}

// KeyPath returns the full key path of the page
func (r Route) KeyPath() []string {
	path := make([]string, 0, len(r.Section)+1)
	return append(append(path, r.Section...), r.Key)
}

// MenuItem is one entry of the rendered menu. Leaves carry a Path, groups
// carry Children.
type MenuItem struct {
	Key      string      `json:"key"`
	Label    string      `json:"label"`
	Path     string      `json:"path,omitempty"`
	Children []*MenuItem `json:"children,omitempty"`
}

// Table is the result of route generation
type Table struct {
	Routes []Route     `json:"routes"`
	Menu   []*MenuItem `json:"menu"`
	index  map[string]int
}

// Generate builds the route table for a permission tree. It never fails:
// anything it cannot match is left out.
func Generate(cat *catalog.Catalog, perms permissions.Tree, reg Registry) *Table {
	t := &Table{
		Routes: []Route{},
		Menu:   []*MenuItem{},
		index:  make(map[string]int),
	}
	t.Menu = append(t.Menu, t.build(cat.Sections, perms, nil, reg)...)
	return t
}

func (t *Table) build(nodes []*catalog.Node, level permissions.Tree, prefix []string, reg Registry) []*MenuItem {
	var items []*MenuItem
	for _, n := range nodes {
		perm := level[n.Key]
		if perm == nil || !perm.Access {
			continue
		}

		path := make([]string, 0, len(prefix)+1)
		path = append(append(path, prefix...), n.Key)

		if n.IsLeaf() {
			route := Route{
				Path:      catalog.RoutePath(path),
				Key:       n.Key,
				Label:     n.Label,
				Section:   prefix,
				Component: reg.Resolve(n.Key),
				CanEdit:   perm.Edit,
				Chart:     n.Chart,
			}
			route.Module = moduleFor(prefix, route.Component.Name)
			if !t.add(route) {
				continue
			}
			items = append(items, &MenuItem{Key: n.Key, Label: n.Label, Path: route.Path})
			continue
		}

		children := t.build(n.Children, perm.Children, path, reg)
		if len(children) == 0 {
			continue
		}
		items = append(items, &MenuItem{Key: n.Key, Label: n.Label, Children: children})
	}
	return items
}

// add registers a route; the first route for a path wins
func (t *Table) add(r Route) bool {
	if _, exists := t.index[r.Path]; exists {
		return false
	}
	t.index[r.Path] = len(t.Routes)
	t.Routes = append(t.Routes, r)
	return true
}

func moduleFor(section []string, component string) string {
	if len(section) == 0 {
		return "routes/" + component
	}
	return "routes/" + strings.Join(section, "/") + "/" + component
}

// Lookup finds the route for a URL path. Matching ignores case and a
// trailing slash.
func (t *Table) Lookup(path string) (Route, bool) {
	key := normalizePath(path)
	if t.index == nil {
		t.reindex()
	}
	i, ok := t.index[key]
	if !ok {
		return Route{}, false
	}
	return t.Routes[i], true
}

// Allows reports whether the table has a route for the path
func (t *Table) Allows(path string) bool {
	_, ok := t.Lookup(path)
	return ok
}

// Paths lists every route path in catalog order
func (t *Table) Paths() []string {
	paths := make([]string, len(t.Routes))
	for i, r := range t.Routes {
		paths[i] = r.Path
	}
	return paths
}

// reindex rebuilds the lookup index of a decoded table
func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Routes))
	for i, r := range t.Routes {
		t.index[r.Path] = i
	}
}

func normalizePath(path string) string {
	path = strings.ToLower(strings.TrimSpace(path))
	path = strings.TrimRight(path, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
