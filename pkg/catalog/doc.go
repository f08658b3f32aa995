// Package catalog holds the static navigation catalog of the back-office
// dashboard.
//
// The catalog is a tree of at most three levels. Top-level nodes are menu
// sections, inner nodes group pages, and leaves are pages. Every node has a
// Key (a route segment) and a display Label; leaves may carry a default chart
// hint used by the page renderer.
//
// # Ordering
//
// Menu order is significant, so the catalog is stored as ordered slices and
// loaded from YAML through yaml.Node, which keeps mapping order intact:
//
//	fundo:
//	  label: Fundo
//	  children:
//	    fundo: Escolha de Fundo     # shorthand leaf
//	    classes:
//	      label: Escolha de Classes
//
// # Usage
//
//	cat := catalog.Default()
//	err := cat.Walk(func(path []string, n *catalog.Node) error {
//	    fmt.Println(catalog.RoutePath(path), n.Label)
//	    return nil
//	})
//
// A Catalog is never mutated after loading and is safe for concurrent use.
package catalog
