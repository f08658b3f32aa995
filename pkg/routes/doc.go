// Package routes turns the navigation catalog and a user's permission tree
// into the route table and menu the dashboard renders.
//
// Generation walks the catalog depth-first in catalog order. A node is kept
// only when its permission node exists and grants access; a denied inner node
// removes its whole subtree, and a catalog node without a permission node is
// treated as denied. Permission nodes the catalog does not know are ignored.
//
//	table := routes.Generate(catalog.Default(), session.FullPermissions, routes.DefaultRegistry())
//	if route, ok := table.Lookup("/cotas/cotas"); ok {
//	    fmt.Println(route.Component.Name, route.Component.DataEndpoint)
//	}
//
// Page components are resolved through a static Registry keyed by page key.
// Pages missing from the registry fall back to ComponentName(key) with no data
// endpoint.
//
// Tables are immutable once generated and safe to share between sessions;
// Cache memoizes them by permission tree fingerprint.
package routes
