// Package permissions implements the per-user permission tree.
//
// A Tree mirrors the navigation catalog: every catalog node has a permission
// node on the same key path carrying an Access flag and an Edit flag. Access
// on an inner node gates its whole subtree; Edit is only meaningful on pages.
//
// Trees are values. Toggle never modifies its input, it returns a new tree
// that shares no nodes with the original, so a snapshot handed to a reader
// stays stable while an editor keeps toggling.
//
//	next, err := permissions.Toggle(tree, []string{"cotas", "cotas"}, permissions.Access)
//	if errors.Is(err, permissions.ErrPathNotFound) {
//	    // the path does not exist in the tree
//	}
//
// The backend historically encoded the flags as "acesso" and "edicao"; both
// spellings are accepted when decoding, and "access"/"edit" are written.
package permissions
