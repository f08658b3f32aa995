// Package editor implements the administrator's user editor: loading a
// user's permission and fund access trees into the acting session's chosen
// state, toggling them, and submitting the complete trees back.
//
// The editor never builds a user's trees from scratch. Editing starts from
// a deep copy of the stored record, and a new user starts from the catalog
// skeleton and the backend's full fund listing with everything denied:
//
//	ed := editor.New(source, manager.Store(), editor.StaticCatalog(cat))
//	if _, err := ed.Load(ctx, 12); err != nil {
//	    return err
//	}
//	ed.TogglePermission([]string{"cotas", "cotas"}, permissions.Access)
//	ed.ToggleClass("Alpha", "Senior")
//	if _, err := ed.Submit(ctx); err != nil {
//	    // the chosen trees are untouched; fix and resubmit
//	}
//
// Only users with Edit on the user administration page may edit.
package editor
