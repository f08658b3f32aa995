// Package funds models which funds, and which share classes inside them, a
// user may see.
//
// A fund with Access=false hides all of its classes without deleting them, so
// re-enabling the fund restores the previous class selection. Like the
// permission tree, fund trees are copied on every toggle.
package funds
