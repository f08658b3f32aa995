package editor

import (
	"strings"

	"github.com/platinummonkey/backoffice/pkg/audit"
	"github.com/platinummonkey/backoffice/pkg/funds"
	"github.com/platinummonkey/backoffice/pkg/permissions"
)

type flags struct {
	Access bool `json:"access"`
	Edit   bool `json:"edit,omitempty"`
}

func permissionFlags(t permissions.Tree) map[string]flags {
	out := make(map[string]flags)
	for _, path := range t.Paths() {
		node, _ := t.Lookup(path)
		out[strings.Join(path, "/")] = flags{Access: node.Access, Edit: node.Edit}
	}
	return out
}

func fundFlags(t funds.Tree) map[string]flags {
	out := make(map[string]flags)
	for fund, entry := range t {
		if entry == nil {
			continue
		}
		out[fund] = flags{Access: entry.Access}
		for class, c := range entry.Classes {
			if c != nil {
				out[fund+"/"+class] = flags{Access: c.Access}
			}
		}
	}
	return out
}

func diff(before, after map[string]flags) *audit.ChangeDetails {
	changes := &audit.ChangeDetails{
		Before: make(map[string]interface{}),
		After:  make(map[string]interface{}),
	}
	for path, b := range before {
		a, ok := after[path]
		if ok && a == b {
			continue
		}
		changes.Before[path] = b
		if ok {
			changes.After[path] = a
		}
	}
	for path, a := range after {
		if _, ok := before[path]; !ok {
			changes.After[path] = a
		}
	}
	if len(changes.Before) == 0 && len(changes.After) == 0 {
		return nil
	}
	return changes
}

// PermissionChanges lists the permission nodes whose flags differ, keyed by
// slash-joined path. It returns nil when the trees are equal.
func PermissionChanges(before, after permissions.Tree) *audit.ChangeDetails {
	return diff(permissionFlags(before), permissionFlags(after))
}

// FundAccessChanges lists the funds ("Alpha") and classes ("Alpha/Senior")
// whose access differs. It returns nil when the trees are equal.
func FundAccessChanges(before, after funds.Tree) *audit.ChangeDetails {
	return diff(fundFlags(before), fundFlags(after))
}
