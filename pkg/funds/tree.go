package funds

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrFundNotFound is returned when a toggle targets an unknown fund
	ErrFundNotFound = errors.New("fund not found")
	// ErrClassNotFound is returned when a toggle targets an unknown class
	ErrClassNotFound = errors.New("class not found")
)

// ClassAccess is the access flag of one share class
type ClassAccess struct {
	Access bool `json:"access"`
}

// UnmarshalJSON accepts the legacy "acesso" key
func (c *ClassAccess) UnmarshalJSON(data []byte) error {
	var raw struct {
		Access *bool `json:"access"`
		Acesso *bool `json:"acesso"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = ClassAccess{}
	if raw.Access != nil {
		c.Access = *raw.Access
	} else if raw.Acesso != nil {
		c.Access = *raw.Acesso
	}
	return nil
}

// Entry is the access state of one fund and its classes
type Entry struct {
	Access  bool                    `json:"access"`
	Classes map[string]*ClassAccess `json:"classes,omitempty"`
}

// UnmarshalJSON accepts the legacy "acesso" and "classe" keys
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Access  *bool                   `json:"access"`
		Acesso  *bool                   `json:"acesso"`
		Classes map[string]*ClassAccess `json:"classes"`
		Classe  map[string]*ClassAccess `json:"classe"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = Entry{Classes: raw.Classes}
	if raw.Access != nil {
		e.Access = *raw.Access
	} else if raw.Acesso != nil {
		e.Access = *raw.Acesso
	}
	if e.Classes == nil {
		e.Classes = raw.Classe
	}
	return nil
}

// Clone returns a deep copy of the entry
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	out := &Entry{Access: e.Access}
	if e.Classes != nil {
		out.Classes = make(map[string]*ClassAccess, len(e.Classes))
		for name, c := range e.Classes {
			if c == nil {
				out.Classes[name] = nil
				continue
			}
			out.Classes[name] = &ClassAccess{Access: c.Access}
		}
	}
	return out
}

// ClassNames lists the entry's classes sorted by name
func (e *Entry) ClassNames() []string {
	names := make([]string, 0, len(e.Classes))
	for name := range e.Classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tree maps fund names to their access entries
type Tree map[string]*Entry

// Listing is every fund known to the backend with its class names
type Listing map[string][]string

// FromListing builds a tree covering every fund and class of the listing,
// all with the given access
func FromListing(listing Listing, access bool) Tree {
	t := make(Tree, len(listing))
	for fund, classes := range listing {
		entry := &Entry{Access: access, Classes: make(map[string]*ClassAccess, len(classes))}
		for _, class := range classes {
			entry.Classes[class] = &ClassAccess{Access: access}
		}
		t[fund] = entry
	}
	return t
}

// Clone returns a structural deep copy sharing no entries with t
func (t Tree) Clone() Tree {
	if t == nil {
		return nil
	}
	out := make(Tree, len(t))
	for fund, entry := range t {
		out[fund] = entry.Clone()
	}
	return out
}

// Names lists the funds sorted by name
func (t Tree) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Accessible reports whether the fund is granted
func (t Tree) Accessible(fund string) bool {
	entry := t[fund]
	return entry != nil && entry.Access
}

// ClassAccessible reports whether the class is granted. A denied fund
// denies all of its classes.
func (t Tree) ClassAccessible(fund, class string) bool {
	if !t.Accessible(fund) {
		return false
	}
	c := t[fund].Classes[class]
	return c != nil && c.Access
}

// Visible returns the funds and classes a user can actually choose: granted
// funds with only their granted classes.
func (t Tree) Visible() Tree {
	out := make(Tree)
	for fund, entry := range t {
		if entry == nil || !entry.Access {
			continue
		}
		visible := &Entry{Access: true, Classes: make(map[string]*ClassAccess)}
		for class, c := range entry.Classes {
			if c != nil && c.Access {
				visible.Classes[class] = &ClassAccess{Access: true}
			}
		}
		out[fund] = visible
	}
	return out
}

// ToggleFund returns a copy of t with the fund's access flipped. Classes keep
// their own flags.
func ToggleFund(t Tree, fund string) (Tree, error) {
	if t[fund] == nil {
		return nil, fmt.Errorf("toggle fund %q: %w", fund, ErrFundNotFound)
	}
	next := t.Clone()
	next[fund].Access = !next[fund].Access
	return next, nil
}

// ToggleClass returns a copy of t with one class's access flipped
func ToggleClass(t Tree, fund, class string) (Tree, error) {
	entry := t[fund]
	if entry == nil {
		return nil, fmt.Errorf("toggle class %q of %q: %w", class, fund, ErrFundNotFound)
	}
	if entry.Classes[class] == nil {
		return nil, fmt.Errorf("toggle class %q of %q: %w", class, fund, ErrClassNotFound)
	}
	next := t.Clone()
	c := next[fund].Classes[class]
	c.Access = !c.Access
	return next, nil
}

// Equal reports whether two trees grant the same funds and classes
func Equal(a, b Tree) bool {
	if len(a) != len(b) {
		return false
	}
	for fund, ea := range a {
		eb, ok := b[fund]
		if !ok || (ea == nil) != (eb == nil) {
			return false
		}
		if ea == nil {
			continue
		}
		if ea.Access != eb.Access || len(ea.Classes) != len(eb.Classes) {
			return false
		}
		for class, ca := range ea.Classes {
			cb, ok := eb.Classes[class]
			if !ok || (ca == nil) != (cb == nil) {
				return false
			}
			if ca != nil && ca.Access != cb.Access {
				return false
			}
		}
	}
	return true
}

// Merge returns a copy of t extended with every fund and class of the
// listing that t lacks, added denied
func Merge(t Tree, listing Listing) Tree {
	next := t.Clone()
	if next == nil {
		next = make(Tree, len(listing))
	}
	for fund, classes := range listing {
		entry := next[fund]
		if entry == nil {
			entry = &Entry{}
			next[fund] = entry
		}
		if entry.Classes == nil {
			entry.Classes = make(map[string]*ClassAccess, len(classes))
		}
		for _, class := range classes {
			if entry.Classes[class] == nil {
				entry.Classes[class] = &ClassAccess{}
			}
		}
	}
	return next
}

// UnmarshalJSON decodes the backend's {"fund": {"classes": [...]}} listing
func (l *Listing) UnmarshalJSON(data []byte) error {
	var raw map[string]struct {
		Classes []string `json:"classes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Listing, len(raw))
	for fund, v := range raw {
		out[fund] = v.Classes
	}
	*l = out
	return nil
}

// MarshalJSON encodes the listing in the backend's shape
func (l Listing) MarshalJSON() ([]byte, error) {
	out := make(map[string]map[string][]string, len(l))
	for fund, classes := range l {
		if classes == nil {
			classes = []string{}
		}
		out[fund] = map[string][]string{"classes": classes}
	}
	return json.Marshal(out)
}
