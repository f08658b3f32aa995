package session

import (
	"encoding/json"

	"github.com/platinummonkey/backoffice/pkg/funds"
	"github.com/platinummonkey/backoffice/pkg/permissions"
)

// Status is the authentication phase of a session
type Status int

const (
	StatusAnonymous Status = iota
	StatusAuthenticating
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticating:
		return "authenticating"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// MarshalJSON encodes the status as its name
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// User identifies the logged-in user
type User struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Email   string `json:"email"`
}

// State is an immutable snapshot of a session. Trees in a snapshot are never
// shared with the store or with other snapshots.
type State struct {
	Status            Status           `json:"status"`
	Token             string           `json:"-"`
	User              User             `json:"user"`
	FullPermissions   permissions.Tree `json:"fullPermissions,omitempty"`
	FundAccess        funds.Tree       `json:"fundAccess,omitempty"`
	ChosenPermissions permissions.Tree `json:"chosenPermissions,omitempty"`
	ChosenFunds       funds.Tree       `json:"chosenFunds,omitempty"`
	SelectedFund      string           `json:"selectedFund,omitempty"`
	SelectedClass     string           `json:"selectedClass,omitempty"`
	LastError         string           `json:"lastError,omitempty"`
}

// IsAuthenticated reports whether the session holds a usable login
func (s State) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated && s.Token != ""
}

// Clone returns a deep copy of the state
func (s State) Clone() State {
	s.FullPermissions = s.FullPermissions.Clone()
	s.FundAccess = s.FundAccess.Clone()
	s.ChosenPermissions = s.ChosenPermissions.Clone()
	s.ChosenFunds = s.ChosenFunds.Clone()
	return s
}
