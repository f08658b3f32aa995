package session

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/backoffice/pkg/funds"
	"github.com/platinummonkey/backoffice/pkg/permissions"
)

var (
	// ErrIncompleteLogin is returned when a login result lacks a token or a
	// permission tree. The session rolls back to anonymous.
	ErrIncompleteLogin = errors.New("incomplete login")

	// ErrNotAuthenticated is returned by operations that need a login
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrInvalidTransition is returned when an action does not apply to the
	// current status
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrFundNotAccessible is returned when selecting a fund or class the
	// user cannot access
	ErrFundNotAccessible = errors.New("fund not accessible")
)

// Action is a session state transition
type Action interface {
	action() string
}

// LoginStarted moves an anonymous session to authenticating
type LoginStarted struct{}

// LoginSucceeded populates the session in one step
type LoginSucceeded struct {
	Token       string
	User        User
	Permissions permissions.Tree
	Funds       funds.Tree
}

// LoginFailed returns an authenticating session to anonymous
type LoginFailed struct {
	Reason string
}

// LoggedOut clears the session
type LoggedOut struct{}

// ChosenLoaded replaces both chosen trees, typically with a user being edited
type ChosenLoaded struct {
	Permissions permissions.Tree
	Funds       funds.Tree
}

// ChosenPermissionsSet replaces the chosen permission tree
type ChosenPermissionsSet struct {
	Permissions permissions.Tree
}

// ChosenFundsSet replaces the chosen fund access tree
type ChosenFundsSet struct {
	Funds funds.Tree
}

// FundSelected records the fund and class the user is browsing. An empty
// fund clears the selection.
type FundSelected struct {
	Fund  string
	Class string
}

func (LoginStarted) action() string         { return "login_started" }
func (LoginSucceeded) action() string       { return "login_succeeded" }
func (LoginFailed) action() string          { return "login_failed" }
func (LoggedOut) action() string            { return "logged_out" }
func (ChosenLoaded) action() string         { return "chosen_loaded" }
func (ChosenPermissionsSet) action() string { return "chosen_permissions_set" }
func (ChosenFundsSet) action() string       { return "chosen_funds_set" }
func (FundSelected) action() string         { return "fund_selected" }

func invalid(a Action, s State) error {
	return fmt.Errorf("%s while %s: %w", a.action(), s.Status, ErrInvalidTransition)
}

// reduce computes the next state. On error the returned state is the one the
// store must hold: unchanged for rejected transitions, anonymous for an
// incomplete login.
func reduce(s State, a Action) (State, error) {
	switch a := a.(type) {
	case LoginStarted:
		if s.Status != StatusAnonymous {
			return s, invalid(a, s)
		}
		return State{Status: StatusAuthenticating}, nil

	case LoginSucceeded:
		if s.Status != StatusAuthenticating {
			return s, invalid(a, s)
		}
		if a.Token == "" || len(a.Permissions) == 0 {
			return State{Status: StatusAnonymous, LastError: ErrIncompleteLogin.Error()}, ErrIncompleteLogin
		}
		return State{
			Status:            StatusAuthenticated,
			Token:             a.Token,
			User:              a.User,
			FullPermissions:   a.Permissions.Clone(),
			FundAccess:        a.Funds.Clone(),
			ChosenPermissions: a.Permissions.Clone(),
			ChosenFunds:       a.Funds.Clone(),
		}, nil

	case LoginFailed:
		if s.Status != StatusAuthenticating {
			return s, invalid(a, s)
		}
		return State{Status: StatusAnonymous, LastError: a.Reason}, nil

	case LoggedOut:
		return State{Status: StatusAnonymous}, nil

	case ChosenLoaded:
		if !s.IsAuthenticated() {
			return s, fmt.Errorf("%s: %w", a.action(), ErrNotAuthenticated)
		}
		s.ChosenPermissions = a.Permissions.Clone()
		s.ChosenFunds = a.Funds.Clone()
		return s, nil

	case ChosenPermissionsSet:
		if !s.IsAuthenticated() {
			return s, fmt.Errorf("%s: %w", a.action(), ErrNotAuthenticated)
		}
		s.ChosenPermissions = a.Permissions.Clone()
		return s, nil

	case ChosenFundsSet:
		if !s.IsAuthenticated() {
			return s, fmt.Errorf("%s: %w", a.action(), ErrNotAuthenticated)
		}
		s.ChosenFunds = a.Funds.Clone()
		return s, nil

	case FundSelected:
		if !s.IsAuthenticated() {
			return s, fmt.Errorf("%s: %w", a.action(), ErrNotAuthenticated)
		}
		switch {
		case a.Fund == "":
			s.SelectedFund, s.SelectedClass = "", ""
			return s, nil
		case !s.FundAccess.Accessible(a.Fund):
			return s, fmt.Errorf("fund %q: %w", a.Fund, ErrFundNotAccessible)
		case a.Class != "" && !s.FundAccess.ClassAccessible(a.Fund, a.Class):
			return s, fmt.Errorf("class %q of fund %q: %w", a.Class, a.Fund, ErrFundNotAccessible)
		}
		s.SelectedFund, s.SelectedClass = a.Fund, a.Class
		return s, nil
	}

	return s, fmt.Errorf("unknown action %T: %w", a, ErrInvalidTransition)
}
