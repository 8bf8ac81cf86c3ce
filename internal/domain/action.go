package domain

import "fmt"

// Action is an operation checked against a RoleGrant.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionExport Action = "export"
)

// ParseAction validates s.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionView, ActionCreate, ActionEdit, ActionDelete, ActionExport:
		return a, nil
	}
	return "", fmt.Errorf("invalid action: %q (must be view, create, edit, delete or export)", s)
}

// Decision is the outcome of an authorization check.
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Capability is what one grant says about one action. There is no deny
// state: a grant either allows the action or says nothing about it.
type Capability int

const (
	CapabilityUnset Capability = iota
	CapabilityAllow
)
