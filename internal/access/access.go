// Package access decides whether a session may enter a role-scoped part of
// the portal and where to send it when it may not.
package access

import (
	"net/url"

	"campusportal/internal/model"
)

type Status int

const (
	// StatusLoading means the session is still being established. No
	// redirect decision is made in this state.
	StatusLoading Status = iota
	StatusUnauthenticated
	StatusAuthenticated
)

type SessionState struct {
	Status Status
	Role   model.Role
}

func Loading() SessionState { return SessionState{Status: StatusLoading} }
func Unauthenticated() SessionState { return SessionState{Status: StatusUnauthenticated} }
func Authenticated(r model.Role) SessionState { return SessionState{Status: StatusAuthenticated, Role: r} }

// RoleSet lists the roles accepted by a route. An empty set accepts any
// authenticated session.
type RoleSet []model.Role

func Roles(roles ...model.Role) RoleSet { return RoleSet(roles) }

func (s RoleSet) Contains(role model.Role) bool {
	for _, r := range s {
		if r == role {
			return true
		}
	}
	return false
}

type Kind int

const (
	Pending Kind = iota
	Allow
	Deny
)

func (k Kind) String() string {
	switch k {
	case Pending:
		return "pending"
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

type Decision struct {
	Kind     Kind
	Redirect string
	// Reason is "unauthenticated" or "forbidden" for denials.
	Reason string
}

// Policy holds the explicit grants: a role listed under another role's key
// satisfies requirements for that key. Administrators satisfy everything
// without a grant.
type Policy struct {
	grants map[model.Role][]model.Role
}

func NewPolicy(grants map[model.Role][]model.Role) *Policy {
	copied := make(map[model.Role][]model.Role, len(grants))
	for required, roles := range grants {
		copied[required] = append([]model.Role(nil), roles...)
	}
	return &Policy{grants: copied}
}

var defaultPolicy = NewPolicy(nil)

func Authorize(state SessionState, required RoleSet, requestedPath string) Decision {
	return defaultPolicy.Authorize(state, required, requestedPath)
}

func (p *Policy) Authorize(state SessionState, required RoleSet, requestedPath string) Decision {
	switch state.Status {
	case StatusLoading:
		return Decision{Kind: Pending}
	case StatusAuthenticated:
		if p.Satisfies(state.Role, required) {
			return Decision{Kind: Allow}
		}
		return Decision{Kind: Deny, Redirect: HomePath(state.Role), Reason: "forbidden"}
	default:
		return Decision{Kind: Deny, Redirect: LoginRedirect(required, requestedPath), Reason: "unauthenticated"}
	}
}

func (p *Policy) Satisfies(role model.Role, required RoleSet) bool {
	if !role.Valid() {
		return false
	}
	if role == model.RoleAdmin || len(required) == 0 || required.Contains(role) {
		return true
	}
	for _, r := range required {
		for _, granted := range p.grants[r] {
			if granted == role {
				return true
			}
		}
	}
	return false
}

// LoginPath picks the login page for a route: the role's own page when the
// route accepts exactly one role, the shared page otherwise.
func LoginPath(required RoleSet) string {
	if len(required) == 1 && required[0].Valid() {
		return "/" + string(required[0]) + "/login"
	}
	return "/login"
}

// LoginRedirect is LoginPath with the requested path preserved for the
// post-login return.
func LoginRedirect(required RoleSet, requestedPath string) string {
	login := LoginPath(required)
	if requestedPath == "" {
		return login
	}
	return login + "?" + url.Values{"redirect": {requestedPath}}.Encode()
}

func HomePath(role model.Role) string {
	if !role.Valid() {
		return "/login"
	}
	return "/" + string(role) + "/dashboard"
}
