// Package auth contains domain-level types for identities, session state and credentials.
// It is pure and free of framework/adapter concerns.
package auth

import "slices"

// Role represents an application's authorization role.
// Keep string form for easy persistence and cookies.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleAccountant Role = "accountant"
	RoleUser       Role = "user"
)

// Identity is the normalized user record returned by the backend.
// Roles is never nil once produced by ParseIdentity.
type Identity struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  Role   `json:"role,omitempty"`
	Roles []Role `json:"roles"`
}

// HasRole reports whether the identity carries role r.
func (i Identity) HasRole(r Role) bool {
	return slices.Contains(i.Roles, r)
}

// Status is the coarse lifecycle position of a session.
type Status int

const (
	// StatusUnknown is the initial state until the first revalidation completes.
	StatusUnknown Status = iota
	StatusAuthenticated
	StatusAnonymous
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// SessionState is the in-memory record of the current authentication status.
// Values are snapshots; the Identity pointer is never shared with the owner.
type SessionState struct {
	Identity        *Identity `json:"identity,omitempty"`
	IsAuthenticated bool      `json:"is_authenticated"`
	IsLoading       bool      `json:"is_loading"`
	LastError       string    `json:"last_error,omitempty"`
}

// UnknownState returns the initial loading state.
func UnknownState() SessionState {
	return SessionState{IsLoading: true}
}

// AuthenticatedState returns a state holding a copy of id.
func AuthenticatedState(id Identity) SessionState {
	cp := id.clone()
	return SessionState{Identity: &cp, IsAuthenticated: true}
}

// AnonymousState returns the signed-out state.
func AnonymousState() SessionState {
	return SessionState{}
}

// Status derives the lifecycle position from the state flags.
func (s SessionState) Status() Status {
	switch {
	case s.IsLoading:
		return StatusUnknown
	case s.IsAuthenticated && s.Identity != nil:
		return StatusAuthenticated
	default:
		return StatusAnonymous
	}
}

// Valid reports whether identity presence and the authenticated flag agree.
func (s SessionState) Valid() bool {
	if s.IsLoading {
		return s.Identity == nil
	}
	return (s.Identity != nil) == s.IsAuthenticated
}

// HasRole is false whenever no identity is present.
func (s SessionState) HasRole(r Role) bool {
	if s.Identity == nil || !s.IsAuthenticated {
		return false
	}
	return s.Identity.HasRole(r)
}

// Clone returns a deep copy so callers can hold it without aliasing the owner's identity.
func (s SessionState) Clone() SessionState {
	if s.Identity != nil {
		cp := s.Identity.clone()
		s.Identity = &cp
	}
	return s
}

func (i Identity) clone() Identity {
	i.Roles = slices.Clone(i.Roles)
	if i.Roles == nil {
		i.Roles = []Role{}
	}
	return i
}
