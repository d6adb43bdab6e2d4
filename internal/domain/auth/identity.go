package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedIdentity is returned when a backend user payload cannot be normalized.
var ErrMalformedIdentity = errors.New("malformed identity")

// rawIdentity accepts every user shape the backend has been seen to return.
type rawIdentity struct {
	ID          json.RawMessage `json:"id"`
	UserID      json.RawMessage `json:"userId"`
	MongoID     json.RawMessage `json:"_id"`
	Email       *string         `json:"email"`
	Name        *string         `json:"name"`
	DisplayName *string         `json:"displayName"`
	Role        json.RawMessage `json:"role"`
	Roles       json.RawMessage `json:"roles"`
}

// ParseIdentity normalizes a backend user object into an Identity.
// The id is taken from id, userId or _id (string or number); the role set is derived from
// roles and/or role and is empty (never nil) when neither is given.
// Payloads that are not objects, carry wrongly typed role fields, or have neither an id nor an
// email are rejected with ErrMalformedIdentity.
func ParseIdentity(raw json.RawMessage) (Identity, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Identity{}, fmt.Errorf("%w: user is not an object", ErrMalformedIdentity)
	}

	var in rawIdentity
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrMalformedIdentity, err)
	}

	id, err := firstID(in.ID, in.UserID, in.MongoID)
	if err != nil {
		return Identity{}, err
	}

	out := Identity{ID: id}
	if in.Email != nil {
		out.Email = strings.TrimSpace(*in.Email)
	}
	switch {
	case in.Name != nil:
		out.Name = strings.TrimSpace(*in.Name)
	case in.DisplayName != nil:
		out.Name = strings.TrimSpace(*in.DisplayName)
	}
	if out.ID == "" && out.Email == "" {
		return Identity{}, fmt.Errorf("%w: neither id nor email present", ErrMalformedIdentity)
	}

	role, err := parseRole(in.Role)
	if err != nil {
		return Identity{}, err
	}
	roles, err := parseRoles(in.Roles)
	if err != nil {
		return Identity{}, err
	}

	out.Roles = mergeRoles(role, roles)
	out.Role = role
	if out.Role == "" && len(out.Roles) > 0 {
		out.Role = out.Roles[0]
	}
	return out, nil
}

func firstID(candidates ...json.RawMessage) (string, error) {
	for _, c := range candidates {
		if isAbsent(c) {
			continue
		}
		var s string
		if err := json.Unmarshal(c, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s, nil
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(c, &n); err == nil {
			if _, perr := strconv.ParseFloat(n.String(), 64); perr == nil {
				return n.String(), nil
			}
		}
		return "", fmt.Errorf("%w: id must be a string or number", ErrMalformedIdentity)
	}
	return "", nil
}

func parseRole(raw json.RawMessage) (Role, error) {
	if isAbsent(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: role must be a string", ErrMalformedIdentity)
	}
	return Role(strings.TrimSpace(s)), nil
}

func parseRoles(raw json.RawMessage) ([]Role, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: roles must be an array of strings", ErrMalformedIdentity)
	}
	out := make([]Role, 0, len(list))
	for _, r := range list {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, Role(r))
		}
	}
	return out, nil
}

func mergeRoles(role Role, roles []Role) []Role {
	out := make([]Role, 0, len(roles)+1)
	seen := make(map[Role]struct{}, len(roles)+1)
	add := func(r Role) {
		if r == "" {
			return
		}
		if _, ok := seen[r]; ok {
			return
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	add(role)
	for _, r := range roles {
		add(r)
	}
	return out
}

func isAbsent(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
