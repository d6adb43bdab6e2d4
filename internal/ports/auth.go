// Package ports defines interfaces (hexagonal ports) for session-related behavior.
// Implementations live in internal/adapters; orchestration in internal/apiclient and internal/service.
package ports

import (
	"context"

	domainauth "github.com/target/bizdesk/internal/domain/auth"
)

// CredentialStore persists the access credential and the forgery token by name.
// It is a passive last-writer-wins store: callers interpret its contents.
type CredentialStore interface {
	// Get returns the named value; any read or decode failure reports absent.
	Get(ctx context.Context, name string) (string, bool)
	// Set writes the named value with the given attributes.
	Set(ctx context.Context, name, value string, opts domainauth.CookieOptions) error
	// Delete expires the named value immediately; deleting an absent name is not an error.
	Delete(ctx context.Context, name string) error
}

// Navigator moves the user between views.
type Navigator interface {
	// CurrentPath returns the path of the view that is currently shown.
	CurrentPath() string
	// Navigate switches to target (a path with optional query).
	Navigate(ctx context.Context, target string)
}
