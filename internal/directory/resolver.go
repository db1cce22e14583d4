// Package directory is the messaging core's view of the Identity & Directory
// Service. The core consumes identities only through the narrow Resolver
// contract; account management lives entirely outside this repo. The roster
// assembly the directory service needs (peers with last-message previews and
// unread counts) is hosted here as well, since it is glue over the message
// store and presence tracker rather than core logic.
package directory

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an identifier does not resolve to a user.
var ErrNotFound = errors.New("directory: user not found")

// User is the slice of identity the messaging core needs: an opaque
// immutable ID plus the mutable display name shown to peers.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Resolver resolves login identifiers (email addresses in the standard
// deployment) to users.
type Resolver interface {
	// ResolveUser returns the user for the given identifier, or ErrNotFound.
	ResolveUser(ctx context.Context, identifier string) (*User, error)
}

// Lister enumerates every user other than the given one, for roster display.
type Lister interface {
	ListPeers(ctx context.Context, excludeUserID string) ([]User, error)
}
