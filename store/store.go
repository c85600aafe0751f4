// Package store defines the narrow persistence surface the governance
// pipeline depends on: user lookup/creation keyed by external identity and
// workspace membership checks. The full ledger schema (accounts, categories,
// transactions) lives behind the business resolvers and is not modeled here.
package store

import (
	"context"
	"time"
)

// User is the backing record for an authenticated identity.
type User struct {
	ID         string
	ExternalID string // subject from the identity provider
	Email      string
	CreatedAt  time.Time
}

// Workspace is the tenant isolation boundary. All ledger entities are
// partitioned by workspace.
type Workspace struct {
	ID        string
	Name      string
	OwnerID   string
	CreatedAt time.Time
}

// Role describes a user's capabilities within a workspace.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

// Membership links a user to a workspace with a role.
type Membership struct {
	UserID      string
	WorkspaceID string
	Role        Role
	CreatedAt   time.Time
}

// UserStore is the persistence interface consumed by the request context
// assembler and the request-scoped loaders.
type UserStore interface {
	// FindOrCreateByExternalID returns the user for the given external
	// identity, creating the user together with a default workspace and an
	// owner membership in one atomic operation when unseen. Concurrent
	// first-time calls for the same identity must converge on a single
	// user record.
	FindOrCreateByExternalID(ctx context.Context, externalID, email string) (*User, *Workspace, error)

	// UsersByIDs returns the users for the given IDs. Missing IDs are
	// simply absent from the result.
	UsersByIDs(ctx context.Context, ids []string) (map[string]*User, error)

	// WorkspacesByIDs returns the workspaces for the given IDs.
	WorkspacesByIDs(ctx context.Context, ids []string) (map[string]*Workspace, error)

	// WorkspacesForUser returns all workspaces the user is a member of.
	WorkspacesForUser(ctx context.Context, userID string) ([]*Workspace, error)

	// Membership returns the membership of userID in workspaceID, or
	// ErrNotFound when the user does not belong to the workspace.
	Membership(ctx context.Context, userID, workspaceID string) (*Membership, error)
}
