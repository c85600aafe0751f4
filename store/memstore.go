package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tallyhq/ledgergate/errors"
)

// MemStore is an in-memory UserStore. It backs tests and single-process
// deployments; the mutex makes find-or-create genuinely atomic, which is the
// property the assembler depends on under concurrent first-time requests.
type MemStore struct {
	mu          sync.RWMutex
	users       map[string]*User      // by user ID
	byExternal  map[string]string     // external ID -> user ID
	workspaces  map[string]*Workspace // by workspace ID
	memberships map[string][]*Membership
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		users:       make(map[string]*User),
		byExternal:  make(map[string]string),
		workspaces:  make(map[string]*Workspace),
		memberships: make(map[string][]*Membership),
	}
}

// FindOrCreateByExternalID implements UserStore.
func (s *MemStore) FindOrCreateByExternalID(_ context.Context, externalID, email string) (*User, *Workspace, error) {
	if externalID == "" {
		return nil, nil, errors.WrapInvalid(errors.ErrInvalidData, "MemStore",
			"FindOrCreateByExternalID", "external ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if userID, seen := s.byExternal[externalID]; seen {
		user := s.users[userID]
		ws := s.defaultWorkspaceLocked(userID)
		return user, ws, nil
	}

	now := time.Now()
	user := &User{
		ID:         uuid.NewString(),
		ExternalID: externalID,
		Email:      email,
		CreatedAt:  now,
	}
	ws := &Workspace{
		ID:        uuid.NewString(),
		Name:      fmt.Sprintf("%s's workspace", displayName(email, externalID)),
		OwnerID:   user.ID,
		CreatedAt: now,
	}

	s.users[user.ID] = user
	s.byExternal[externalID] = user.ID
	s.workspaces[ws.ID] = ws
	s.memberships[user.ID] = []*Membership{{
		UserID:      user.ID,
		WorkspaceID: ws.ID,
		Role:        RoleOwner,
		CreatedAt:   now,
	}}

	return user, ws, nil
}

// UsersByIDs implements UserStore.
func (s *MemStore) UsersByIDs(_ context.Context, ids []string) (map[string]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*User, len(ids))
	for _, id := range ids {
		if user, ok := s.users[id]; ok {
			out[id] = user
		}
	}
	return out, nil
}

// WorkspacesByIDs implements UserStore.
func (s *MemStore) WorkspacesByIDs(_ context.Context, ids []string) (map[string]*Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*Workspace, len(ids))
	for _, id := range ids {
		if ws, ok := s.workspaces[id]; ok {
			out[id] = ws
		}
	}
	return out, nil
}

// WorkspacesForUser implements UserStore.
func (s *MemStore) WorkspacesForUser(_ context.Context, userID string) ([]*Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Workspace
	for _, m := range s.memberships[userID] {
		if ws, ok := s.workspaces[m.WorkspaceID]; ok {
			out = append(out, ws)
		}
	}
	return out, nil
}

// Membership implements UserStore.
func (s *MemStore) Membership(_ context.Context, userID, workspaceID string) (*Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.memberships[userID] {
		if m.WorkspaceID == workspaceID {
			return m, nil
		}
	}
	return nil, errors.Wrap(errors.ErrNotFound, "MemStore", "Membership", "membership lookup")
}

// AddMembership links a user to an existing workspace. Used by tests and
// administrative tooling.
func (s *MemStore) AddMembership(userID, workspaceID string, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return errors.Wrap(errors.ErrNotFound, "MemStore", "AddMembership", "user lookup")
	}
	if _, ok := s.workspaces[workspaceID]; !ok {
		return errors.Wrap(errors.ErrNotFound, "MemStore", "AddMembership", "workspace lookup")
	}

	s.memberships[userID] = append(s.memberships[userID], &Membership{
		UserID:      userID,
		WorkspaceID: workspaceID,
		Role:        role,
		CreatedAt:   time.Now(),
	})
	return nil
}

// UserCount returns the number of user records. Used by tests asserting
// upsert atomicity.
func (s *MemStore) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// WorkspaceCount returns the number of workspaces.
func (s *MemStore) WorkspaceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workspaces)
}

// defaultWorkspaceLocked returns the first workspace the user owns, falling
// back to the first membership. Must be called with the lock held.
func (s *MemStore) defaultWorkspaceLocked(userID string) *Workspace {
	var fallback *Workspace
	for _, m := range s.memberships[userID] {
		ws, ok := s.workspaces[m.WorkspaceID]
		if !ok {
			continue
		}
		if m.Role == RoleOwner {
			return ws
		}
		if fallback == nil {
			fallback = ws
		}
	}
	return fallback
}

func displayName(email, externalID string) string {
	if email != "" {
		return email
	}
	return externalID
}

var _ UserStore = (*MemStore)(nil)
