package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lgerrors "github.com/tallyhq/ledgergate/errors"
)

func TestFindOrCreateNewUser(t *testing.T) {
	s := NewMemStore()

	user, ws, err := s.FindOrCreateByExternalID(context.Background(), "auth0|u1", "u1@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	require.NotNil(t, ws)

	assert.Equal(t, "auth0|u1", user.ExternalID)
	assert.Equal(t, "u1@example.com", user.Email)
	assert.Equal(t, user.ID, ws.OwnerID)

	m, err := s.Membership(context.Background(), user.ID, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleOwner, m.Role)
}

func TestFindOrCreateIdempotent(t *testing.T) {
	s := NewMemStore()

	u1, ws1, err := s.FindOrCreateByExternalID(context.Background(), "auth0|u1", "u1@example.com")
	require.NoError(t, err)
	u2, ws2, err := s.FindOrCreateByExternalID(context.Background(), "auth0|u1", "u1@example.com")
	require.NoError(t, err)

	assert.Equal(t, u1.ID, u2.ID)
	assert.Equal(t, ws1.ID, ws2.ID)
	assert.Equal(t, 1, s.UserCount())
	assert.Equal(t, 1, s.WorkspaceCount())
}

func TestFindOrCreateEmptyExternalID(t *testing.T) {
	s := NewMemStore()
	_, _, err := s.FindOrCreateByExternalID(context.Background(), "", "x@example.com")
	require.Error(t, err)
}

// Concurrent first-time requests for the same identity must converge on
// exactly one user record and one default workspace.
func TestFindOrCreateConcurrentFirstSight(t *testing.T) {
	s := NewMemStore()

	const goroutines = 32
	userIDs := make([]string, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user, _, err := s.FindOrCreateByExternalID(context.Background(), "auth0|race", "race@example.com")
			require.NoError(t, err)
			userIDs[i] = user.ID
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, s.UserCount())
	assert.Equal(t, 1, s.WorkspaceCount())
	for _, id := range userIDs {
		assert.Equal(t, userIDs[0], id)
	}
}

func TestMembershipNotFound(t *testing.T) {
	s := NewMemStore()
	user, _, err := s.FindOrCreateByExternalID(context.Background(), "auth0|u1", "")
	require.NoError(t, err)

	_, err = s.Membership(context.Background(), user.ID, "missing-ws")
	require.Error(t, err)
	assert.True(t, errors.Is(err, lgerrors.ErrNotFound))
}

func TestWorkspacesForUser(t *testing.T) {
	s := NewMemStore()
	alice, aliceWS, err := s.FindOrCreateByExternalID(context.Background(), "auth0|alice", "alice@example.com")
	require.NoError(t, err)
	_, bobWS, err := s.FindOrCreateByExternalID(context.Background(), "auth0|bob", "bob@example.com")
	require.NoError(t, err)

	require.NoError(t, s.AddMembership(alice.ID, bobWS.ID, RoleMember))

	workspaces, err := s.WorkspacesForUser(context.Background(), alice.ID)
	require.NoError(t, err)
	require.Len(t, workspaces, 2)

	ids := map[string]bool{workspaces[0].ID: true, workspaces[1].ID: true}
	assert.True(t, ids[aliceWS.ID])
	assert.True(t, ids[bobWS.ID])
}

func TestBatchLookups(t *testing.T) {
	s := NewMemStore()
	user, ws, err := s.FindOrCreateByExternalID(context.Background(), "auth0|u1", "")
	require.NoError(t, err)

	users, err := s.UsersByIDs(context.Background(), []string{user.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, user.ID, users[user.ID].ID)

	workspaces, err := s.WorkspacesByIDs(context.Background(), []string{ws.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, workspaces, 1)
}
