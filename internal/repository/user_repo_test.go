package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/introweave/matchmaker/internal/db"
	"github.com/introweave/matchmaker/internal/repository"
)

func TestCandidatesExclusions(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	users := repository.NewUserRepository(dbase)

	for _, u := range []struct {
		id   string
		tier db.Tier
	}{
		{"alice", db.TierGroupMember},
		{"bob", db.TierGroupMember},
		{"carol", db.TierUnverifiedMember},
		{"newbie", db.TierOnboarding},
		{"dave", db.TierGroupMember},
	} {
		require.NoError(t, dbase.Create(&db.User{ID: u.id, Username: u.id}).Error)
		require.NoError(t, dbase.Create(&db.UserStatus{UserID: u.id, Status: u.tier}).Error)
	}

	// alice already has an active match with dave.
	a, b := db.CanonicalPair("alice", "dave")
	require.NoError(t, dbase.Create(&db.Match{
		ID: "m1", UserAID: a, UserBID: b, InitiatorID: "alice",
		Status: db.MatchStatusProposalSent, Version: 1,
	}).Error)
	// ...and a declined one with bob, which must NOT exclude bob.
	a, b = db.CanonicalPair("alice", "bob")
	require.NoError(t, dbase.Create(&db.Match{
		ID: "m2", UserAID: a, UserBID: b, InitiatorID: "alice",
		Status: db.MatchStatusDeclined, Version: 1,
	}).Error)

	eligible := []string{
		string(db.TierUnverifiedMember),
		string(db.TierVerificationPending),
		string(db.TierGroupMember),
	}

	pool, err := users.Candidates(ctx, "alice", eligible, 50)
	require.NoError(t, err)

	ids := make([]string, 0, len(pool))
	for _, u := range pool {
		ids = append(ids, u.ID)
	}
	// Not alice (self), not dave (active match), not newbie (below tier).
	assert.ElementsMatch(t, []string{"bob", "carol"}, ids)
}

func TestGetDisplayNameFallsBackToUsername(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	users := repository.NewUserRepository(dbase)

	require.NoError(t, dbase.Create(&db.User{ID: "u1", Username: "handle"}).Error)

	id, err := users.GetDisplayName(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "handle", id.DisplayName)
	assert.Equal(t, "handle", id.Username)
}
