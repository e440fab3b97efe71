package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertMatchKeepsStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	m := &RequirementMatch{RequirementID: "r1", EntityType: "candidate", EntityID: "c1", DisplayName: "Lea Vogel",
		MatchScore: 72, Source: "internal", Breakdown: map[string]any{"skills": 0.8}}
	created, err := db.UpsertMatch(ctx, m)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "new", m.Status)

	require.NoError(t, db.SetMatchStatus(ctx, m.ID, "new", "contacted"))

	again := &RequirementMatch{RequirementID: "r1", EntityType: "candidate", EntityID: "c1", DisplayName: "Lea Vogel",
		MatchScore: 91, Source: "internal", Breakdown: map[string]any{"skills": 1.0}}
	created, err = db.UpsertMatch(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, m.ID, again.ID)
	assert.Equal(t, "contacted", again.Status)
	assert.False(t, again.CreatedAt.IsZero())

	got, err := db.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 91, got.MatchScore)
	assert.Equal(t, "contacted", got.Status)
	assert.InDelta(t, 1.0, got.Breakdown["skills"], 1e-9)
}

func TestListMatchesFiltersAndOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for id, score := range map[string]int{"a": 65, "b": 88, "c": 74} {
		_, err := db.UpsertMatch(ctx, &RequirementMatch{RequirementID: "r1", EntityType: "candidate", EntityID: id, MatchScore: score, Source: "internal"})
		require.NoError(t, err)
	}
	_, err := db.UpsertMatch(ctx, &RequirementMatch{RequirementID: "r2", EntityType: "portal", EntityID: "p1", MatchScore: 99, Source: "portal"})
	require.NoError(t, err)

	res, err := db.ListMatches(ctx, MatchFilter{RequirementID: "r1"})
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, []int{88, 74, 65}, []int{res[0].MatchScore, res[1].MatchScore, res[2].MatchScore})

	res, err = db.ListMatches(ctx, MatchFilter{RequirementID: "r1", MinScore: 70})
	require.NoError(t, err)
	assert.Len(t, res, 2)

	res, err = db.ListMatches(ctx, MatchFilter{EntityType: "portal"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "portal", res[0].Source)
}

func TestSetMatchStatusIsConditional(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	m := &RequirementMatch{RequirementID: "r1", EntityType: "candidate", EntityID: "c1", MatchScore: 70, Source: "internal"}
	_, err := db.UpsertMatch(ctx, m)
	require.NoError(t, err)

	assert.ErrorIs(t, db.SetMatchStatus(ctx, m.ID, "viewed", "contacted"), ErrNotFound)
	require.NoError(t, db.SetMatchStatus(ctx, m.ID, "new", "viewed"))
}

func TestDeleteUntouchedMatch(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	fresh := &RequirementMatch{RequirementID: "r1", EntityType: "candidate", EntityID: "c1", MatchScore: 70, Source: "internal"}
	worked := &RequirementMatch{RequirementID: "r1", EntityType: "candidate", EntityID: "c2", MatchScore: 70, Source: "internal"}
	_, err := db.UpsertMatch(ctx, fresh)
	require.NoError(t, err)
	_, err = db.UpsertMatch(ctx, worked)
	require.NoError(t, err)
	require.NoError(t, db.SetMatchStatus(ctx, worked.ID, "new", "viewed"))

	deleted, err := db.DeleteUntouchedMatch(ctx, "r1", "candidate", "c1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = db.DeleteUntouchedMatch(ctx, "r1", "candidate", "c2")
	require.NoError(t, err)
	assert.False(t, deleted)
}
