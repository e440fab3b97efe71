package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recruiting-ats/internal/locks"
	"recruiting-ats/internal/matching"
	"recruiting-ats/internal/notify"
	"recruiting-ats/internal/storage"
)

func newTestTools(t *testing.T) (*tools, *storage.DB) {
	t.Helper()
	db, err := storage.NewDB("sqlite:" + filepath.Join(t.TempDir(), "mcp.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.EnsureSchema(context.Background()))

	return &tools{
		matcher: matching.NewMatcher(db, notify.NewService(db, notify.NewHub(0)), matching.Config{Weights: matching.DefaultWeights}),
		locks:   locks.NewService(db, 5*time.Minute),
	}, db
}

func call(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text
}

func seedRequirement(t *testing.T, db *storage.DB) *storage.Requirement {
	t.Helper()
	ctx := context.Background()
	cust := &storage.Customer{Name: "Acme"}
	require.NoError(t, db.CreateCustomer(ctx, cust))
	req := &storage.Requirement{
		CustomerID:         cust.ID,
		Title:              "Go Developer",
		RequiredSkills:     []string{"Go"},
		MinExperienceYears: 2,
		OwnerUserID:        "owner",
	}
	require.NoError(t, db.CreateRequirement(ctx, req))
	cand := &storage.Candidate{FirstName: "Lena", LastName: "Schulz", Skills: []string{"Go"}, ExperienceYears: 4}
	require.NoError(t, db.CreateCandidate(ctx, cand))
	return req
}

func TestMatchAndListTools(t *testing.T) {
	tl, db := newTestTools(t)
	req := seedRequirement(t, db)
	ctx := context.Background()

	res, err := tl.matchRequirement(ctx, call(map[string]interface{}{"requirement_id": req.ID, "sources": []interface{}{"candidate"}}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	var rep matching.Report
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &rep))
	assert.Equal(t, 1, rep.Matched)

	res, err = tl.listMatches(ctx, call(map[string]interface{}{"requirement_id": req.ID}))
	require.NoError(t, err)
	var matches []storage.RequirementMatch
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &matches))
	require.Len(t, matches, 1)

	res, err = tl.updateMatchStatus(ctx, call(map[string]interface{}{"match_id": matches[0].ID, "status": "contacted"}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	assert.Contains(t, text(t, res), "is now contacted")

	res, err = tl.updateMatchStatus(ctx, call(map[string]interface{}{"match_id": matches[0].ID, "status": "viewed"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestToolArgumentErrors(t *testing.T) {
	tl, _ := newTestTools(t)
	ctx := context.Background()

	res, err := tl.matchRequirement(ctx, call(map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	var bad mcp.CallToolRequest
	bad.Params.Arguments = "not a map"
	res, err = tl.lockStatus(ctx, bad)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "invalid arguments")

	res, err = tl.matchRequirement(ctx, call(map[string]interface{}{"requirement_id": "missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestLockStatusTool(t *testing.T) {
	tl, _ := newTestTools(t)
	ctx := context.Background()

	res, err := tl.lockStatus(ctx, call(map[string]interface{}{"entity_type": "candidate", "entity_id": "c1"}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), "is not locked")

	_, err = tl.locks.Acquire(ctx, "candidate", "c1", "alice", "Alice Meyer")
	require.NoError(t, err)
	res, err = tl.lockStatus(ctx, call(map[string]interface{}{"entity_type": "candidate", "entity_id": "c1"}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), "being edited by Alice Meyer")
}
