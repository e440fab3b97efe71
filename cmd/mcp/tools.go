package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"recruiting-ats/internal/locks"
	"recruiting-ats/internal/matching"
)

// tools exposes matching and lock lookups to MCP clients.
type tools struct {
	matcher *matching.Matcher
	locks   *locks.Service
}

func (t *tools) register(s *server.MCPServer) {
	matchTool := mcp.NewTool("match_requirement",
		mcp.WithDescription("Score a customer requirement against candidates, applications and the talent pool and store the matches"),
	)
	matchTool.InputSchema = mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"requirement_id": map[string]interface{}{"type": "string", "description": "Requirement ID"},
			"threshold":      map[string]interface{}{"type": "integer", "description": "Minimum score 0-100 (optional)"},
			"sources":        map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": "candidate, application and/or talent_pool (optional)"},
		},
		Required: []string{"requirement_id"},
	}
	s.AddTool(matchTool, t.matchRequirement)

	listTool := mcp.NewTool("list_matches",
		mcp.WithDescription("List stored matches of a requirement, best first"),
	)
	listTool.InputSchema = mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"requirement_id": map[string]interface{}{"type": "string", "description": "Requirement ID"},
			"status":         map[string]interface{}{"type": "string", "description": "new, viewed, contacted, accepted or rejected (optional)"},
			"min_score":      map[string]interface{}{"type": "integer", "description": "Minimum score (optional)"},
		},
		Required: []string{"requirement_id"},
	}
	s.AddTool(listTool, t.listMatches)

	statusTool := mcp.NewTool("update_match_status",
		mcp.WithDescription("Move a match forward (new -> viewed -> contacted -> accepted) or reject it"),
	)
	statusTool.InputSchema = mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"match_id": map[string]interface{}{"type": "string", "description": "Match ID"},
			"status":   map[string]interface{}{"type": "string", "description": "Target status"},
		},
		Required: []string{"match_id", "status"},
	}
	s.AddTool(statusTool, t.updateMatchStatus)

	lockTool := mcp.NewTool("lock_status",
		mcp.WithDescription("Report whether someone is editing an entity"),
	)
	lockTool.InputSchema = mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"entity_type": map[string]interface{}{"type": "string", "description": "customer, contact, requirement, candidate, application or job_posting"},
			"entity_id":   map[string]interface{}{"type": "string", "description": "Entity ID"},
		},
		Required: []string{"entity_type", "entity_id"},
	}
	s.AddTool(lockTool, t.lockStatus)
}

func arguments(request mcp.CallToolRequest) (map[string]interface{}, bool) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	return args, ok
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

func intArg(args map[string]interface{}, key string) int {
	if v, ok := args[key].(float64); ok && v > 0 {
		return int(v)
	}
	return 0
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (t *tools) matchRequirement(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return mcp.NewToolResultError("invalid arguments format"), nil
	}
	id := stringArg(args, "requirement_id")
	if id == "" {
		return mcp.NewToolResultError("missing required field requirement_id"), nil
	}
	opts := matching.Options{Threshold: intArg(args, "threshold")}
	if raw, ok := args["sources"].([]interface{}); ok {
		for _, s := range raw {
			if str, ok := s.(string); ok && str != "" {
				opts.Sources = append(opts.Sources, str)
			}
		}
	}

	rep, err := t.matcher.MatchRequirement(ctx, id, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to match requirement: %v", err)), nil
	}
	return jsonResult(rep)
}

func (t *tools) listMatches(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return mcp.NewToolResultError("invalid arguments format"), nil
	}
	id := stringArg(args, "requirement_id")
	if id == "" {
		return mcp.NewToolResultError("missing required field requirement_id"), nil
	}
	matches, err := t.matcher.ListMatches(ctx, id, stringArg(args, "status"), intArg(args, "min_score"))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list matches: %v", err)), nil
	}
	return jsonResult(matches)
}

func (t *tools) updateMatchStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return mcp.NewToolResultError("invalid arguments format"), nil
	}
	id, status := stringArg(args, "match_id"), stringArg(args, "status")
	if id == "" || status == "" {
		return mcp.NewToolResultError("missing required fields"), nil
	}
	m, err := t.matcher.UpdateMatchStatus(ctx, id, status)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to update match: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Match %s (%s, score %d) is now %s.", m.ID, m.DisplayName, m.MatchScore, m.Status)), nil
}

func (t *tools) lockStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return mcp.NewToolResultError("invalid arguments format"), nil
	}
	entityType, entityID := stringArg(args, "entity_type"), stringArg(args, "entity_id")
	if entityType == "" || entityID == "" {
		return mcp.NewToolResultError("missing required fields"), nil
	}
	lock, err := t.locks.Status(ctx, entityType, entityID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read lock: %v", err)), nil
	}
	if lock == nil {
		return mcp.NewToolResultText(fmt.Sprintf("%s %s is not locked.", entityType, entityID)), nil
	}
	name := lock.UserName
	if name == "" {
		name = lock.UserID
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s %s is being edited by %s until %s.",
		entityType, entityID, name, lock.ExpiresAt.Format("2006-01-02 15:04:05 MST"))), nil
}
