package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/decklab/cardbase/internal/cardapi"
)

// ChildrenTool handles the card_children_create MCP tool. It assembles
// a batch of child-card creations under one parent and submits them in
// a single request.
type ChildrenTool struct {
	api CardAPI
}

// NewChildrenTool creates a ChildrenTool backed by the given client.
func NewChildrenTool(api CardAPI) *ChildrenTool {
	return &ChildrenTool{api: api}
}

// Definition returns the MCP tool definition for registration.
func (t *ChildrenTool) Definition() mcp.Tool {
	return mcp.NewTool("card_children_create",
		mcp.WithDescription(
			"Create several child cards under one parent in a single "+
				"batch request. Child names become 'Parent+Child' compound "+
				"names.",
		),
		mcp.WithString("parent",
			mcp.Required(),
			mcp.Description("The existing parent card name."),
		),
		mcp.WithString("children",
			mcp.Required(),
			mcp.Description("JSON array of children, each "+
				`{"name": "<child name>", "content": "...", "type": "..."} (content and type optional).`),
		),
		mcp.WithString("mode",
			mcp.Description("Failure-isolation mode (default transactional)."),
			mcp.Enum("transactional", "per_item"),
		),
	)
}

type childSpec struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

// Handle processes the card_children_create tool call.
func (t *ChildrenTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	parent := req.GetString("parent", "")
	if strings.TrimSpace(parent) == "" {
		return mcp.NewToolResultError("'parent' is required"), nil
	}

	var children []childSpec
	if err := json.Unmarshal([]byte(req.GetString("children", "")), &children); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf(
			"'children' is not a valid JSON array: %v", err)), nil
	}
	if len(children) == 0 {
		return mcp.NewToolResultError("'children' must contain at least one entry"), nil
	}

	ops := make([]cardapi.Operation, 0, len(children))
	for i, child := range children {
		if strings.TrimSpace(child.Name) == "" {
			return mcp.NewToolResultError(fmt.Sprintf("child %d has no name", i+1)), nil
		}
		payload := map[string]any{"content": child.Content}
		if child.Type != "" {
			payload["type"] = child.Type
		}
		ops = append(ops, cardapi.ChildOperation(parent, child.Name, payload))
	}

	mode := cardapi.Mode(req.GetString("mode", string(cardapi.ModeTransactional)))
	res, err := t.api.SubmitBatch(ctx, ops, mode)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(renderBatch(res)), nil
}
