package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// SearchTool handles the card_search MCP tool.
type SearchTool struct {
	api CardAPI
}

// NewSearchTool creates a SearchTool backed by the given client.
func NewSearchTool(api CardAPI) *SearchTool {
	return &SearchTool{api: api}
}

// Definition returns the MCP tool definition for registration.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("card_search",
		mcp.WithDescription(
			"Full-text search over cards, traversing every page of results.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search query."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Items requested per page (clamped to the service maximum of 100)."),
		),
	)
}

// Handle processes the card_search tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := req.GetString("query", "")
	if strings.TrimSpace(q) == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	items, err := t.api.SearchCards(ctx, q, intArg(req, "limit", 0))
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%d matches:\n%s", len(items), renderItems(items))), nil
}
