package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ListTool handles the card_list MCP tool.
type ListTool struct {
	api CardAPI
}

// NewListTool creates a ListTool backed by the given client.
func NewListTool(api CardAPI) *ListTool {
	return &ListTool{api: api}
}

// Definition returns the MCP tool definition for registration.
func (t *ListTool) Definition() mcp.Tool {
	return mcp.NewTool("card_list",
		mcp.WithDescription(
			"List cards, traversing every page of the collection. "+
				"Optionally filter by card type.",
		),
		mcp.WithString("type",
			mcp.Description("Only return cards of this type."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Items requested per page (clamped to the service maximum of 100)."),
		),
	)
}

// Handle processes the card_list tool call.
func (t *ListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := t.api.ListCards(ctx, req.GetString("type", ""), intArg(req, "limit", 0))
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%d cards:\n%s", len(items), renderItems(items))), nil
}
