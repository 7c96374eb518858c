package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// DeleteTool handles the card_delete MCP tool.
type DeleteTool struct {
	api CardAPI
}

// NewDeleteTool creates a DeleteTool backed by the given client.
func NewDeleteTool(api CardAPI) *DeleteTool {
	return &DeleteTool{api: api}
}

// Definition returns the MCP tool definition for registration.
func (t *DeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("card_delete",
		mcp.WithDescription("Delete a card by name. This cannot be undone."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("The card to delete. Use 'Parent+Child' for child cards."),
		),
	)
}

// Handle processes the card_delete tool call.
func (t *DeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if strings.TrimSpace(name) == "" {
		return mcp.NewToolResultError("'name' is required"), nil
	}

	if err := t.api.DeleteCard(ctx, name); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted card %q.", name)), nil
}
