package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// GetTool handles the card_get MCP tool.
type GetTool struct {
	api CardAPI
}

// NewGetTool creates a GetTool backed by the given client.
func NewGetTool(api CardAPI) *GetTool {
	return &GetTool{api: api}
}

// Definition returns the MCP tool definition for registration.
func (t *GetTool) Definition() mcp.Tool {
	return mcp.NewTool("card_get",
		mcp.WithDescription(
			"Fetch a single card by name. Child cards use compound names "+
				"joined with '+' (e.g. 'Projects+Roadmap').",
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("The card name. Use 'Parent+Child' for child cards."),
		),
	)
}

// Handle processes the card_get tool call.
func (t *GetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if strings.TrimSpace(name) == "" {
		return mcp.NewToolResultError("'name' is required"), nil
	}

	card, err := t.api.GetCard(ctx, name)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(renderJSON(card)), nil
}
