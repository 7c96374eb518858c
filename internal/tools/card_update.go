package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// UpdateTool handles the card_update MCP tool.
type UpdateTool struct {
	api CardAPI
}

// NewUpdateTool creates an UpdateTool backed by the given client.
func NewUpdateTool(api CardAPI) *UpdateTool {
	return &UpdateTool{api: api}
}

// Definition returns the MCP tool definition for registration.
func (t *UpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("card_update",
		mcp.WithDescription(
			"Apply a partial update to an existing card. Only the fields "+
				"given are changed.",
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("The card to update. Use 'Parent+Child' for child cards."),
		),
		mcp.WithString("content",
			mcp.Description("New content for the card."),
		),
		mcp.WithString("type",
			mcp.Description("New type for the card."),
		),
	)
}

// Handle processes the card_update tool call.
func (t *UpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if strings.TrimSpace(name) == "" {
		return mcp.NewToolResultError("'name' is required"), nil
	}

	fields := map[string]any{}
	if content, ok := req.GetArguments()["content"]; ok {
		fields["content"] = content
	}
	if cardType, ok := req.GetArguments()["type"]; ok {
		fields["type"] = cardType
	}
	if len(fields) == 0 {
		return mcp.NewToolResultError("at least one of 'content' or 'type' is required"), nil
	}

	card, err := t.api.UpdateCard(ctx, name, fields)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText("Updated:\n" + renderJSON(card)), nil
}
