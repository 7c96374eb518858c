package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// CreateTool handles the card_create MCP tool.
type CreateTool struct {
	api CardAPI
}

// NewCreateTool creates a CreateTool backed by the given client.
func NewCreateTool(api CardAPI) *CreateTool {
	return &CreateTool{api: api}
}

// Definition returns the MCP tool definition for registration.
func (t *CreateTool) Definition() mcp.Tool {
	return mcp.NewTool("card_create",
		mcp.WithDescription(
			"Create a new card. To create a child card, name it "+
				"'Parent+Child'; the parent must already exist.",
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("The new card's name."),
		),
		mcp.WithString("type",
			mcp.Description("The card type. Omit for the service default."),
		),
		mcp.WithString("content",
			mcp.Description("The card's content (markup is passed through untouched)."),
		),
	)
}

// Handle processes the card_create tool call.
func (t *CreateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if strings.TrimSpace(name) == "" {
		return mcp.NewToolResultError("'name' is required"), nil
	}

	card, err := t.api.CreateCard(ctx, name,
		req.GetString("type", ""), req.GetString("content", ""))
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText("Created:\n" + renderJSON(card)), nil
}
