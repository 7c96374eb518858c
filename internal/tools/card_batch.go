package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/decklab/cardbase/internal/cardapi"
)

// BatchTool handles the card_batch MCP tool.
type BatchTool struct {
	api CardAPI
}

// NewBatchTool creates a BatchTool backed by the given client.
func NewBatchTool(api CardAPI) *BatchTool {
	return &BatchTool{api: api}
}

// Definition returns the MCP tool definition for registration.
func (t *BatchTool) Definition() mcp.Tool {
	return mcp.NewTool("card_batch",
		mcp.WithDescription(
			"Submit multiple card operations in one request. In "+
				"'transactional' mode all operations succeed or none take "+
				"effect; in 'per_item' mode each succeeds or fails "+
				"independently.",
		),
		mcp.WithString("operations",
			mcp.Required(),
			mcp.Description("JSON array of operations, each "+
				`{"action": "create|update|delete", "target": "<card name>", "payload": {...}}.`),
		),
		mcp.WithString("mode",
			mcp.Required(),
			mcp.Description("Failure-isolation mode."),
			mcp.Enum("transactional", "per_item"),
		),
	)
}

// Handle processes the card_batch tool call.
func (t *BatchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawOps := req.GetString("operations", "")
	if strings.TrimSpace(rawOps) == "" {
		return mcp.NewToolResultError("'operations' is required"), nil
	}

	var ops []cardapi.Operation
	if err := json.Unmarshal([]byte(rawOps), &ops); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf(
			"'operations' is not a valid JSON array of operations: %v", err)), nil
	}

	res, err := t.api.SubmitBatch(ctx, ops, cardapi.Mode(req.GetString("mode", "")))
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(renderBatch(res)), nil
}

// renderBatch formats a batch outcome, spelling out the atomicity
// consequence so the agent does not misread a rolled-back batch as a
// partial success.
func renderBatch(res *cardapi.BatchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Batch (%s): %d succeeded, %d failed.\n",
		res.Mode, res.Succeeded, res.Failed)

	if res.Mode == cardapi.ModeTransactional && res.OverallFailed {
		b.WriteString("The batch failed: NO operations took effect, including ones listed as successful.\n")
	} else if !res.Applied() {
		b.WriteString("No operations took effect.\n")
	}

	for i, entry := range res.Results {
		if entry.Success {
			fmt.Fprintf(&b, "  %d. ok", i+1)
			if len(entry.Payload) > 0 {
				fmt.Fprintf(&b, " %s", string(entry.Payload))
			}
		} else {
			fmt.Fprintf(&b, "  %d. FAILED: %s", i+1, entry.Message)
		}
		b.WriteString("\n")
	}
	return b.String()
}
