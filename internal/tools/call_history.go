package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// CallHistoryTool handles the call_history MCP tool. It reads the
// local call journal, not the remote service.
type CallHistoryTool struct {
	log CallLog
}

// NewCallHistoryTool creates a CallHistoryTool over the journal. A nil
// journal means journaling is disabled.
func NewCallHistoryTool(log CallLog) *CallHistoryTool {
	return &CallHistoryTool{log: log}
}

// Definition returns the MCP tool definition for registration.
func (t *CallHistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("call_history",
		mcp.WithDescription(
			"Show recent API calls from the local journal: method, path, "+
				"status, retries, and duration. Useful for diagnosing "+
				"failures and rate limiting.",
		),
		mcp.WithNumber("limit",
			mcp.Description("How many entries to show (default 20)."),
		),
	)
}

// Handle processes the call_history tool call.
func (t *CallHistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.log == nil {
		return mcp.NewToolResultText("The call journal is disabled; no history is available."), nil
	}

	entries, err := t.log.Recent(intArg(req, "limit", 20))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reading journal: %v", err)), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("No calls journaled yet."), nil
	}

	total, failed, err := t.log.Stats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reading journal stats: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d calls journaled, %d failed. Showing %d:\n", total, failed, len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "  %s  %-6s %-30s", e.At, e.Method, e.Path)
		if e.ErrKind != "" {
			fmt.Fprintf(&b, " FAILED (%s)", e.ErrKind)
		} else {
			fmt.Fprintf(&b, " %d", e.Status)
		}
		if e.Attempts > 1 {
			fmt.Fprintf(&b, " after %d attempts", e.Attempts)
		}
		fmt.Fprintf(&b, " in %dms\n", e.DurationMS)
	}
	return mcp.NewToolResultText(b.String()), nil
}
