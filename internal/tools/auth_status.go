package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// AuthStatusTool handles the auth_status MCP tool.
type AuthStatusTool struct {
	creds CredentialSource
	now   func() time.Time
}

// NewAuthStatusTool creates an AuthStatusTool over the credential
// manager. now is injectable for tests; nil means the wall clock.
func NewAuthStatusTool(creds CredentialSource, now func() time.Time) *AuthStatusTool {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &AuthStatusTool{creds: creds, now: now}
}

// Definition returns the MCP tool definition for registration.
func (t *AuthStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("auth_status",
		mcp.WithDescription(
			"Report the current authentication state: whether a valid "+
				"token is cached, its role, and when it expires. Optionally "+
				"force a refresh.",
		),
		mcp.WithBoolean("refresh",
			mcp.Description("Discard the cached token and fetch a new one first."),
		),
	)
}

// Handle processes the auth_status tool call.
func (t *AuthStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if boolArg(req, "refresh", false) {
		if _, err := t.creds.Refresh(ctx); err != nil {
			return errorResult(err), nil
		}
	}

	cred, ok := t.creds.Snapshot()
	if !ok {
		return mcp.NewToolResultText(
			"No credential cached. One will be acquired automatically on the next call."), nil
	}

	var b strings.Builder
	if t.creds.Valid() {
		b.WriteString("Authenticated.\n")
	} else {
		b.WriteString("Cached credential is expired or inside the refresh buffer; it will be replaced on the next call.\n")
	}
	if cred.Role != "" {
		fmt.Fprintf(&b, "Role: %s\n", cred.Role)
	}
	fmt.Fprintf(&b, "Expires: %s (in %s)",
		cred.ExpiresAt.Format(time.RFC3339),
		cred.ExpiresAt.Sub(t.now()).Round(time.Second))
	return mcp.NewToolResultText(b.String()), nil
}
