// Package resources implements MCP resource handlers.
//
// Resources provide read-only data the host can consume for context.
// They use URI-based addressing (cardbase://...) following MCP
// conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/decklab/cardbase/internal/cardapi"
)

// CredentialSource is the slice of the credential manager the status
// resource needs. *cardapi.CredentialManager satisfies it.
type CredentialSource interface {
	Snapshot() (cardapi.Credential, bool)
	Valid() bool
}

// CallStats is the journal surface the status resource needs.
type CallStats interface {
	Stats() (total, failed int, err error)
}

// Handler manages the service resource endpoints.
type Handler struct {
	baseURL string
	creds   CredentialSource
	stats   CallStats // nil when journaling is disabled
	version string
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(baseURL string, creds CredentialSource, stats CallStats, version string) *Handler {
	return &Handler{baseURL: baseURL, creds: creds, stats: stats, version: version}
}

// StatusResource returns the MCP resource definition for service status.
func (h *Handler) StatusResource() mcp.Resource {
	return mcp.NewResource(
		"cardbase://service/status",
		"Card Service Status",
		mcp.WithResourceDescription("Connection target, authentication state, and call statistics"),
		mcp.WithMIMEType("application/json"),
	)
}

// statusPayload is the JSON shape of the status resource.
type statusPayload struct {
	Version       string `json:"version"`
	BaseURL       string `json:"base_url"`
	Authenticated bool   `json:"authenticated"`
	Role          string `json:"role,omitempty"`
	TokenExpires  string `json:"token_expires,omitempty"`
	JournalOn     bool   `json:"journal_enabled"`
	CallsTotal    int    `json:"calls_total,omitempty"`
	CallsFailed   int    `json:"calls_failed,omitempty"`
}

// HandleStatus returns the current service status as JSON.
func (h *Handler) HandleStatus(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	payload := statusPayload{
		Version:       h.version,
		BaseURL:       h.baseURL,
		Authenticated: h.creds.Valid(),
		JournalOn:     h.stats != nil,
	}
	if cred, ok := h.creds.Snapshot(); ok {
		payload.Role = cred.Role
		payload.TokenExpires = cred.ExpiresAt.Format(time.RFC3339)
	}
	if h.stats != nil {
		total, failed, err := h.stats.Stats()
		if err == nil {
			payload.CallsTotal = total
			payload.CallsFailed = failed
		}
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling status: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
