// Package tools implements the MCP tool handlers exposed to agents.
//
// Each tool is a struct that receives its dependencies at construction
// and returns a handler compatible with mcp-go's CallToolRequest
// signature. Tools validate arguments, call the client, and render
// results; card content semantics stay with the service.
//
// Design principles:
// - SRP: each file = one tool
// - DIP: tools depend on interfaces (CardAPI, CredentialSource, CallLog), not concretions
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/decklab/cardbase/internal/cardapi"
	"github.com/decklab/cardbase/internal/journal"
)

// CardAPI is the slice of the client the card tools need.
// *cardapi.Client satisfies it.
type CardAPI interface {
	GetCard(ctx context.Context, name string) (json.RawMessage, error)
	CreateCard(ctx context.Context, name, cardType, content string) (json.RawMessage, error)
	UpdateCard(ctx context.Context, name string, fields map[string]any) (json.RawMessage, error)
	DeleteCard(ctx context.Context, name string) error
	ListCards(ctx context.Context, cardType string, limit int) ([]json.RawMessage, error)
	SearchCards(ctx context.Context, q string, limit int) ([]json.RawMessage, error)
	SubmitBatch(ctx context.Context, ops []cardapi.Operation, mode cardapi.Mode) (*cardapi.BatchResult, error)
}

// CredentialSource is the slice of the credential manager the auth tool
// needs. *cardapi.CredentialManager satisfies it.
type CredentialSource interface {
	Snapshot() (cardapi.Credential, bool)
	Valid() bool
	Refresh(ctx context.Context) (string, error)
}

// CallLog is the journal surface the history tool needs.
// *journal.Journal satisfies it.
type CallLog interface {
	Recent(limit int) ([]journal.Entry, error)
	Stats() (total, failed int, err error)
}

// intArg extracts an integer argument from a tool request.
// MCP numbers arrive as float64.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// errorResult renders a typed client failure as an actionable tool
// result. The agent reads this text, so each kind tells it what to do
// next rather than just what went wrong.
func errorResult(err error) *mcp.CallToolResult {
	var typed *cardapi.Error
	if !errors.As(err, &typed) {
		return mcp.NewToolResultError(err.Error())
	}

	var hint string
	switch typed.Kind {
	case cardapi.KindAuthentication:
		hint = "Authentication failed. Check the configured API key or username/password, then retry."
	case cardapi.KindAuthorization:
		hint = "The current role is not allowed to do this. A different role or elevated credentials are needed."
	case cardapi.KindNotFound:
		hint = "The card does not exist. Check the name, or use card_search to find it."
	case cardapi.KindValidation:
		hint = "The service rejected the input."
	case cardapi.KindRateLimited:
		hint = "The service is rate limiting requests. Retries were already attempted; wait before trying again."
	case cardapi.KindServer:
		hint = "The service failed internally. Retries were already attempted; try again later."
	case cardapi.KindNetwork:
		hint = "Could not reach the service. Retries were already attempted; check connectivity and the base URL."
	case cardapi.KindConfiguration:
		hint = "Invalid arguments or configuration."
	case cardapi.KindParse:
		hint = "The service answered with a body this client could not decode."
	}

	msg := fmt.Sprintf("%s\n%s", hint, typed.Error())
	if len(typed.Details) > 0 {
		var b bytes.Buffer
		b.WriteString(msg)
		b.WriteString("\nField errors:")
		for _, d := range typed.Details {
			fmt.Fprintf(&b, "\n  - %s: %s", d.Field, d.Message)
		}
		msg = b.String()
	}
	return mcp.NewToolResultError(msg)
}

// renderJSON pretty-prints a raw payload for the agent. Invalid or
// empty payloads render as-is.
func renderJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "(empty)"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

// renderItems pretty-prints a list of raw payloads as a JSON array.
func renderItems(items []json.RawMessage) string {
	if len(items) == 0 {
		return "[]"
	}
	joined, err := json.Marshal(items)
	if err != nil {
		return fmt.Sprintf("%v", items)
	}
	return renderJSON(joined)
}
