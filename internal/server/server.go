// Package server wires all MCP components and creates the server
// instance.
//
// This is the composition root: it builds the credential manager, the
// client, and the journal from configuration, and injects them into the
// tools and resources that depend on abstractions. No business logic
// lives here — only wiring.
package server

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/decklab/cardbase/internal/cardapi"
	"github.com/decklab/cardbase/internal/config"
	"github.com/decklab/cardbase/internal/journal"
	"github.com/decklab/cardbase/internal/resources"
	"github.com/decklab/cardbase/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all tools and
// resources registered. configPath may be empty to use the default
// config file locations.
//
// The returned cleanup function closes the journal database and must be
// called on shutdown (typically via defer). It is always non-nil and
// safe to call even when the journal is disabled.
func New(configPath string) (*server.MCPServer, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, noop, err
	}
	applyLogLevel(cfg.Logging.Level)

	// --- Core client stack ---

	creds, err := cardapi.NewCredentialManager(cardapi.CredentialConfig{
		BaseURL:          cfg.Service.BaseURL,
		APIKey:           cfg.Service.APIKey,
		Username:         cfg.Service.Username,
		Password:         cfg.Service.Password,
		Role:             cfg.Service.Role,
		ExpiryBuffer:     cfg.ExpiryBuffer(),
		KeySetTTL:        cfg.KeySetTTL(),
		VerifySignatures: cfg.Service.VerifySignatures,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("creating credential manager: %w", err)
	}

	// The journal is an independent subsystem: if it fails to open, the
	// card tools keep working. We log a warning and run without it.
	cleanup := noop
	var jnl *journal.Journal
	if cfg.Journal.Path != "" {
		jnl, err = journal.Open(cfg.Journal.Path, cfg.Journal.MaxEntries)
		if err != nil {
			log.Warn().Err(err).Msg("[server] call journal disabled")
			jnl = nil
		} else {
			cleanup = func() {
				if err := jnl.Close(); err != nil {
					log.Warn().Err(err).Msg("[server] journal close")
				}
			}
		}
	}

	clientCfg := cardapi.ClientConfig{
		BaseURL: cfg.Service.BaseURL,
		Tokens:  creds,
		Retry: cardapi.RetryPolicy{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  cfg.BaseDelay(),
		},
		MaxPages:     cfg.Pagination.MaxPages,
		MaxPageLimit: cfg.Pagination.MaxPageLimit,
	}
	if jnl != nil {
		clientCfg.Observer = func(rec cardapi.CallRecord) {
			if err := jnl.Record(rec); err != nil {
				log.Warn().Err(err).Msg("[server] journal write failed")
			}
		}
	}
	client, err := cardapi.NewClient(clientCfg)
	if err != nil {
		cleanup()
		return nil, noop, fmt.Errorf("creating client: %w", err)
	}

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"cardbase",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register card tools ---

	getTool := tools.NewGetTool(client)
	s.AddTool(getTool.Definition(), getTool.Handle)

	createTool := tools.NewCreateTool(client)
	s.AddTool(createTool.Definition(), createTool.Handle)

	updateTool := tools.NewUpdateTool(client)
	s.AddTool(updateTool.Definition(), updateTool.Handle)

	deleteTool := tools.NewDeleteTool(client)
	s.AddTool(deleteTool.Definition(), deleteTool.Handle)

	listTool := tools.NewListTool(client)
	s.AddTool(listTool.Definition(), listTool.Handle)

	searchTool := tools.NewSearchTool(client)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	batchTool := tools.NewBatchTool(client)
	s.AddTool(batchTool.Definition(), batchTool.Handle)

	childrenTool := tools.NewChildrenTool(client)
	s.AddTool(childrenTool.Definition(), childrenTool.Handle)

	// --- Register diagnostic tools ---

	authTool := tools.NewAuthStatusTool(creds, nil)
	s.AddTool(authTool.Definition(), authTool.Handle)

	var historyLog tools.CallLog
	if jnl != nil {
		historyLog = jnl
	}
	historyTool := tools.NewCallHistoryTool(historyLog)
	s.AddTool(historyTool.Definition(), historyTool.Handle)

	// --- Register resources ---

	var stats resources.CallStats
	if jnl != nil {
		stats = jnl
	}
	resourceHandler := resources.NewHandler(cfg.Service.BaseURL, creds, stats, Version)
	s.AddResource(resourceHandler.StatusResource(), resourceHandler.HandleStatus)

	return s, cleanup, nil
}

// noop is the default cleanup when the journal is disabled.
func noop() {}

// applyLogLevel sets the global zerolog level from configuration.
func applyLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// serverInstructions tells the agent how to use the card tools
// effectively.
func serverInstructions() string {
	return `You have access to cardbase, an MCP server for a remote card service
(a wiki-like knowledge base of named cards).

## Tools

Card operations: card_get, card_create, card_update, card_delete,
card_list, card_search.
- Cards are addressed by name. Child cards use compound names joined
  with '+', e.g. 'Projects+Roadmap'.
- card_list and card_search traverse every page of results for you.

Bulk operations: card_batch, card_children_create.
- card_batch takes a JSON array of operations and a mode:
  'transactional' (all succeed or none take effect) or 'per_item'
  (each succeeds or fails independently).
- When a transactional batch reports failure, NOTHING was applied,
  even operations listed as successful. Read the result text carefully.
- card_children_create creates several children under one parent in a
  single request; prefer it over repeated card_create calls.

Diagnostics: auth_status, call_history, and the
cardbase://service/status resource.

## Behavior you can rely on

- Authentication is automatic: tokens are acquired, cached, and
  refreshed before expiry. You never handle credentials.
- Transient failures (rate limiting, server errors, network) are
  retried automatically with backoff before an error reaches you. If a
  tool still reports a rate-limit or server error, do NOT immediately
  retry — the retries already happened.
- Validation errors include per-field details; fix the named fields
  rather than guessing.
- A not-found error suggests the card name is wrong; use card_search
  to locate the card before retrying.`
}
