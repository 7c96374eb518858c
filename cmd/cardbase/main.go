// Cardbase: MCP server for a remote card service.
//
// It gives AI agents resilient, authenticated access to a wiki-like
// knowledge base of named cards: CRUD, search, pagination, and batch
// operations, with automatic token management and bounded retries.
//
// Usage:
//
//	cardbase serve     # Start MCP server (stdio transport)
//	cardbase update    # Update to the latest version
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	cbserver "github.com/decklab/cardbase/internal/server"
	"github.com/decklab/cardbase/internal/updater"
)

func main() {
	// Logs go to stderr: stdout carries the MCP stdio transport.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "update":
		runUpdate()
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("cardbase v%s\n", cbserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("CARDBASE_CONFIG")

	s, cleanup, err := cbserver.New(configPath)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Background version check — prints to stderr so it doesn't
	// interfere with MCP's stdio transport on stdout.
	go checkForUpdates()

	return server.ServeStdio(s)
}

// checkForUpdates runs a best-effort version check and prints a notice
// to stderr when an update is available.
func checkForUpdates() {
	result := updater.Check(cbserver.Version)
	if result.UpdateAvailable {
		fmt.Fprintf(os.Stderr,
			"\n  Update available: v%s -> v%s\n"+
				"  Run: cardbase update\n"+
				"  Release: %s\n\n",
			result.CurrentVersion, result.LatestVersion, result.ReleaseURL,
		)
	}
}

// runUpdate performs a self-update to the latest version.
func runUpdate() {
	fmt.Fprintf(os.Stderr, "Checking for updates...\n")

	result := updater.Check(cbserver.Version)
	if !result.UpdateAvailable {
		fmt.Fprintf(os.Stderr, "Already at the latest version (v%s)\n", result.CurrentVersion)
		return
	}

	fmt.Fprintf(os.Stderr, "New version available: v%s -> v%s\nDownloading...\n",
		result.CurrentVersion, result.LatestVersion)

	if err := updater.SelfUpdate(cbserver.Version); err != nil {
		fmt.Fprintf(os.Stderr, "Update failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "\nYou can download manually from:\n  %s\n", result.ReleaseURL)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Updated to v%s. Restart cardbase to use the new version.\n",
		result.LatestVersion)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `cardbase v%s — MCP server for a remote card service

Usage:
  cardbase serve     Start the MCP server (stdio transport)
  cardbase update    Update to the latest version
  cardbase version   Print the version

Configuration:
  Settings come from a YAML file (./cardbase.yaml,
  ~/.config/cardbase/config.yaml, or $CARDBASE_CONFIG) with
  CARDBASE_* environment overrides. At minimum set the base URL and
  credentials:

    CARDBASE_BASE_URL=https://cards.example.com/api
    CARDBASE_API_KEY=...            (or CARDBASE_USERNAME/CARDBASE_PASSWORD)

  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "cardbase": {
        "command": "cardbase",
        "args": ["serve"]
      }
    }
  }
`, cbserver.Version)
}
