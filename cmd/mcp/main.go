// Command mcp serves recruiter tools (matching and lock lookups) over MCP stdio.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"recruiting-ats/internal/config"
	"recruiting-ats/internal/locks"
	"recruiting-ats/internal/matching"
	"recruiting-ats/internal/notify"
	"recruiting-ats/internal/storage"
)

func main() {
	cfg := config.LoadConfig()
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := storage.NewDB(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "db open: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.EnsureSchema(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "schema: %v\n", err)
		os.Exit(1)
	}

	// Notifications are persisted; API instances deliver them on the next list or stream.
	notifier := notify.NewService(db, notify.NewHub(0))
	t := &tools{
		matcher: matching.NewMatcher(db, notifier, matching.Config{
			Weights:          matching.DefaultWeights,
			DefaultThreshold: cfg.MatchThreshold,
			NotifyScore:      cfg.NotifyMatchScore,
		}),
		locks: locks.NewService(db, cfg.LockTTL),
	}

	s := server.NewMCPServer("recruiting-ats", "1.0.0")
	t.register(s)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
