package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forest6511/habitctl/internal/mcp"
)

// mcpServerCmd starts the MCP server for AI assistant integration
func (a *app) mcpServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Start the MCP server for AI assistant integration",
		Long: `Start the MCP server that lets AI assistants read and update your habits.

The server implements the Model Context Protocol (MCP) over stdio transport.

Available tools:
  - habit_list:     List habits with streaks and today's status
  - habit_history:  List the completions of a habit
  - habit_calendar: Month calendar of a habit
  - habit_mark:     Mark a habit as done (requires policy)
  - habit_unmark:   Remove a completion (requires policy)

Authentication:
  Set HABITCTL_PASSWORD environment variable before starting the server.
  The password is read once and immediately cleared from the environment.

Policy:
  Create mcp-policy.yaml (mode 0600) next to the vault file to allow
  habit_mark and habit_unmark. Without a policy file both are denied.

    version: 1
    default_action: deny
    allowed_tools:
      - habit_mark

Example MCP configuration:
  {
    "mcpServers": {
      "habitctl": {
        "type": "stdio",
        "command": "/path/to/habitctl",
        "args": ["mcp-server"],
        "env": {
          "HABITCTL_PASSWORD": "your-vault-password"
        }
      }
    }
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMCPServer(cmd.Context())
		},
	}
}

func (a *app) runMCPServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	server, err := mcp.NewServer(&mcp.ServerOptions{
		Vault:   a.vault,
		Version: version,
		Logger:  a.log,
		Clock:   a.clock,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		// Don't report cancellation as an error
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("MCP server error: %w", err)
	}

	return nil
}
