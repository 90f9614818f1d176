// Package mcp implements the MCP (Model Context Protocol) server for habitctl.
// AI agents can read habits and streaks; marking and unmarking completions
// requires an explicit policy file.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/forest6511/habitctl/pkg/session"
	"github.com/forest6511/habitctl/pkg/vault"
)

// PasswordEnv is the environment variable holding the vault password.
const PasswordEnv = "HABITCTL_PASSWORD"

// Server represents the MCP server for habitctl.
type Server struct {
	server  *mcp.Server
	session *session.Session
	policy  *Policy
	log     *zap.Logger
}

// ServerOptions contains configuration options for the MCP server.
type ServerOptions struct {
	// Vault is the vault to serve. Required.
	Vault *vault.Vault

	// Password is the vault password.
	// If empty, the server reads and then unsets HABITCTL_PASSWORD.
	Password string

	// Version is reported to clients.
	Version string

	// Logger receives server logs. Must not write to stdout, which carries
	// the protocol.
	Logger *zap.Logger

	// Clock overrides the time source for "today".
	Clock func() time.Time
}

// NewServer creates a new MCP server instance.
func NewServer(opts *ServerOptions) (*Server, error) {
	if opts == nil || opts.Vault == nil {
		return nil, errors.New("vault is required")
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	policy, err := LoadPolicy(opts.Vault.Dir())
	if err != nil {
		if !errors.Is(err, ErrPolicyNotFound) {
			// Not fatal: write tools stay disabled
			log.Warn("failed to load MCP policy, write tools disabled", zap.Error(err))
		}
		policy = nil
	}

	// Get password from options or environment
	password := opts.Password
	if password == "" {
		password = os.Getenv(PasswordEnv)
		// Clear the environment variable after reading for security
		os.Unsetenv(PasswordEnv)
	}

	if password == "" {
		return nil, fmt.Errorf("no password provided: set %s environment variable", PasswordEnv)
	}

	sessOpts := []session.Option{session.WithLogger(log)}
	if opts.Clock != nil {
		sessOpts = append(sessOpts, session.WithClock(opts.Clock))
	}
	sess, err := session.Open(opts.Vault, password, sessOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}

	version := opts.Version
	if version == "" {
		version = "dev"
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "habitctl",
			Version: version,
		},
		nil,
	)

	s := &Server{
		server:  mcpServer,
		session: sess,
		policy:  policy,
		log:     log,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolList,
		Description: "List habits with their current and longest streaks and whether they are done today. Optional name pattern with * and ? wildcards.",
	}, s.handleHabitList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolHistory,
		Description: "List the completions of one habit, most recent first. The habit is referenced by id, name, or id prefix.",
	}, s.handleHabitHistory)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolCalendar,
		Description: "Return a Monday-first month calendar of one habit with completed days marked. Defaults to the current month.",
	}, s.handleHabitCalendar)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolMark,
		Description: "Mark a habit as done on a date (default today). Requires policy approval.",
	}, s.handleHabitMark)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolUnmark,
		Description: "Remove the completion of a habit on a date (default today). Requires policy approval.",
	}, s.handleHabitUnmark)
}

// Run starts the MCP server using stdio transport.
func (s *Server) Run(ctx context.Context) error {
	defer s.session.Close()

	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close closes the server and forgets the vault password.
func (s *Server) Close() error {
	s.session.Close()
	return nil
}
