package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forest6511/habitctl/internal/config"
	"github.com/forest6511/habitctl/internal/logging"
	"github.com/forest6511/habitctl/internal/mcp"
	"github.com/forest6511/habitctl/pkg/session"
	"github.com/forest6511/habitctl/pkg/vault"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// app holds the state shared by all commands of one invocation.
type app struct {
	// Persistent flags
	configPath string
	dataDir    string
	logLevel   string

	cfg   config.Config
	log   *zap.Logger
	vault *vault.Vault

	// clock overrides the time source for "today"; nil means time.Now
	clock func() time.Time
}

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	return newApp().rootCmd()
}

func newApp() *app {
	return &app{log: zap.NewNop()}
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "habitctl",
		Short: "habitctl is an encrypted habit tracker",
		Long: `Track daily habits and streaks in a single file encrypted with your password.

Habits can be referenced by name, by full id, or by a unique id prefix.
Dates accept YYYY-MM-DD, "today", "yesterday" or a day offset such as -2.`,
		Version:      version,
		SilenceUsage: true,
		// PersistentPreRunE runs before every subcommand and builds the vault
		// from configuration. Nothing is unlocked here.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cmd.Name() {
			case "completion", "help":
				return nil
			}
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.log.Sync()
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default: <user config dir>/habitctl/config.yaml)")
	cmd.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "Directory holding the vault file")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(
		a.initCmd(),
		a.addCmd(),
		a.listCmd(),
		a.editCmd(),
		a.removeCmd(),
		a.doneCmd(),
		a.undoCmd(),
		a.historyCmd(),
		a.calendarCmd(),
		a.passwordCmd(),
		a.backupCmd(),
		a.restoreCmd(),
		a.resetCmd(),
		a.mcpServerCmd(),
		completionCmd(),
	)

	return cmd
}

// setup loads configuration and creates the logger and the vault.
func (a *app) setup(cmd *cobra.Command) error {
	path, explicit := a.configPath, a.configPath != ""
	if !explicit {
		// Without a config directory the defaults apply
		if p, err := config.DefaultPath(); err == nil {
			path = p
		}
	}

	cfg, err := config.Load(path, explicit)
	if err != nil {
		return err
	}

	if a.dataDir != "" {
		abs, err := filepath.Abs(a.dataDir)
		if err != nil {
			return fmt.Errorf("invalid --data-dir: %w", err)
		}
		cfg.DataDir = abs
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	log, err := logging.NewWithWriter(cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	dir, err := cfg.VaultDir()
	if err != nil {
		return err
	}
	v, err := vault.New(dir, vault.WithKDFParams(cfg.KDF.Params()), vault.WithLogger(log))
	if err != nil {
		return err
	}

	a.cfg, a.log, a.vault = cfg, log, v
	log.Debug("vault configured", zap.String("path", v.Path()))
	return nil
}

// sessionOptions returns the options shared by every session.
func (a *app) sessionOptions() []session.Option {
	opts := []session.Option{session.WithLogger(a.log)}
	if a.clock != nil {
		opts = append(opts, session.WithClock(a.clock))
	}
	return opts
}

// unlock prompts for the vault password and opens a session.
// HABITCTL_PASSWORD, when set, is used instead of prompting.
func (a *app) unlock(p *prompter) (*session.Session, error) {
	if !a.vault.Exists() {
		return nil, fmt.Errorf("no vault found at %s (run 'habitctl init' first)", a.vault.Path())
	}

	password := os.Getenv(mcp.PasswordEnv)
	if password == "" {
		var err error
		password, err = p.password("Enter password: ")
		if err != nil {
			return nil, err
		}
	}

	return a.open(password)
}

// open opens a session on an existing vault with password.
func (a *app) open(password string) (*session.Session, error) {
	s, err := session.Open(a.vault, password, a.sessionOptions()...)
	if err != nil {
		if errors.Is(err, vault.ErrCannotOpen) {
			return nil, errors.New("failed to unlock vault: incorrect password or corrupted vault file")
		}
		return nil, fmt.Errorf("failed to unlock vault: %w", err)
	}
	return s, nil
}
