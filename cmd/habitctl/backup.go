package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forest6511/habitctl/pkg/vault"
)

// backupCmd exports an independently encrypted copy of the vault.
func (a *app) backupCmd() *cobra.Command {
	var (
		output string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create an encrypted backup of the vault",
		Long: `Create an encrypted backup of the vault.

The backup has the same format as the vault file but its own password, salt
and nonce. Restore it with 'habitctl restore'.

Examples:
  # Backup to a file
  habitctl backup -o habits.backup

  # Overwrite an existing file
  habitctl backup -o habits.backup --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return errors.New("--output is required")
			}
			if !force {
				if _, err := os.Stat(output); err == nil {
					return fmt.Errorf("output file already exists: %s (use --force to overwrite)", output)
				}
			}

			p := newPrompter(cmd)
			s, err := a.unlock(p)
			if err != nil {
				return err
			}
			defer s.Close()

			backupPassword, err := p.newPassword("backup password", a.minPasswordLength())
			if err != nil {
				return err
			}

			if err := s.ExportBackup(backupPassword, output); err != nil {
				if errors.Is(err, vault.ErrBackupIsVault) {
					return errors.New("backup destination must not be the vault file itself")
				}
				return fmt.Errorf("backup failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Backup created: %s\n", color.GreenString("✓"), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing file")
	return cmd
}
