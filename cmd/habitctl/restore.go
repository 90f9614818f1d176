package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forest6511/habitctl/pkg/vault"
)

// restoreCmd replaces the vault with a backup.
func (a *app) restoreCmd() *cobra.Command {
	var (
		verifyOnly bool
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "restore <backup-file>",
		Short: "Restore the vault from an encrypted backup",
		Long: `Restore the vault from an encrypted backup file.

Restoring replaces every habit and completion in the vault with the contents
of the backup and encrypts the vault under a new password. This cannot be
undone.

Examples:
  # Verify backup integrity without restoring
  habitctl restore habits.backup --verify-only

  # Restore without the confirmation prompt
  habitctl restore habits.backup --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backupPath := args[0]
			if _, err := os.Stat(backupPath); errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("backup file not found: %s", backupPath)
			}

			p := newPrompter(cmd)
			backupPassword, err := p.password("Enter backup password: ")
			if err != nil {
				return err
			}

			info, err := a.vault.VerifyBackup(backupPath, backupPassword)
			if err != nil {
				if errors.Is(err, vault.ErrCannotOpen) {
					return errors.New("verification failed: incorrect backup password or corrupted backup")
				}
				return fmt.Errorf("verification failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if verifyOnly {
				fmt.Fprintf(out, "%s Backup verification successful\n", color.GreenString("✓"))
				printBackupInfo(out, info)
				return nil
			}

			if !force {
				fmt.Fprintf(p.out, "The backup holds %d habits and %d completions.\n", info.Habits, info.Completions)
				ok, err := p.confirm(fmt.Sprintf("Replace all data in %s with this backup?", a.vault.Path()))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "Restore cancelled")
					return nil
				}
			}

			newPassword, err := p.newPassword("new vault password", a.minPasswordLength())
			if err != nil {
				return err
			}

			l, err := a.vault.ImportBackup(backupPath, backupPassword, newPassword)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			fmt.Fprintf(out, "%s Restore complete: %d habits, %d completions\n",
				color.GreenString("✓"), len(l.Habits), len(l.Completions))
			return nil
		},
	}

	cmd.Flags().BoolVar(&verifyOnly, "verify-only", false, "Only verify backup integrity")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")
	return cmd
}

func printBackupInfo(w io.Writer, info *vault.BackupInfo) {
	fmt.Fprintf(w, "  Format version: %d\n", info.Version)
	fmt.Fprintf(w, "  Size: %d bytes\n", info.Size)
	fmt.Fprintf(w, "  Habits: %d\n", info.Habits)
	fmt.Fprintf(w, "  Completions: %d\n", info.Completions)
	fmt.Fprintf(w, "  KDF: argon2id m=%d KiB, t=%d, p=%d\n",
		info.KDF.Memory, info.KDF.Iterations, info.KDF.Parallelism)
}
