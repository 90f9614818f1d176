package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forest6511/habitctl/pkg/vault"
)

// passwordCmd is the parent command for password operations.
func (a *app) passwordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Vault password operations",
	}
	cmd.AddCommand(a.passwordChangeCmd())
	return cmd
}

// passwordChangeCmd re-encrypts the vault under a new password.
func (a *app) passwordChangeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "change",
		Short: "Change the vault password",
		Long: `Change the vault password.

The vault is decrypted with the current password and written again under the
new one with a fresh salt. The file is replaced atomically: either the change
fully succeeds or the vault keeps the old password.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.vault.Exists() {
				return fmt.Errorf("no vault found at %s (run 'habitctl init' first)", a.vault.Path())
			}

			p := newPrompter(cmd)
			current, err := p.password("Enter current password: ")
			if err != nil {
				return err
			}
			s, err := a.open(current)
			if err != nil {
				return errors.New("current password is incorrect")
			}
			defer s.Close()

			next, err := p.newPassword("new password", a.minPasswordLength())
			if err != nil {
				return err
			}

			if err := s.ChangePassword(current, next); err != nil {
				if errors.Is(err, vault.ErrSamePassword) {
					return errors.New("new password must be different from current password")
				}
				return fmt.Errorf("failed to change password: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Password changed successfully\n", color.GreenString("✓"))
			return nil
		},
	}
}
