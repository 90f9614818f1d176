package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// resetCmd deletes the vault file.
func (a *app) resetCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all habits and the vault file",
		Long: `Delete the vault file and every habit and completion in it.

This cannot be undone. Create a backup first with 'habitctl backup'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if !force {
				p := newPrompter(cmd)
				fmt.Fprintf(p.out, "%s This permanently deletes %s\n", color.RedString("!"), a.vault.Path())
				ok, err := p.confirm("Delete all data?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "Aborted")
					return nil
				}
			}

			if err := a.vault.DeleteAllData(); err != nil {
				return err
			}

			fmt.Fprintf(out, "%s All data deleted\n", color.GreenString("✓"))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")
	return cmd
}
