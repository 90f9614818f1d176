package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forest6511/habitctl/internal/cli"
	"github.com/forest6511/habitctl/pkg/habit"
	"github.com/forest6511/habitctl/pkg/vault"
)

// initCmd creates an empty vault under a new password.
func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new encrypted habit vault",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.vault.Exists() {
				return fmt.Errorf("vault already exists at %s", a.vault.Path())
			}

			p := newPrompter(cmd)
			fmt.Fprintln(cmd.OutOrStdout(), "Initializing new vault...")
			password, err := p.newPassword("password", a.minPasswordLength())
			if err != nil {
				return err
			}

			if err := a.vault.Save(habit.NewLedger(), password); err != nil {
				return fmt.Errorf("failed to initialize vault: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Vault initialized at %s\n", color.GreenString("✓"), a.vault.Path())
			return nil
		},
	}
}

// addCmd adds a habit.
func (a *app) addCmd() *cobra.Command {
	var (
		description string
		target      int
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a habit",
		Example: `  habitctl add Read -d "20 pages a day"
  habitctl add "Morning run" --target 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return errors.New("habit name cannot be empty")
			}
			if target < 1 || target > 7 {
				return fmt.Errorf("--target must be between 1 and 7, got %d", target)
			}

			s, err := a.unlock(newPrompter(cmd))
			if err != nil {
				return err
			}
			defer s.Close()

			var added habit.Habit
			_, err = s.Update(func(l *habit.Ledger) error {
				for _, h := range l.Habits {
					if strings.EqualFold(h.Name, name) {
						return fmt.Errorf("habit '%s' already exists", h.Name)
					}
				}
				added = habit.NewHabit(name, strings.TrimSpace(description))
				added.TargetDaysPerWeek = target
				l.AddHabit(added)
				return nil
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Added habit '%s' (%s)\n", color.GreenString("✓"), added.Name, shortID(added.ID))
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Habit description")
	cmd.Flags().IntVar(&target, "target", habit.DefaultTargetDaysPerWeek, "Target days per week (1-7)")
	return cmd
}

// listEntry is the JSON form of a habit in list output.
type listEntry struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	CreatedAt         string `json:"created_at"`
	TargetDaysPerWeek int    `json:"target_days_per_week"`
	Streak            int    `json:"streak"`
	LongestStreak     int    `json:"longest_streak"`
	CompletedToday    bool   `json:"completed_today"`
}

// listCmd lists habits and streaks.
func (a *app) listCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list [pattern]",
		Aliases: []string{"ls"},
		Short:   "List habits with their streaks",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.unlock(newPrompter(cmd))
			if err != nil {
				return err
			}
			defer s.Close()

			l, err := s.Snapshot()
			if err != nil {
				return err
			}
			// Stored streaks go stale as days pass
			l.RecomputeStreaks()

			habits := l.Habits
			if len(args) == 1 {
				habits, err = cli.ExpandPattern(args[0], l.Habits)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				today := l.Today()
				entries := make([]listEntry, 0, len(habits))
				for _, h := range habits {
					entries = append(entries, listEntry{
						ID:                h.ID,
						Name:              h.Name,
						Description:       h.Description,
						CreatedAt:         h.CreatedAt.Format(time.RFC3339),
						TargetDaysPerWeek: h.TargetDaysPerWeek,
						Streak:            h.Streak,
						LongestStreak:     h.LongestStreak,
						CompletedToday:    l.IsCompletedOnDate(h.ID, today),
					})
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			if len(habits) == 0 {
				fmt.Fprintln(out, "No habits yet")
				fmt.Fprintf(out, "%s Run %s to add one\n", color.CyanString("→"), color.YellowString("habitctl add <name>"))
				return nil
			}
			renderHabits(out, l, habits)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

// editCmd renames a habit or changes its description.
func (a *app) editCmd() *cobra.Command {
	var name, description string

	cmd := &cobra.Command{
		Use:   "edit <habit>",
		Short: "Change a habit's name or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nameSet := cmd.Flags().Changed("name")
			descSet := cmd.Flags().Changed("description")
			if !nameSet && !descSet {
				return errors.New("nothing to change: use --name or --description")
			}
			if nameSet && strings.TrimSpace(name) == "" {
				return errors.New("habit name cannot be empty")
			}

			s, err := a.unlock(newPrompter(cmd))
			if err != nil {
				return err
			}
			defer s.Close()

			var updated habit.Habit
			_, err = s.Update(func(l *habit.Ledger) error {
				h, err := cli.ResolveHabit(args[0], l.Habits)
				if err != nil {
					return err
				}
				newName, newDesc := h.Name, h.Description
				if nameSet {
					newName = strings.TrimSpace(name)
					for _, other := range l.Habits {
						if other.ID != h.ID && strings.EqualFold(other.Name, newName) {
							return fmt.Errorf("habit '%s' already exists", other.Name)
						}
					}
				}
				if descSet {
					newDesc = strings.TrimSpace(description)
				}
				l.UpdateHabit(h.ID, newName, newDesc)
				updated, _ = l.Find(h.ID)
				return nil
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Updated habit '%s'\n", color.GreenString("✓"), updated.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVarP(&description, "description", "d", "", "New description")
	return cmd
}

// removeCmd deletes habits and their completions.
func (a *app) removeCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "remove <habit>...",
		Aliases: []string{"rm"},
		Short:   "Delete habits and all of their completions",
		Long: `Delete habits and all of their completions. Arguments may be names,
ids, id prefixes or glob patterns such as 'Read*'.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(cmd)
			s, err := a.unlock(p)
			if err != nil {
				return err
			}
			defer s.Close()

			l, err := s.Snapshot()
			if err != nil {
				return err
			}
			targets, err := cli.ExpandPatterns(args, l.Habits)
			if err != nil {
				return err
			}

			if !force {
				for _, h := range targets {
					fmt.Fprintf(p.out, "  %s (%d completions)\n", h.Name, len(l.CompletionsFor(h.ID)))
				}
				ok, err := p.confirm(fmt.Sprintf("Delete %d habit(s) permanently?", len(targets)))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
			}

			_, err = s.Update(func(l *habit.Ledger) error {
				for _, h := range targets {
					l.RemoveHabit(h.ID)
				}
				return nil
			})
			if err != nil {
				return err
			}

			for _, h := range targets {
				fmt.Fprintf(cmd.OutOrStdout(), "%s Removed habit '%s'\n", color.GreenString("✓"), h.Name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")
	return cmd
}

// minPasswordLength is the configured minimum for new passwords.
func (a *app) minPasswordLength() int {
	if a.cfg.MinPasswordLength < 1 {
		return vault.DefaultMinPasswordLength
	}
	return a.cfg.MinPasswordLength
}
