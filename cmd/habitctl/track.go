package main

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forest6511/habitctl/internal/cli"
	"github.com/forest6511/habitctl/pkg/habit"
	"github.com/forest6511/habitctl/pkg/session"
)

// errNothingChanged aborts an update that would leave the ledger as it was,
// so nothing is re-encrypted.
var errNothingChanged = errors.New("nothing changed")

// markResult records what a done or undo did to one habit.
type markResult struct {
	id      string
	name    string
	changed bool
}

// setCompleted applies change to every habit matching patterns on the date
// given by dateArg and returns the results with the saved ledger.
func setCompleted(s *session.Session, patterns []string, dateArg string,
	change func(l *habit.Ledger, id string, d habit.Date) bool) (*habit.Ledger, habit.Date, []markResult, error) {

	var (
		day     habit.Date
		results []markResult
	)
	l, err := s.Update(func(l *habit.Ledger) error {
		habits, err := cli.ExpandPatterns(patterns, l.Habits)
		if err != nil {
			return err
		}
		d, err := cli.ParseDateArg(dateArg, l.Today())
		if err != nil {
			return err
		}
		day = d

		modified := false
		for _, h := range habits {
			changed := change(l, h.ID, d)
			results = append(results, markResult{id: h.ID, name: h.Name, changed: changed})
			modified = modified || changed
		}
		if !modified {
			return errNothingChanged
		}
		return nil
	})
	if errors.Is(err, errNothingChanged) {
		l, err = s.Snapshot()
	}
	if err != nil {
		return nil, habit.Date{}, nil, err
	}
	return l, day, results, nil
}

// doneCmd marks habits as completed.
func (a *app) doneCmd() *cobra.Command {
	var date, notes string

	cmd := &cobra.Command{
		Use:   "done <habit>...",
		Short: "Mark habits as done",
		Example: `  habitctl done Read
  habitctl done Read Run --date yesterday
  habitctl done 'Morning*' --notes "before work"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.unlock(newPrompter(cmd))
			if err != nil {
				return err
			}
			defer s.Close()

			var n *string
			if cmd.Flags().Changed("notes") {
				n = &notes
			}
			l, day, results, err := setCompleted(s, args, date, func(l *habit.Ledger, id string, d habit.Date) bool {
				return l.MarkCompleted(id, d, n)
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range results {
				if !r.changed {
					fmt.Fprintf(out, "%s '%s' was already done on %s\n", color.YellowString("!"), r.name, day)
					continue
				}
				h, _ := l.Find(r.id)
				fmt.Fprintf(out, "%s '%s' done on %s  %s %d %s streak\n",
					color.GreenString("✓"), r.name, day, streakIcon(h.Streak), h.Streak, dayWord(h.Streak))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "today", "Date: YYYY-MM-DD, today, yesterday or -N")
	cmd.Flags().StringVar(&notes, "notes", "", "Notes for the completion")
	return cmd
}

// undoCmd removes completions.
func (a *app) undoCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "undo <habit>...",
		Short: "Remove the completion of habits on a date",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.unlock(newPrompter(cmd))
			if err != nil {
				return err
			}
			defer s.Close()

			l, day, results, err := setCompleted(s, args, date, func(l *habit.Ledger, id string, d habit.Date) bool {
				return l.UnmarkCompleted(id, d)
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range results {
				if !r.changed {
					fmt.Fprintf(out, "%s '%s' was not done on %s\n", color.YellowString("!"), r.name, day)
					continue
				}
				h, _ := l.Find(r.id)
				fmt.Fprintf(out, "%s '%s' unmarked on %s  %s %d %s streak\n",
					color.GreenString("✓"), r.name, day, streakIcon(h.Streak), h.Streak, dayWord(h.Streak))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "today", "Date: YYYY-MM-DD, today, yesterday or -N")
	return cmd
}

// historyCmd lists the completions of a habit.
func (a *app) historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <habit>",
		Short: "Show the completions of a habit, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}

			s, err := a.unlock(newPrompter(cmd))
			if err != nil {
				return err
			}
			defer s.Close()

			l, err := s.Snapshot()
			if err != nil {
				return err
			}
			l.RecomputeStreaks()

			h, err := cli.ResolveHabit(args[0], l.Habits)
			if err != nil {
				return err
			}

			completions := l.CompletionsFor(h.ID)
			sort.SliceStable(completions, func(i, j int) bool {
				return completions[j].Date.Before(completions[i].Date)
			})

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d completions, streak %d (best %d)\n",
				color.CyanString(h.Name), len(completions), h.Streak, h.LongestStreak)

			if limit > 0 && len(completions) > limit {
				completions = completions[:limit]
			}
			for _, c := range completions {
				line := fmt.Sprintf("  %s  %s", c.Date, c.Date.Weekday().String()[:3])
				if c.Notes != nil && *c.Notes != "" {
					line += "  " + color.HiBlackString(*c.Notes)
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most N completions (0 = all)")
	return cmd
}

// calendarCmd prints a month calendar of a habit.
func (a *app) calendarCmd() *cobra.Command {
	var month string

	cmd := &cobra.Command{
		Use:     "calendar <habit>",
		Aliases: []string{"cal"},
		Short:   "Show a month calendar of a habit",
		Example: `  habitctl calendar Read
  habitctl calendar Read --month 2024-05`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var year int
			var mon time.Month
			if month != "" {
				t, err := time.Parse("2006-01", month)
				if err != nil {
					return fmt.Errorf("invalid --month '%s' (expected YYYY-MM)", month)
				}
				year, mon = t.Year(), t.Month()
			}

			s, err := a.unlock(newPrompter(cmd))
			if err != nil {
				return err
			}
			defer s.Close()

			l, err := s.Snapshot()
			if err != nil {
				return err
			}
			h, err := cli.ResolveHabit(args[0], l.Habits)
			if err != nil {
				return err
			}

			if month == "" {
				today := l.Today()
				year, mon = today.Year, today.Month
			}
			renderCalendar(cmd.OutOrStdout(), h.Name, l.MonthView(h.ID, year, mon))
			return nil
		},
	}

	cmd.Flags().StringVar(&month, "month", "", "Month to show as YYYY-MM (default: current month)")
	return cmd
}
