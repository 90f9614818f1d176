package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/forest6511/habitctl/pkg/habit"
)

// Streak tiers
const (
	goodStreak = 3
	highStreak = 7
)

// streakIcon returns the badge shown next to a streak.
func streakIcon(streak int) string {
	switch {
	case streak >= highStreak:
		return "🔥"
	case streak >= goodStreak:
		return "😊"
	default:
		return "😞"
	}
}

// formatStreak renders a streak with its badge, padded to width before
// coloring so columns stay aligned.
func formatStreak(streak, width int) string {
	text := fmt.Sprintf("%s %-*d", streakIcon(streak), width, streak)
	switch {
	case streak >= highStreak:
		return color.New(color.FgRed, color.Bold).Sprint(text)
	case streak >= goodStreak:
		return color.YellowString(text)
	default:
		return text
	}
}

// dayWord pluralizes "day".
func dayWord(n int) string {
	if n == 1 {
		return "day"
	}
	return "days"
}

// shortID returns the first characters of a habit id after its marker,
// enough to reference the habit on the command line.
func shortID(id string) string {
	s := strings.TrimPrefix(id, "habit_")
	if len(s) > 8 {
		s = s[:8]
	}
	return s
}

// renderHabits prints one line per habit: today's status, name, current
// streak, longest streak and short id.
func renderHabits(w io.Writer, l *habit.Ledger, habits []habit.Habit) {
	today := l.Today()

	nameWidth := 0
	for _, h := range habits {
		if n := len([]rune(h.Name)); n > nameWidth {
			nameWidth = n
		}
	}

	for _, h := range habits {
		status := " "
		if l.IsCompletedOnDate(h.ID, today) {
			status = color.GreenString("✓")
		}
		name := h.Name + strings.Repeat(" ", nameWidth-len([]rune(h.Name)))
		fmt.Fprintf(w, "%s %s  %s  best %-4d %s\n",
			status, name, formatStreak(h.Streak, 4), h.LongestStreak, color.HiBlackString(shortID(h.ID)))
		if h.Description != "" {
			fmt.Fprintf(w, "  %s\n", color.HiBlackString(h.Description))
		}
	}
}

// renderCalendar prints a Monday-first month grid. Completed days carry a
// trailing asterisk; today is underlined when color is enabled.
func renderCalendar(w io.Writer, name string, m habit.Month) {
	fmt.Fprintf(w, "%s %d  %s\n", m.Month, m.Year, color.CyanString(name))
	fmt.Fprintln(w, "Mo  Tu  We  Th  Fr  Sa  Su")

	completed, days := 0, 0
	for _, week := range m.Weeks {
		cells := make([]string, 0, len(week))
		for _, d := range week {
			if !d.InMonth {
				cells = append(cells, "   ")
				continue
			}
			days++

			mark := " "
			if d.Completed {
				completed++
				mark = "*"
			}
			cell := fmt.Sprintf("%2d%s", d.Date.Day, mark)

			attrs := []color.Attribute{}
			if d.Completed {
				attrs = append(attrs, color.FgGreen, color.Bold)
			}
			if d.Today {
				attrs = append(attrs, color.Underline)
			}
			if len(attrs) > 0 {
				cell = color.New(attrs...).Sprint(cell)
			}
			cells = append(cells, cell)
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, " "), " "))
	}

	fmt.Fprintf(w, "%d of %d %s completed\n", completed, days, dayWord(days))
}
