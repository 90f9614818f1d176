package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/forest6511/habitctl/internal/cli"
	"github.com/forest6511/habitctl/pkg/habit"
)

// Tool names
const (
	ToolList     = "habit_list"
	ToolHistory  = "habit_history"
	ToolCalendar = "habit_calendar"
	ToolMark     = "habit_mark"
	ToolUnmark   = "habit_unmark"
)

// isWriteTool reports whether a tool modifies the vault.
func isWriteTool(name string) bool {
	return name == ToolMark || name == ToolUnmark
}

// errUnchanged aborts a session update that would not modify the ledger.
var errUnchanged = errors.New("ledger unchanged")

// HabitListInput represents input for habit_list tool.
type HabitListInput struct {
	Pattern string `json:"pattern,omitempty"`
}

// HabitInfo describes one habit.
type HabitInfo struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	CreatedAt         string `json:"created_at"`
	TargetDaysPerWeek int    `json:"target_days_per_week"`
	Streak            int    `json:"streak"`
	LongestStreak     int    `json:"longest_streak"`
	CompletedToday    bool   `json:"completed_today"`
}

// HabitListOutput represents output for habit_list tool.
type HabitListOutput struct {
	Today  string      `json:"today"`
	Habits []HabitInfo `json:"habits"`
}

// HabitHistoryInput represents input for habit_history tool.
type HabitHistoryInput struct {
	Habit string `json:"habit"`
	Limit int    `json:"limit,omitempty"`
}

// CompletionInfo describes one completion.
type CompletionInfo struct {
	Date        string `json:"date"`
	CompletedAt string `json:"completed_at"`
	Notes       string `json:"notes,omitempty"`
}

// HabitHistoryOutput represents output for habit_history tool.
type HabitHistoryOutput struct {
	HabitID     string           `json:"habit_id"`
	Name        string           `json:"name"`
	Total       int              `json:"total"`
	Completions []CompletionInfo `json:"completions"`
}

// HabitCalendarInput represents input for habit_calendar tool.
type HabitCalendarInput struct {
	Habit string `json:"habit"`
	Year  int    `json:"year,omitempty"`
	Month int    `json:"month,omitempty"`
}

// CalendarDay is one cell of a calendar week.
type CalendarDay struct {
	Date      string `json:"date"`
	InMonth   bool   `json:"in_month"`
	Completed bool   `json:"completed"`
	Today     bool   `json:"today"`
}

// HabitCalendarOutput represents output for habit_calendar tool.
type HabitCalendarOutput struct {
	HabitID   string          `json:"habit_id"`
	Name      string          `json:"name"`
	Year      int             `json:"year"`
	Month     int             `json:"month"`
	Completed int             `json:"completed"`
	Weeks     [][]CalendarDay `json:"weeks"`
}

// HabitMarkInput represents input for habit_mark tool.
type HabitMarkInput struct {
	Habit string `json:"habit"`
	Date  string `json:"date,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// HabitUnmarkInput represents input for habit_unmark tool.
type HabitUnmarkInput struct {
	Habit string `json:"habit"`
	Date  string `json:"date,omitempty"`
}

// HabitMarkOutput represents output for habit_mark and habit_unmark tools.
type HabitMarkOutput struct {
	HabitID       string `json:"habit_id"`
	Date          string `json:"date"`
	Changed       bool   `json:"changed"`
	Completed     bool   `json:"completed"`
	Streak        int    `json:"streak"`
	LongestStreak int    `json:"longest_streak"`
}

// handleHabitList handles the habit_list tool call.
func (s *Server) handleHabitList(_ context.Context, _ *mcp.CallToolRequest, input HabitListInput) (*mcp.CallToolResult, HabitListOutput, error) {
	l, err := s.session.Snapshot()
	if err != nil {
		return nil, HabitListOutput{}, err
	}
	// Stored streaks go stale as days pass; settle them on the copy.
	l.RecomputeStreaks()

	habits := l.Habits
	if input.Pattern != "" {
		habits, err = cli.ExpandPattern(input.Pattern, l.Habits)
		if err != nil {
			return nil, HabitListOutput{}, err
		}
	}

	today := l.Today()
	output := HabitListOutput{
		Today:  today.String(),
		Habits: make([]HabitInfo, 0, len(habits)),
	}
	for _, h := range habits {
		output.Habits = append(output.Habits, HabitInfo{
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

	return nil, output, nil
}

// handleHabitHistory handles the habit_history tool call.
func (s *Server) handleHabitHistory(_ context.Context, _ *mcp.CallToolRequest, input HabitHistoryInput) (*mcp.CallToolResult, HabitHistoryOutput, error) {
	if input.Limit < 0 {
		return nil, HabitHistoryOutput{}, fmt.Errorf("limit must not be negative")
	}

	l, err := s.session.Snapshot()
	if err != nil {
		return nil, HabitHistoryOutput{}, err
	}
	h, err := cli.ResolveHabit(input.Habit, l.Habits)
	if err != nil {
		return nil, HabitHistoryOutput{}, err
	}

	completions := l.CompletionsFor(h.ID)
	sort.SliceStable(completions, func(i, j int) bool {
		return completions[j].Date.Before(completions[i].Date)
	})

	output := HabitHistoryOutput{
		HabitID:     h.ID,
		Name:        h.Name,
		Total:       len(completions),
		Completions: make([]CompletionInfo, 0, len(completions)),
	}
	if input.Limit > 0 && len(completions) > input.Limit {
		completions = completions[:input.Limit]
	}
	for _, c := range completions {
		info := CompletionInfo{
			Date:        c.Date.String(),
			CompletedAt: c.CompletedAt.Format(time.RFC3339),
		}
		if c.Notes != nil {
			info.Notes = *c.Notes
		}
		output.Completions = append(output.Completions, info)
	}

	return nil, output, nil
}

// handleHabitCalendar handles the habit_calendar tool call.
func (s *Server) handleHabitCalendar(_ context.Context, _ *mcp.CallToolRequest, input HabitCalendarInput) (*mcp.CallToolResult, HabitCalendarOutput, error) {
	if input.Month < 0 || input.Month > 12 {
		return nil, HabitCalendarOutput{}, fmt.Errorf("month must be between 1 and 12")
	}

	l, err := s.session.Snapshot()
	if err != nil {
		return nil, HabitCalendarOutput{}, err
	}
	h, err := cli.ResolveHabit(input.Habit, l.Habits)
	if err != nil {
		return nil, HabitCalendarOutput{}, err
	}

	today := l.Today()
	year, month := today.Year, today.Month
	if input.Year != 0 {
		year = input.Year
	}
	if input.Month != 0 {
		month = time.Month(input.Month)
	}

	m := l.MonthView(h.ID, year, month)
	output := HabitCalendarOutput{
		HabitID: h.ID,
		Name:    h.Name,
		Year:    m.Year,
		Month:   int(m.Month),
		Weeks:   make([][]CalendarDay, 0, len(m.Weeks)),
	}
	for _, week := range m.Weeks {
		days := make([]CalendarDay, 0, len(week))
		for _, d := range week {
			days = append(days, CalendarDay{
				Date:      d.Date.String(),
				InMonth:   d.InMonth,
				Completed: d.Completed,
				Today:     d.Today,
			})
			if d.InMonth && d.Completed {
				output.Completed++
			}
		}
		output.Weeks = append(output.Weeks, days)
	}

	return nil, output, nil
}

// handleHabitMark handles the habit_mark tool call.
func (s *Server) handleHabitMark(_ context.Context, _ *mcp.CallToolRequest, input HabitMarkInput) (*mcp.CallToolResult, HabitMarkOutput, error) {
	var notes *string
	if input.Notes != "" {
		notes = &input.Notes
	}
	out, err := s.setCompleted(ToolMark, input.Habit, input.Date, func(l *habit.Ledger, id string, d habit.Date) bool {
		return l.MarkCompleted(id, d, notes)
	})
	return nil, out, err
}

// handleHabitUnmark handles the habit_unmark tool call.
func (s *Server) handleHabitUnmark(_ context.Context, _ *mcp.CallToolRequest, input HabitUnmarkInput) (*mcp.CallToolResult, HabitMarkOutput, error) {
	out, err := s.setCompleted(ToolUnmark, input.Habit, input.Date, func(l *habit.Ledger, id string, d habit.Date) bool {
		return l.UnmarkCompleted(id, d)
	})
	return nil, out, err
}

// setCompleted checks the policy, applies change through the session and
// reports the resulting state. No save happens when nothing changed.
func (s *Server) setCompleted(tool, ref, date string, change func(l *habit.Ledger, id string, d habit.Date) bool) (HabitMarkOutput, error) {
	if allowed, reason := s.policy.IsToolAllowed(tool); !allowed {
		return HabitMarkOutput{}, fmt.Errorf("policy denied: %s", reason)
	}

	var (
		id  string
		day habit.Date
	)
	l, err := s.session.Update(func(l *habit.Ledger) error {
		h, err := cli.ResolveHabit(ref, l.Habits)
		if err != nil {
			return err
		}
		d, err := cli.ParseDateArg(date, l.Today())
		if err != nil {
			return err
		}
		id, day = h.ID, d
		if !change(l, id, d) {
			return errUnchanged
		}
		return nil
	})

	changed := true
	if errors.Is(err, errUnchanged) {
		changed = false
		l, err = s.session.Snapshot()
	}
	if err != nil {
		return HabitMarkOutput{}, err
	}

	h, _ := l.Find(id)
	s.log.Info("habit completion updated",
		zap.String("tool", tool), zap.String("habit_id", id), zap.Bool("changed", changed))

	return HabitMarkOutput{
		HabitID:       id,
		Date:          day.String(),
		Changed:       changed,
		Completed:     l.IsCompletedOnDate(id, day),
		Streak:        h.Streak,
		LongestStreak: h.LongestStreak,
	}, nil
}
