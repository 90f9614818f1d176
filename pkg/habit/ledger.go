package habit

import (
	"fmt"
	"time"
)

// Ledger is the aggregate of habits and their completions. Both collections
// keep insertion order.
//
// A Ledger is not safe for concurrent use; see package session for a
// single-writer wrapper.
type Ledger struct {
	Habits      []Habit      `json:"habits"`
	Completions []Completion `json:"completions"`

	clock func() time.Time
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		Habits:      []Habit{},
		Completions: []Completion{},
	}
}

// SetClock replaces the source of the current time. "Today" is the calendar
// date of the returned time in its location. A nil clock restores time.Now.
func (l *Ledger) SetClock(clock func() time.Time) {
	l.clock = clock
}

func (l *Ledger) now() time.Time {
	if l.clock != nil {
		return l.clock()
	}
	return time.Now()
}

// Today returns the current calendar date in local time.
func (l *Ledger) Today() Date {
	return DateOf(l.now())
}

// Len returns the number of habits.
func (l *Ledger) Len() int {
	return len(l.Habits)
}

// AddHabit appends a habit. The caller is responsible for a distinct ID.
func (l *Ledger) AddHabit(h Habit) {
	l.Habits = append(l.Habits, h)
}

// RemoveHabit removes the habit and all of its completions.
// It reports whether a habit was removed. The ledger gets new slices, so
// slices obtained from it earlier are left as they were.
func (l *Ledger) RemoveHabit(id string) bool {
	removed := false
	habits := make([]Habit, 0, len(l.Habits))
	for _, h := range l.Habits {
		if h.ID == id {
			removed = true
			continue
		}
		habits = append(habits, h)
	}
	l.Habits = habits

	completions := make([]Completion, 0, len(l.Completions))
	for _, c := range l.Completions {
		if c.HabitID != id {
			completions = append(completions, c)
		}
	}
	l.Completions = completions

	return removed
}

// UpdateHabit changes a habit's name and description. Streaks are untouched.
// Unknown ids are ignored; the return value reports whether a habit matched.
func (l *Ledger) UpdateHabit(id, name, description string) bool {
	i := l.indexOf(id)
	if i < 0 {
		return false
	}
	l.Habits[i].Name = name
	l.Habits[i].Description = description
	return true
}

// Find returns a copy of the habit with the given id.
func (l *Ledger) Find(id string) (Habit, bool) {
	i := l.indexOf(id)
	if i < 0 {
		return Habit{}, false
	}
	return l.Habits[i], true
}

// MarkCompleted records a completion of habit id on date and recomputes the
// habit's streak. It is a no-op if the habit is unknown or already marked
// for that date, and reports whether a completion was added.
func (l *Ledger) MarkCompleted(id string, date Date, notes *string) bool {
	if l.indexOf(id) < 0 || l.IsCompletedOnDate(id, date) {
		return false
	}

	var n *string
	if notes != nil {
		text := *notes
		n = &text
	}

	l.Completions = append(l.Completions, Completion{
		HabitID:     id,
		Date:        date,
		CompletedAt: l.now().UTC(),
		Notes:       n,
	})
	l.updateStreak(id)
	return true
}

// UnmarkCompleted removes the completion of habit id on date, if any, and
// recomputes the habit's streak. It reports whether a completion was removed.
func (l *Ledger) UnmarkCompleted(id string, date Date) bool {
	removed := false
	completions := make([]Completion, 0, len(l.Completions))
	for _, c := range l.Completions {
		if c.HabitID == id && c.Date == date {
			removed = true
			continue
		}
		completions = append(completions, c)
	}
	l.Completions = completions

	l.updateStreak(id)
	return removed
}

// ToggleCompleted marks the date if it is unmarked and unmarks it otherwise.
// It returns whether the date is completed afterwards.
func (l *Ledger) ToggleCompleted(id string, date Date) bool {
	if l.IsCompletedOnDate(id, date) {
		l.UnmarkCompleted(id, date)
		return false
	}
	return l.MarkCompleted(id, date, nil)
}

// IsCompletedOnDate reports whether habit id has a completion on date.
func (l *Ledger) IsCompletedOnDate(id string, date Date) bool {
	for _, c := range l.Completions {
		if c.HabitID == id && c.Date == date {
			return true
		}
	}
	return false
}

// CompletionsFor returns the completions of habit id in insertion order.
func (l *Ledger) CompletionsFor(id string) []Completion {
	var out []Completion
	for _, c := range l.Completions {
		if c.HabitID == id {
			out = append(out, c)
		}
	}
	return out
}

// RecomputeStreaks recomputes the current streak of every habit against
// today's date and reports whether any value changed. Stored streaks go
// stale when a day passes without a completion; this settles them.
func (l *Ledger) RecomputeStreaks() bool {
	changed := false
	for _, h := range l.Habits {
		before := h
		l.updateStreak(h.ID)
		after, _ := l.Find(h.ID)
		if before.Streak != after.Streak || before.LongestStreak != after.LongestStreak {
			changed = true
		}
	}
	return changed
}

// updateStreak counts consecutive completed days ending today. A run that
// does not include today counts as zero. The cost is linear in the number of
// completions plus the length of the run.
func (l *Ledger) updateStreak(id string) {
	i := l.indexOf(id)
	if i < 0 {
		return
	}

	done := make(map[Date]struct{})
	for _, c := range l.Completions {
		if c.HabitID == id {
			done[c.Date] = struct{}{}
		}
	}

	streak := 0
	for d := l.Today(); ; d = d.AddDays(-1) {
		if _, ok := done[d]; !ok {
			break
		}
		streak++
	}

	h := &l.Habits[i]
	h.Streak = streak
	if streak > h.LongestStreak {
		h.LongestStreak = streak
	}
}

func (l *Ledger) indexOf(id string) int {
	for i := range l.Habits {
		if l.Habits[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the ledger, including its clock.
func (l *Ledger) Clone() *Ledger {
	out := &Ledger{
		Habits:      make([]Habit, len(l.Habits)),
		Completions: make([]Completion, len(l.Completions)),
		clock:       l.clock,
	}
	copy(out.Habits, l.Habits)
	for i, c := range l.Completions {
		if c.Notes != nil {
			notes := *c.Notes
			c.Notes = &notes
		}
		out.Completions[i] = c
	}
	return out
}

// Validate checks the ledger invariants: unique non-empty habit ids,
// non-negative streaks with LongestStreak >= Streak, and completions that
// reference a present habit with at most one completion per date.
func (l *Ledger) Validate() error {
	ids := make(map[string]struct{}, len(l.Habits))
	for _, h := range l.Habits {
		if h.ID == "" {
			return fmt.Errorf("%w: habit with empty id", ErrInvalidLedger)
		}
		if _, dup := ids[h.ID]; dup {
			return fmt.Errorf("%w: duplicate habit id %q", ErrInvalidLedger, h.ID)
		}
		ids[h.ID] = struct{}{}

		if h.Streak < 0 || h.LongestStreak < 0 {
			return fmt.Errorf("%w: habit %q has a negative streak", ErrInvalidLedger, h.ID)
		}
		if h.LongestStreak < h.Streak {
			return fmt.Errorf("%w: habit %q longest streak %d is below current streak %d",
				ErrInvalidLedger, h.ID, h.LongestStreak, h.Streak)
		}
	}

	type key struct {
		id   string
		date Date
	}
	seen := make(map[key]struct{}, len(l.Completions))
	for _, c := range l.Completions {
		if _, ok := ids[c.HabitID]; !ok {
			return fmt.Errorf("%w: completion references unknown habit %q", ErrInvalidLedger, c.HabitID)
		}
		if c.Date.IsZero() {
			return fmt.Errorf("%w: completion of habit %q has no date", ErrInvalidLedger, c.HabitID)
		}
		k := key{c.HabitID, c.Date}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: habit %q completed twice on %s", ErrInvalidLedger, c.HabitID, c.Date)
		}
		seen[k] = struct{}{}
	}
	return nil
}
