// Package habit implements the in-memory habit ledger: habits, their
// completion log, and the streak bookkeeping derived from it.
//
// Every operation is pure and performs no I/O. Persistence is the job of
// package vault.
package habit

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultTargetDaysPerWeek is the target assigned to new habits.
const DefaultTargetDaysPerWeek = 7

// idPrefix marks habit identifiers.
const idPrefix = "habit_"

// ErrInvalidLedger indicates a ledger violates one of its invariants.
var ErrInvalidLedger = errors.New("habit: invalid ledger")

// Habit is a recurring activity tracked by the ledger.
type Habit struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`

	// TargetDaysPerWeek is stored for compatibility; no logic reads it.
	TargetDaysPerWeek int `json:"target_days_per_week"`

	// Streak is the run of consecutive completed days ending today.
	Streak int `json:"streak"`

	// LongestStreak is the longest Streak ever observed. It never decreases.
	LongestStreak int `json:"longest_streak"`
}

// Completion records that a habit was done on a date. There is at most one
// Completion per (HabitID, Date).
type Completion struct {
	HabitID     string    `json:"habit_id"`
	Date        Date      `json:"date"`
	CompletedAt time.Time `json:"completed_at"`
	Notes       *string   `json:"notes"`
}

// NewHabit returns a habit with a fresh time-ordered identifier, created now.
func NewHabit(name, description string) Habit {
	return Habit{
		ID:                NewID(),
		Name:              name,
		Description:       description,
		CreatedAt:         time.Now().UTC(),
		TargetDaysPerWeek: DefaultTargetDaysPerWeek,
	}
}

// NewID generates a habit identifier. Identifiers embed a UUIDv7, so they
// sort by creation time and stay unique when created within the same second.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 fails only if the random source does.
		id = uuid.New()
	}
	return idPrefix + id.String()
}
