// Package cli provides shared utilities for CLI commands and the MCP server.
package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/forest6511/habitctl/pkg/habit"
)

// minIDPrefix is the shortest id prefix accepted as a habit reference,
// not counting the "habit_" marker.
const minIDPrefix = 4

var (
	ErrHabitNotFound  = errors.New("habit not found")
	ErrAmbiguousHabit = errors.New("habit reference is ambiguous")
)

// ResolveHabit finds the one habit a reference names. In order of
// preference, a reference is a full id, a case-insensitive name, or a unique
// id prefix.
func ResolveHabit(ref string, habits []habit.Habit) (habit.Habit, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return habit.Habit{}, fmt.Errorf("%w: empty reference", ErrHabitNotFound)
	}

	for _, h := range habits {
		if h.ID == ref {
			return h, nil
		}
	}

	var byName []habit.Habit
	for _, h := range habits {
		if strings.EqualFold(h.Name, ref) {
			byName = append(byName, h)
		}
	}
	switch len(byName) {
	case 1:
		return byName[0], nil
	case 0:
	default:
		return habit.Habit{}, fmt.Errorf("%w: %d habits are named '%s', use the id", ErrAmbiguousHabit, len(byName), ref)
	}

	prefix := ref
	if !strings.HasPrefix(prefix, "habit_") {
		prefix = "habit_" + prefix
	}
	if len(prefix)-len("habit_") >= minIDPrefix {
		var byID []habit.Habit
		for _, h := range habits {
			if strings.HasPrefix(h.ID, prefix) {
				byID = append(byID, h)
			}
		}
		switch len(byID) {
		case 1:
			return byID[0], nil
		case 0:
		default:
			return habit.Habit{}, fmt.Errorf("%w: id prefix '%s' matches %d habits", ErrAmbiguousHabit, ref, len(byID))
		}
	}

	return habit.Habit{}, fmt.Errorf("%w: '%s'", ErrHabitNotFound, ref)
}

// ExpandPattern expands a glob pattern against habit names.
// If the pattern contains glob characters (*?[), it performs glob matching.
// Otherwise, it resolves a single habit with ResolveHabit.
func ExpandPattern(pattern string, habits []habit.Habit) ([]habit.Habit, error) {
	// Validate pattern syntax
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}

	if !strings.ContainsAny(pattern, "*?[") {
		h, err := ResolveHabit(pattern, habits)
		if err != nil {
			return nil, err
		}
		return []habit.Habit{h}, nil
	}

	var matches []habit.Habit
	for _, h := range habits {
		matched, err := filepath.Match(pattern, h.Name)
		if err != nil {
			return nil, err
		}
		if matched {
			matches = append(matches, h)
		}
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no habits match pattern '%s'", ErrHabitNotFound, pattern)
	}
	return matches, nil
}

// ExpandPatterns expands multiple patterns against habits.
// Returns unique habits preserving order of first match.
func ExpandPatterns(patterns []string, habits []habit.Habit) ([]habit.Habit, error) {
	seen := make(map[string]bool)
	var result []habit.Habit

	for _, pattern := range patterns {
		matches, err := ExpandPattern(pattern, habits)
		if err != nil {
			return nil, err
		}
		for _, h := range matches {
			if !seen[h.ID] {
				seen[h.ID] = true
				result = append(result, h)
			}
		}
	}

	return result, nil
}
