package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/forest6511/habitctl/pkg/habit"
)

// ParseDateArg parses a date given on the command line relative to today:
// "today", "yesterday", a day offset such as "-2", or YYYY-MM-DD. Dates in
// the future are rejected.
func ParseDateArg(s string, today habit.Date) (habit.Date, error) {
	s = strings.TrimSpace(strings.ToLower(s))

	var d habit.Date
	switch {
	case s == "" || s == "today":
		d = today
	case s == "yesterday":
		d = today.AddDays(-1)
	case strings.HasPrefix(s, "-"):
		n, err := strconv.Atoi(s)
		if err != nil {
			return habit.Date{}, fmt.Errorf("invalid day offset '%s'", s)
		}
		d = today.AddDays(n)
	default:
		parsed, err := habit.ParseDate(s)
		if err != nil {
			return habit.Date{}, err
		}
		d = parsed
	}

	if today.Before(d) {
		return habit.Date{}, fmt.Errorf("date %s is in the future", d)
	}
	return d, nil
}
