package habit

import "time"

// Day is one cell of a month view.
type Day struct {
	Date      Date `json:"date"`
	InMonth   bool `json:"in_month"`
	Completed bool `json:"completed"`
	Today     bool `json:"today"`
}

// Month is a calendar page for one habit. Weeks start on Monday and cover
// every day of the month; leading and trailing days belong to the
// neighbouring months.
type Month struct {
	HabitID string     `json:"habit_id"`
	Year    int        `json:"year"`
	Month   time.Month `json:"month"`
	Weeks   [][7]Day   `json:"weeks"`
}

// MonthView builds the calendar page of habit id for the given month.
// An unknown habit yields a page with no completed days.
func (l *Ledger) MonthView(id string, year int, month time.Month) Month {
	first := NewDate(year, month, 1)
	year, month = first.Year, first.Month
	last := NewDate(year, month+1, 0)
	today := l.Today()

	done := make(map[Date]struct{})
	for _, c := range l.Completions {
		if c.HabitID == id {
			done[c.Date] = struct{}{}
		}
	}

	// Step back to the Monday on or before the first of the month.
	offset := (int(first.Weekday()) + 6) % 7
	d := first.AddDays(-offset)

	m := Month{HabitID: id, Year: year, Month: month}
	for !last.Before(d) {
		var week [7]Day
		for i := range week {
			_, completed := done[d]
			week[i] = Day{
				Date:      d,
				InMonth:   d.Year == year && d.Month == month,
				Completed: completed,
				Today:     d == today,
			}
			d = d.AddDays(1)
		}
		m.Weeks = append(m.Weeks, week)
	}
	return m
}

// Next returns the year and month following m.
func (m Month) Next() (int, time.Month) {
	d := NewDate(m.Year, m.Month+1, 1)
	return d.Year, d.Month
}

// Prev returns the year and month preceding m.
func (m Month) Prev() (int, time.Month) {
	d := NewDate(m.Year, m.Month-1, 1)
	return d.Year, d.Month
}
