package domain

import (
	"fmt"
	"time"
)

// Schedule is a weekly window during which a profile starts on its own.
type Schedule struct {
	Days  []time.Weekday `json:"days"`
	Start string         `json:"start"` // "HH:MM"
	End   string         `json:"end"`   // "HH:MM"
}

// Validate checks the window bounds.
func (s *Schedule) Validate() error {
	if len(s.Days) == 0 {
		return fmt.Errorf("schedule needs at least one day")
	}
	start, err := parseClock(s.Start)
	if err != nil {
		return fmt.Errorf("schedule start: %w", err)
	}
	end, err := parseClock(s.End)
	if err != nil {
		return fmt.Errorf("schedule end: %w", err)
	}
	if start == end {
		return fmt.Errorf("schedule start and end are equal")
	}
	return nil
}

// Window returns the occurrence of the window containing now, if any.
// Windows with End before Start run past midnight.
func (s *Schedule) Window(now time.Time) (start, end time.Time, ok bool) {
	from, err := parseClock(s.Start)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	to, err := parseClock(s.End)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}

	// Check the window that began today, then the one that began yesterday.
	for _, back := range []int{0, 1} {
		day := now.AddDate(0, 0, -back)
		if !s.onDay(day.Weekday()) {
			continue
		}
		midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, now.Location())
		ws := midnight.Add(from)
		we := midnight.Add(to)
		if to <= from {
			we = we.AddDate(0, 0, 1)
		}
		if !now.Before(ws) && now.Before(we) {
			return ws, we, true
		}
	}
	return time.Time{}, time.Time{}, false
}

func (s *Schedule) onDay(d time.Weekday) bool {
	for _, day := range s.Days {
		if day == d {
			return true
		}
	}
	return false
}

func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", v)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
