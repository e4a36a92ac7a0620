package usecase

import (
	"fmt"
	"time"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// Statistics summarizes completed sessions.
type Statistics struct {
	Sessions      int
	Total         time.Duration
	Average       time.Duration
	Longest       time.Duration
	CurrentStreak int // consecutive days with a session, ending today or yesterday
}

// ComputeStatistics aggregates active durations of ended sessions and the day
// streak over all sessions. Days are calendar days in now's location.
func ComputeStatistics(sessions []*domain.Session, now time.Time) Statistics {
	var st Statistics
	for _, s := range sessions {
		if s.IsActive() {
			continue
		}
		d := s.TotalActiveDuration(now)
		st.Sessions++
		st.Total += d
		if d > st.Longest {
			st.Longest = d
		}
	}
	if st.Sessions > 0 {
		st.Average = st.Total / time.Duration(st.Sessions)
	}
	st.CurrentStreak = streak(sessions, now)
	return st
}

func streak(sessions []*domain.Session, now time.Time) int {
	days := make(map[time.Time]bool, len(sessions))
	for _, s := range sessions {
		days[dayOf(s.StartTime, now.Location())] = true
	}

	day := dayOf(now, now.Location())
	if !days[day] {
		day = day.AddDate(0, 0, -1)
	}
	n := 0
	for days[day] {
		n++
		day = day.AddDate(0, 0, -1)
	}
	return n
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// FormatDuration renders d as "2h 15m", "45m" or "< 1m".
func FormatDuration(d time.Duration) string {
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm", m)
	default:
		return "< 1m"
	}
}

// FormatClock renders d as "2:15:30", "45:30" or "0:05".
func FormatClock(d time.Duration) string {
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	case m > 0:
		return fmt.Sprintf("%d:%02d", m, s)
	default:
		return fmt.Sprintf("0:%02d", s)
	}
}
