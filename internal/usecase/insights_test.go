package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

func endedSession(start time.Time, active time.Duration) *domain.Session {
	end := start.Add(active)
	return &domain.Session{StartTime: start, EndTime: &end}
}

func TestComputeStatistics(t *testing.T) {
	now := time.Date(2026, 3, 5, 18, 0, 0, 0, time.UTC)
	day := func(back int, h int) time.Time {
		return time.Date(2026, 3, 5-back, h, 0, 0, 0, time.UTC)
	}

	sessions := []*domain.Session{
		endedSession(day(0, 9), 30*time.Minute),
		endedSession(day(1, 9), 90*time.Minute),
		endedSession(day(2, 9), 60*time.Minute),
		endedSession(day(4, 9), 20*time.Minute), // gap on day 3 ends the streak
		{StartTime: day(0, 17)},                 // active, not counted in totals
	}

	st := ComputeStatistics(sessions, now)
	assert.Equal(t, 4, st.Sessions)
	assert.Equal(t, 200*time.Minute, st.Total)
	assert.Equal(t, 50*time.Minute, st.Average)
	assert.Equal(t, 90*time.Minute, st.Longest)
	assert.Equal(t, 3, st.CurrentStreak)
}

func TestComputeStatistics_StreakFromYesterday(t *testing.T) {
	now := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	sessions := []*domain.Session{
		endedSession(time.Date(2026, 3, 4, 22, 0, 0, 0, time.UTC), time.Hour),
		endedSession(time.Date(2026, 3, 3, 22, 0, 0, 0, time.UTC), time.Hour),
	}
	assert.Equal(t, 2, ComputeStatistics(sessions, now).CurrentStreak)

	old := []*domain.Session{endedSession(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), time.Hour)}
	assert.Zero(t, ComputeStatistics(old, now).CurrentStreak)
	assert.Equal(t, Statistics{}, ComputeStatistics(nil, now))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{2*time.Hour + 15*time.Minute, "2h 15m"},
		{time.Hour, "1h 0m"},
		{45 * time.Minute, "45m"},
		{59 * time.Second, "< 1m"},
		{0, "< 1m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in))
	}
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "2:15:30", FormatClock(2*time.Hour+15*time.Minute+30*time.Second))
	assert.Equal(t, "45:30", FormatClock(45*time.Minute+30*time.Second))
	assert.Equal(t, "0:05", FormatClock(5*time.Second))
}
