package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focustimer/internal/model"
)

// Wednesday
var now = time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)

func session(taskID int64, start time.Time, minutes int) model.FocusSession {
	return model.FocusSession{
		TaskID:        taskID,
		StartTime:     start,
		EndTime:       start.Add(time.Duration(minutes) * time.Minute),
		FocusMinutes:  25,
		BreakMinutes:  5,
		Cycles:        1,
		ActualMinutes: minutes,
	}
}

func TestBounds(t *testing.T) {
	endOfToday := time.Date(2026, 3, 4, 23, 59, 59, int(999*time.Millisecond), time.UTC)

	tests := []struct {
		r     TimeRange
		start time.Time
	}{
		{RangeToday, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)},
		{RangeWeek, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		{RangeMonth, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{RangeYear, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(string(tt.r), func(t *testing.T) {
			start, end := Bounds(now, tt.r)
			assert.True(t, start.Equal(tt.start), "start %s", start)
			assert.True(t, end.Equal(endOfToday), "end %s", end)
		})
	}

	start, _ := Bounds(now, RangeAllTime)
	assert.Equal(t, int64(0), start.UnixMilli())

	// Sunday belongs to the week that started the previous Monday
	sunday := time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC)
	start, _ = Bounds(sunday, RangeWeek)
	assert.True(t, start.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)))
}

func TestParseTimeRange(t *testing.T) {
	r, err := ParseTimeRange("Week")
	require.NoError(t, err)
	assert.Equal(t, RangeWeek, r)

	_, err = ParseTimeRange("fortnight")
	assert.Error(t, err)
}

func TestDailySummaries(t *testing.T) {
	sessions := []model.FocusSession{
		session(1, now.Add(-26*time.Hour), 25),
		session(1, now.Add(-2*time.Hour), 25),
		session(2, now.Add(-1*time.Hour), 10),
	}

	daily := DailySummaries(sessions)
	require.Len(t, daily, 2)
	assert.True(t, daily[0].Date.Equal(time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 2, daily[0].SessionCount)
	assert.Equal(t, 35, daily[0].TotalMinutes)
	assert.Equal(t, 1, daily[1].SessionCount)
	assert.Equal(t, 25, daily[1].TotalMinutes)
}

func TestTaskStats(t *testing.T) {
	sessions := []model.FocusSession{
		session(1, now, 30),
		session(2, now, 60),
		session(1, now, 10),
		session(7, now, 0),
	}
	names := map[int64]string{1: "Reading", 2: "Writing"}

	stats := TaskStats(sessions, names, 100)
	require.Len(t, stats, 3)

	assert.Equal(t, "Writing", stats[0].TaskName)
	assert.Equal(t, 60, stats[0].TotalMinutes)
	assert.InDelta(t, 60.0, stats[0].Percentage, 0.001)

	assert.Equal(t, "Reading", stats[1].TaskName)
	assert.Equal(t, 2, stats[1].SessionCount)
	assert.Equal(t, 40, stats[1].TotalMinutes)

	assert.Equal(t, UnknownTaskName, stats[2].TaskName)
	assert.Zero(t, stats[2].Percentage)

	// Nothing focused means no percentages
	for _, s := range TaskStats(sessions, names, 0) {
		assert.Zero(t, s.Percentage)
	}
}

func TestConsecutiveDays(t *testing.T) {
	day := func(daysAgo int) model.FocusSession {
		return session(1, now.AddDate(0, 0, -daysAgo), 25)
	}

	assert.Equal(t, 0, ConsecutiveDays(nil, now))
	assert.Equal(t, 3, ConsecutiveDays([]model.FocusSession{day(0), day(1), day(2), day(4)}, now))
	assert.Equal(t, 2, ConsecutiveDays([]model.FocusSession{day(1), day(2)}, now), "a streak may end yesterday")
	assert.Equal(t, 0, ConsecutiveDays([]model.FocusSession{day(2), day(3)}, now))
	assert.Equal(t, 1, ConsecutiveDays([]model.FocusSession{day(0), day(0)}, now))
}

func TestAchievements(t *testing.T) {
	open := session(1, now, 500)
	open.EndTime = time.Time{}
	sessions := []model.FocusSession{
		session(1, now, 600),
		session(1, now.AddDate(0, 0, -1), 600),
		open,
	}

	a := Achievements(sessions, now)
	assert.Equal(t, int64(1200), a.TotalMinutes, "open sessions are not counted")
	assert.Equal(t, int64(5000), a.NextMilestone)
	assert.Equal(t, 2, a.ConsecutiveDays)

	big := []model.FocusSession{session(1, now, 200000)}
	assert.Equal(t, int64(100000), Achievements(big, now).NextMilestone)
}

func TestBuild(t *testing.T) {
	sessions := []model.FocusSession{session(1, now, 25), session(2, now, 15)}
	tasks := []model.Task{{ID: 1, Name: "Reading"}, {ID: 2, Name: "Writing"}}

	s := Build(sessions, sessions, tasks, now)
	assert.Equal(t, 2, s.SessionCount)
	assert.Equal(t, 40, s.TotalMinutes)
	assert.InDelta(t, 20.0, s.AverageMinutes, 0.001)
	assert.Len(t, s.Daily, 1)
	assert.Len(t, s.Tasks, 2)
	assert.Equal(t, 1, s.Achievement.ConsecutiveDays)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "25:00", FormatCountdown(1500))
	assert.Equal(t, "00:09", FormatCountdown(9))
	assert.Equal(t, "1:05:03", FormatCountdown(3903))
	assert.Equal(t, "00:00", FormatCountdown(-4))
	assert.Equal(t, "45m", FormatMinutes(45))
	assert.Equal(t, "2h 5m", FormatMinutes(125))
}
