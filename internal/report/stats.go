package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"focustimer/internal/model"
)

type TimeRange string

const (
	RangeToday   TimeRange = "today"
	RangeWeek    TimeRange = "week"
	RangeMonth   TimeRange = "month"
	RangeYear    TimeRange = "year"
	RangeAllTime TimeRange = "all"
)

// UnknownTaskName labels sessions whose task no longer resolves.
const UnknownTaskName = "Unknown task"

var milestones = []int64{1000, 5000, 10000, 25000, 50000, 100000}

func ParseTimeRange(s string) (TimeRange, error) {
	switch r := TimeRange(strings.ToLower(s)); r {
	case RangeToday, RangeWeek, RangeMonth, RangeYear, RangeAllTime:
		return r, nil
	}
	return "", fmt.Errorf("invalid time range %q (use today, week, month, year or all)", s)
}

// Bounds returns [start, end] for the range in now's location. Weeks start on Monday.
func Bounds(now time.Time, r TimeRange) (time.Time, time.Time) {
	today := startOfDay(now)
	end := today.AddDate(0, 0, 1).Add(-time.Millisecond)

	switch r {
	case RangeWeek:
		offset := (int(today.Weekday()) + 6) % 7
		return today.AddDate(0, 0, -offset), end
	case RangeMonth:
		return time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location()), end
	case RangeYear:
		return time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, today.Location()), end
	case RangeAllTime:
		return time.UnixMilli(0), end
	default:
		return today, end
	}
}

type DailySummary struct {
	Date         time.Time
	SessionCount int
	TotalMinutes int
}

type TaskStatistics struct {
	TaskID       int64
	TaskName     string
	SessionCount int
	TotalMinutes int
	Percentage   float64
}

type Achievement struct {
	ConsecutiveDays int
	TotalMinutes    int64
	NextMilestone   int64
}

type Summary struct {
	SessionCount   int
	TotalMinutes   int
	AverageMinutes float64
	Daily          []DailySummary
	Tasks          []TaskStatistics
	Achievement    Achievement
}

// Build computes every statistic for the sessions of one range. allSessions
// feeds the achievement numbers, which are not range-bound.
func Build(sessions, allSessions []model.FocusSession, tasks []model.Task, now time.Time) Summary {
	taskNames := make(map[int64]string, len(tasks))
	for _, t := range tasks {
		taskNames[t.ID] = t.Name
	}

	count, total, avg := Basic(sessions)
	return Summary{
		SessionCount:   count,
		TotalMinutes:   total,
		AverageMinutes: avg,
		Daily:          DailySummaries(sessions),
		Tasks:          TaskStats(sessions, taskNames, total),
		Achievement:    Achievements(allSessions, now),
	}
}

func Basic(sessions []model.FocusSession) (count, totalMinutes int, averageMinutes float64) {
	for _, s := range sessions {
		totalMinutes += s.ActualMinutes
	}
	count = len(sessions)
	if count > 0 {
		averageMinutes = float64(totalMinutes) / float64(count)
	}
	return count, totalMinutes, averageMinutes
}

// DailySummaries groups sessions by the local date they started on, newest first.
func DailySummaries(sessions []model.FocusSession) []DailySummary {
	byDate := make(map[time.Time]*DailySummary)
	for _, s := range sessions {
		day := startOfDay(s.StartTime)
		d, ok := byDate[day]
		if !ok {
			d = &DailySummary{Date: day}
			byDate[day] = d
		}
		d.SessionCount++
		d.TotalMinutes += s.ActualMinutes
	}

	out := make([]DailySummary, 0, len(byDate))
	for _, d := range byDate {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// TaskStats sums minutes per task, most minutes first. Percentage is of totalMinutes, clamped to [0, 100].
func TaskStats(sessions []model.FocusSession, taskNames map[int64]string, totalMinutes int) []TaskStatistics {
	byTask := make(map[int64]*TaskStatistics)
	for _, s := range sessions {
		ts, ok := byTask[s.TaskID]
		if !ok {
			name, known := taskNames[s.TaskID]
			if !known {
				name = UnknownTaskName
			}
			ts = &TaskStatistics{TaskID: s.TaskID, TaskName: name}
			byTask[s.TaskID] = ts
		}
		ts.SessionCount++
		ts.TotalMinutes += s.ActualMinutes
	}

	out := make([]TaskStatistics, 0, len(byTask))
	for _, ts := range byTask {
		if totalMinutes > 0 {
			ts.Percentage = clamp(float64(ts.TotalMinutes)/float64(totalMinutes)*100, 0, 100)
		}
		out = append(out, *ts)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalMinutes != out[j].TotalMinutes {
			return out[i].TotalMinutes > out[j].TotalMinutes
		}
		return out[i].TaskID < out[j].TaskID
	})
	return out
}

// Achievements counts only completed sessions.
func Achievements(sessions []model.FocusSession, now time.Time) Achievement {
	var completed []model.FocusSession
	var total int64
	for _, s := range sessions {
		if s.Completed() {
			completed = append(completed, s)
			total += int64(s.ActualMinutes)
		}
	}

	next := milestones[len(milestones)-1]
	for _, m := range milestones {
		if m > total {
			next = m
			break
		}
	}

	return Achievement{
		ConsecutiveDays: ConsecutiveDays(completed, now),
		TotalMinutes:    total,
		NextMilestone:   next,
	}
}

// ConsecutiveDays counts the run of days with at least one session, ending
// today or, if nothing happened yet today, yesterday.
func ConsecutiveDays(sessions []model.FocusSession, now time.Time) int {
	days := make(map[time.Time]bool)
	for _, s := range sessions {
		days[startOfDay(s.StartTime.In(now.Location()))] = true
	}
	if len(days) == 0 {
		return 0
	}

	day := startOfDay(now)
	if !days[day] {
		day = day.AddDate(0, 0, -1)
	}
	streak := 0
	for days[day] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// FormatCountdown renders seconds as MM:SS, or H:MM:SS past an hour.
func FormatCountdown(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// FormatMinutes renders a minute total as "2h 5m" or "45m".
func FormatMinutes(minutes int) string {
	h := minutes / 60
	m := minutes % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
