package model

import "time"

// Task is something the user focuses on, with the timer settings it starts from.
type Task struct {
	ID                  int64  `db:"id" json:"id"`
	Name                string `db:"name" json:"name"`
	DefaultFocusMinutes int    `db:"default_focus_minutes" json:"default_focus_minutes"`
	DefaultBreakMinutes int    `db:"default_break_minutes" json:"default_break_minutes"`
	DefaultCycles       int    `db:"default_cycles" json:"default_cycles"`
}

// FocusSession is the record written once a session is stopped or finishes its last cycle.
type FocusSession struct {
	ID            int64     `db:"id" json:"id"`
	TaskID        int64     `db:"task_id" json:"task_id"`
	StartTime     time.Time `db:"start_time" json:"start_time"`
	EndTime       time.Time `db:"end_time" json:"end_time"` // Zero if never closed
	FocusMinutes  int       `db:"focus_minutes" json:"focus_minutes"`
	BreakMinutes  int       `db:"break_minutes" json:"break_minutes"`
	Cycles        int       `db:"cycles" json:"cycles"`
	ActualMinutes int       `db:"actual_minutes" json:"actual_minutes"` // Whole minutes spent running in Focus
}

// Completed reports whether the session has an end time.
func (s FocusSession) Completed() bool {
	return !s.EndTime.IsZero()
}
