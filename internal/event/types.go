package event

import "time"

// Phase of a timer cycle
type Phase string

const (
	PhaseFocus Phase = "Focus"
	PhaseBreak Phase = "Break"
)

// TimerState is the snapshot the timer engine publishes after every command and tick.
type TimerState struct {
	InSession          bool      `json:"in_session"`
	Phase              Phase     `json:"phase"`
	TotalSeconds       int64     `json:"total_seconds"`
	RemainingSeconds   int64     `json:"remaining_seconds"`
	Running            bool      `json:"running"`
	SelectedTaskID     *int64    `json:"selected_task_id,omitempty"`
	FocusMinutes       int       `json:"focus_minutes"`
	BreakMinutes       int       `json:"break_minutes"`
	Cycles             int       `json:"cycles"`
	CycleIndex         int       `json:"cycle_index"`
	AccumulatedMinutes int       `json:"accumulated_minutes"`
	SessionStartedAt   time.Time `json:"session_started_at,omitempty"`
}

// Status collapses the snapshot into Idle, Running or Paused.
func (s TimerState) Status() string {
	switch {
	case !s.InSession:
		return "Idle"
	case s.Running:
		return "Running"
	default:
		return "Paused"
	}
}

type UpdateType string

const (
	UpdateStateChange       UpdateType = "state_change"
	UpdateTick              UpdateType = "tick"
	UpdatePhaseComplete     UpdateType = "phase_complete"
	UpdateSessionSaved      UpdateType = "session_saved"
	UpdateSessionSaveFailed UpdateType = "session_save_failed"
)

// Update is sent to engine subscribers.
type Update struct {
	Type    UpdateType
	State   TimerState
	Message string
	At      time.Time
}

type Notification struct {
	Title   string
	Message string
}
