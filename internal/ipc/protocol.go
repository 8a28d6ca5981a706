package ipc

import "focustimer/internal/event"

const DefaultSocketPath = "/tmp/focustimer.sock"

// Command represents a command sent over the socket
type Command struct {
	Name string      `json:"name"`
	Args interface{} `json:"args,omitempty"`
}

// Response represents a response sent back over the socket
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// --- Command Argument Structs ---

type SelectTaskArgs struct {
	TaskID int64 `json:"task_id"`
}

// MinutesArgs carries the value for set_focus_minutes and set_break_minutes.
type MinutesArgs struct {
	Minutes int `json:"minutes"`
}

type CyclesArgs struct {
	Cycles int `json:"cycles"`
}

// --- Command Names (Constants) ---

const (
	CmdPing            = "ping"
	CmdGetStatus       = "get_status"
	CmdSelectTask      = "select_task"
	CmdStart           = "start"
	CmdPause           = "pause"
	CmdStop            = "stop"
	CmdSkip            = "skip"
	CmdSetFocusMinutes = "set_focus_minutes"
	CmdSetBreakMinutes = "set_break_minutes"
	CmdSetCycles       = "set_cycles"
	CmdResetDefaults   = "reset_defaults"
)

// --- Status Response Data ---

type StatusData struct {
	Status    string           `json:"status"` // Idle, Running, Paused
	Remaining string           `json:"remaining"`
	TaskName  string           `json:"task_name,omitempty"`
	Timer     event.TimerState `json:"timer"`
}
