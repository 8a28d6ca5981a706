package timer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"focustimer/internal/event"
	"focustimer/internal/model"
)

var (
	// ErrEngineStopped is returned for commands sent after Run has exited.
	ErrEngineStopped = errors.New("timer engine stopped")
	// ErrInvalidValue is returned for non-positive minutes or cycle counts.
	ErrInvalidValue = errors.New("value must be a positive integer")
)

const secondsPerMinute = 60

// TaskLookup is the part of the task store the engine reads.
type TaskLookup interface {
	TaskByID(ctx context.Context, id int64) (*model.Task, error)
}

// SessionRecorder is the part of the session store the engine writes.
type SessionRecorder interface {
	InsertSession(ctx context.Context, s model.FocusSession) (int64, error)
}

type Options struct {
	FocusMinutes   int
	BreakMinutes   int
	Cycles         int
	TickInterval   time.Duration
	PersistTimeout time.Duration
	Clock          Clock
}

// Engine runs focus/break cycles for the selected task and records one
// FocusSession per session. All state is owned by the Run goroutine; the
// exported methods send it a command and wait for the resulting snapshot.
type Engine struct {
	tasks    TaskLookup
	sessions SessionRecorder
	clock    Clock
	opts     Options

	cmdChan chan request
	done    chan struct{}

	// Owned by the Run goroutine
	state  event.TimerState
	run    sessionRun
	ticker Ticker

	subMu       sync.Mutex
	subscribers []chan event.Update
	closed      bool
}

// sessionRun is the bookkeeping of the active session. Zero when idle.
type sessionRun struct {
	startedAt          time.Time
	accumulatedMinutes int
	focusStartedAt     time.Time // Set only while a focus stretch is running

	// Settings in effect, refreshed at session start and every phase boundary
	focusMinutes int
	breakMinutes int
	cycles       int
}

type request struct {
	ctx   context.Context
	cmd   interface{}
	reply chan reply
}

type reply struct {
	state event.TimerState
	err   error
}

// --- Command Types ---
type selectTaskCmd struct{ taskID int64 }
type updateFocusMinutesCmd struct{ minutes int }
type updateBreakMinutesCmd struct{ minutes int }
type updateCyclesCmd struct{ cycles int }
type resetToDefaultsCmd struct{}
type startCmd struct{}
type pauseCmd struct{}
type stopCmd struct{}
type skipCmd struct{}
type stateCmd struct{}

func New(tasks TaskLookup, sessions SessionRecorder, opts Options) *Engine {
	if opts.FocusMinutes <= 0 {
		opts.FocusMinutes = 25
	}
	if opts.BreakMinutes <= 0 {
		opts.BreakMinutes = 5
	}
	if opts.Cycles <= 0 {
		opts.Cycles = 1
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}

	focusSeconds := int64(opts.FocusMinutes) * secondsPerMinute
	return &Engine{
		tasks:    tasks,
		sessions: sessions,
		clock:    opts.Clock,
		opts:     opts,
		cmdChan:  make(chan request),
		done:     make(chan struct{}),
		state: event.TimerState{
			Phase:            event.PhaseFocus,
			TotalSeconds:     focusSeconds,
			RemainingSeconds: focusSeconds,
			FocusMinutes:     opts.FocusMinutes,
			BreakMinutes:     opts.BreakMinutes,
			Cycles:           opts.Cycles,
			CycleIndex:       1,
		},
	}
}

// Run processes commands and ticks until ctx is cancelled. It must be called once.
func (e *Engine) Run(ctx context.Context) {
	defer e.closeSubscribers()
	defer close(e.done)
	defer log.Println("Timer engine loop stopped.")

	for {
		var tickChan <-chan time.Time
		if e.ticker != nil {
			tickChan = e.ticker.C()
		}

		select {
		case <-ctx.Done():
			e.stopTicking()
			return

		case req := <-e.cmdChan:
			state, err := e.handleCommand(req.ctx, req.cmd)
			req.reply <- reply{state: state, err: err}

		case <-tickChan:
			if ctx.Err() != nil {
				e.stopTicking()
				return
			}
			e.handleTick()
		}
	}
}

// Subscribe registers an observer. Updates are dropped for observers whose buffer is full.
func (e *Engine) Subscribe(buffer int) <-chan event.Update {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan event.Update, buffer)
	e.subMu.Lock()
	defer e.subMu.Unlock()
	if e.closed {
		close(ch)
		return ch
	}
	e.subscribers = append(e.subscribers, ch)
	return ch
}

// --- Public commands ---

func (e *Engine) SelectTask(ctx context.Context, taskID int64) (event.TimerState, error) {
	return e.do(ctx, selectTaskCmd{taskID: taskID})
}

func (e *Engine) UpdateFocusMinutes(ctx context.Context, minutes int) (event.TimerState, error) {
	return e.do(ctx, updateFocusMinutesCmd{minutes: minutes})
}

func (e *Engine) UpdateBreakMinutes(ctx context.Context, minutes int) (event.TimerState, error) {
	return e.do(ctx, updateBreakMinutesCmd{minutes: minutes})
}

func (e *Engine) UpdateCycles(ctx context.Context, cycles int) (event.TimerState, error) {
	return e.do(ctx, updateCyclesCmd{cycles: cycles})
}

func (e *Engine) ResetToDefaults(ctx context.Context) (event.TimerState, error) {
	return e.do(ctx, resetToDefaultsCmd{})
}

// Start begins a session, resumes a paused one, or pauses a running one.
func (e *Engine) Start(ctx context.Context) (event.TimerState, error) {
	return e.do(ctx, startCmd{})
}

func (e *Engine) Pause(ctx context.Context) (event.TimerState, error) {
	return e.do(ctx, pauseCmd{})
}

func (e *Engine) Stop(ctx context.Context) (event.TimerState, error) {
	return e.do(ctx, stopCmd{})
}

func (e *Engine) Skip(ctx context.Context) (event.TimerState, error) {
	return e.do(ctx, skipCmd{})
}

func (e *Engine) State(ctx context.Context) (event.TimerState, error) {
	return e.do(ctx, stateCmd{})
}

func (e *Engine) do(ctx context.Context, cmd interface{}) (event.TimerState, error) {
	req := request{ctx: ctx, cmd: cmd, reply: make(chan reply, 1)}
	select {
	case e.cmdChan <- req:
	case <-e.done:
		return event.TimerState{}, ErrEngineStopped
	case <-ctx.Done():
		return event.TimerState{}, ctx.Err()
	}

	// Once accepted, the loop always replies before it can exit.
	r := <-req.reply
	return r.state, r.err
}

// --- Loop internals ---

func (e *Engine) handleCommand(ctx context.Context, cmd interface{}) (event.TimerState, error) {
	switch c := cmd.(type) {
	case selectTaskCmd:
		task, ok := e.lookupTask(ctx, c.taskID)
		if ok {
			e.applyTask(task)
		}

	case resetToDefaultsCmd:
		if e.state.SelectedTaskID == nil {
			break
		}
		task, ok := e.lookupTask(ctx, *e.state.SelectedTaskID)
		if ok {
			e.applyTask(task)
		}

	case updateFocusMinutesCmd:
		if c.minutes <= 0 {
			return e.snapshot(), fmt.Errorf("focus minutes %d: %w", c.minutes, ErrInvalidValue)
		}
		e.state.FocusMinutes = c.minutes
		if !e.state.Running && e.state.Phase == event.PhaseFocus {
			e.setPhaseDuration(c.minutes)
		}
		e.publish(event.UpdateStateChange, "")

	case updateBreakMinutesCmd:
		if c.minutes <= 0 {
			return e.snapshot(), fmt.Errorf("break minutes %d: %w", c.minutes, ErrInvalidValue)
		}
		e.state.BreakMinutes = c.minutes
		if !e.state.Running && e.state.Phase == event.PhaseBreak {
			e.setPhaseDuration(c.minutes)
		}
		e.publish(event.UpdateStateChange, "")

	case updateCyclesCmd:
		if c.cycles <= 0 {
			return e.snapshot(), fmt.Errorf("cycles %d: %w", c.cycles, ErrInvalidValue)
		}
		e.state.Cycles = c.cycles
		e.publish(event.UpdateStateChange, "")

	case startCmd:
		if e.state.Running {
			e.pause()
			break
		}
		e.start()

	case pauseCmd:
		e.pause()

	case stopCmd:
		e.stop(e.clock.Now())

	case skipCmd:
		e.skip()

	case stateCmd:

	default:
		log.Printf("Warning: Unknown command received in timer engine: %T", c)
	}
	return e.snapshot(), nil
}

func (e *Engine) lookupTask(ctx context.Context, id int64) (*model.Task, bool) {
	task, err := e.tasks.TaskByID(ctx, id)
	if err != nil {
		log.Printf("Timer: failed to load task %d: %v", id, err)
		return nil, false
	}
	if task == nil {
		log.Printf("Timer: task %d not found, ignoring.", id)
		return nil, false
	}
	return task, true
}

// applyTask loads a task's defaults and returns the engine to idle. An
// active session is discarded without being recorded.
func (e *Engine) applyTask(task *model.Task) {
	if e.state.InSession {
		log.Printf("Timer: discarding active session (%d min accumulated) for task change", e.run.accumulatedMinutes)
	}
	e.stopTicking()

	id := task.ID
	e.state.SelectedTaskID = &id
	e.state.FocusMinutes = task.DefaultFocusMinutes
	e.state.BreakMinutes = task.DefaultBreakMinutes
	e.state.Cycles = task.DefaultCycles
	e.resetToIdle()

	log.Printf("Timer: selected task %d (%s): %d/%d min x%d",
		task.ID, task.Name, task.DefaultFocusMinutes, task.DefaultBreakMinutes, task.DefaultCycles)
	e.publish(event.UpdateStateChange, "")
}

func (e *Engine) start() {
	now := e.clock.Now()

	if !e.state.InSession {
		e.state.InSession = true
		e.state.Phase = event.PhaseFocus
		e.state.CycleIndex = 1
		e.setPhaseDuration(e.state.FocusMinutes)
		e.captureSettings()
	}

	if e.state.RemainingSeconds <= 0 {
		e.setPhaseDuration(e.currentPhaseMinutes())
	}

	if e.run.startedAt.IsZero() {
		e.run.startedAt = now
		log.Printf("Timer: session started (%d/%d min x%d)", e.state.FocusMinutes, e.state.BreakMinutes, e.state.Cycles)
	}
	if e.state.Phase == event.PhaseFocus && e.run.focusStartedAt.IsZero() {
		e.run.focusStartedAt = now
	}

	e.state.Running = true
	e.startTicking()
	e.publish(event.UpdateStateChange, "")
}

func (e *Engine) pause() {
	if !e.state.Running {
		return
	}
	e.flushFocus(e.clock.Now())
	e.state.Running = false
	e.stopTicking()
	e.publish(event.UpdateStateChange, "")
}

// stop records the session, if there is one for a selected task, and resets to idle.
func (e *Engine) stop(now time.Time) {
	e.stopTicking()
	e.flushFocus(now)

	if !e.run.startedAt.IsZero() && e.state.SelectedTaskID != nil {
		e.persist(model.FocusSession{
			TaskID:        *e.state.SelectedTaskID,
			StartTime:     e.run.startedAt,
			EndTime:       now,
			FocusMinutes:  e.run.focusMinutes,
			BreakMinutes:  e.run.breakMinutes,
			Cycles:        e.run.cycles,
			ActualMinutes: e.run.accumulatedMinutes,
		})
	} else if !e.run.startedAt.IsZero() {
		log.Println("Timer: no task selected, session not recorded.")
	}

	e.resetToIdle()
	e.publish(event.UpdateStateChange, "")
}

func (e *Engine) skip() {
	if !e.state.InSession {
		return
	}
	now := e.clock.Now()
	e.flushFocus(now)
	wasRunning := e.state.Running
	e.stopTicking()
	e.state.Running = false

	e.advance(now, wasRunning)
	if e.state.InSession {
		e.publish(event.UpdateStateChange, "")
	}
}

// advance moves to the next phase. resume decides whether the next phase
// starts running; stopping after the last break publishes on its own.
func (e *Engine) advance(now time.Time, resume bool) {
	if e.state.Phase == event.PhaseFocus {
		e.state.Phase = event.PhaseBreak
		e.setPhaseDuration(e.state.BreakMinutes)
		e.run.focusStartedAt = time.Time{}
		e.captureSettings()
		if resume {
			e.resume()
		}
		return
	}

	// Cycles may have been lowered below the current index; that is the last cycle too.
	if e.state.CycleIndex < e.state.Cycles {
		e.state.CycleIndex++
		e.state.Phase = event.PhaseFocus
		e.setPhaseDuration(e.state.FocusMinutes)
		e.captureSettings()
		if resume {
			e.run.focusStartedAt = now
			e.resume()
		}
		return
	}

	e.stop(now)
}

func (e *Engine) resume() {
	e.state.Running = true
	e.startTicking()
}

func (e *Engine) handleTick() {
	if !e.state.Running {
		return
	}

	if e.state.RemainingSeconds <= 1 {
		now := e.clock.Now()
		e.flushFocus(now)
		e.state.RemainingSeconds = 0
		e.state.Running = false
		e.stopTicking()

		finished := e.state.Phase
		e.publish(event.UpdatePhaseComplete, fmt.Sprintf("%s phase of cycle %d/%d complete", finished, e.state.CycleIndex, e.state.Cycles))

		// Natural completion always carries on into the next phase.
		e.advance(now, true)
		if e.state.InSession {
			e.publish(event.UpdateStateChange, "")
		}
		return
	}

	e.state.RemainingSeconds--
	e.publish(event.UpdateTick, "")
}

// flushFocus adds the whole minutes of the running focus stretch to the
// session total. Sub-minute remainders are dropped.
func (e *Engine) flushFocus(now time.Time) {
	if e.run.focusStartedAt.IsZero() || e.state.Phase != event.PhaseFocus {
		return
	}
	elapsed := now.Sub(e.run.focusStartedAt)
	if elapsed > 0 {
		e.run.accumulatedMinutes += int(elapsed / time.Minute)
	}
	e.run.focusStartedAt = time.Time{}
}

func (e *Engine) persist(s model.FocusSession) {
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.PersistTimeout)
	defer cancel()

	id, err := e.sessions.InsertSession(ctx, s)
	if err != nil {
		log.Printf("Timer: failed to save session for task %d: %v", s.TaskID, err)
		e.publish(event.UpdateSessionSaveFailed, err.Error())
		return
	}
	log.Printf("Timer: session %d saved for task %d (%d min focused)", id, s.TaskID, s.ActualMinutes)
	e.publish(event.UpdateSessionSaved, fmt.Sprintf("Session saved: %d min focused", s.ActualMinutes))
}

func (e *Engine) resetToIdle() {
	e.state.InSession = false
	e.state.Running = false
	e.state.Phase = event.PhaseFocus
	e.state.CycleIndex = 1
	e.setPhaseDuration(e.state.FocusMinutes)
	e.run = sessionRun{}
}

func (e *Engine) setPhaseDuration(minutes int) {
	total := int64(minutes) * secondsPerMinute
	e.state.TotalSeconds = total
	e.state.RemainingSeconds = total
}

func (e *Engine) currentPhaseMinutes() int {
	if e.state.Phase == event.PhaseBreak {
		return e.state.BreakMinutes
	}
	return e.state.FocusMinutes
}

func (e *Engine) captureSettings() {
	e.run.focusMinutes = e.state.FocusMinutes
	e.run.breakMinutes = e.state.BreakMinutes
	e.run.cycles = e.state.Cycles
}

// startTicking is a no-op while a ticker is already active.
func (e *Engine) startTicking() {
	if e.ticker != nil {
		return
	}
	e.ticker = e.clock.NewTicker(e.opts.TickInterval)
}

func (e *Engine) stopTicking() {
	if e.ticker == nil {
		return
	}
	e.ticker.Stop()
	e.ticker = nil
}

func (e *Engine) snapshot() event.TimerState {
	s := e.state
	s.AccumulatedMinutes = e.run.accumulatedMinutes
	s.SessionStartedAt = e.run.startedAt
	return s
}

func (e *Engine) publish(t event.UpdateType, message string) {
	update := event.Update{Type: t, State: e.snapshot(), Message: message, At: e.clock.Now()}
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subscribers {
		select {
		case ch <- update:
		default:
		}
	}
}

func (e *Engine) closeSubscribers() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.closed = true
	for _, ch := range e.subscribers {
		close(ch)
	}
	e.subscribers = nil
}
