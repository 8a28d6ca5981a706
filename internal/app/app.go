package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"

	"focustimer/internal/config"
	"focustimer/internal/event"
	"focustimer/internal/ipc"
	"focustimer/internal/report"
	"focustimer/internal/storage"
	"focustimer/internal/timer"

	sqlitestore "focustimer/internal/storage/sqlite"
)

type App struct {
	cfg     *config.Config
	storage storage.Storage
	engine  *timer.Engine

	socketPath string
	listener   *net.UnixListener

	wg     conc.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewApp(cfg *config.Config) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:        cfg,
		socketPath: cfg.SocketPath,
		ctx:        ctx,
		cancel:     cancel,
	}
	if a.socketPath == "" {
		a.socketPath = ipc.DefaultSocketPath
	}

	a.storage = sqlitestore.NewSQLiteStore(cfg.DatabasePath)
	if err := a.storage.Init(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a.engine = timer.New(a.storage, a.storage, timer.Options{
		FocusMinutes:   cfg.Timer.FocusMinutes,
		BreakMinutes:   cfg.Timer.BreakMinutes,
		Cycles:         cfg.Timer.Cycles,
		TickInterval:   cfg.Timer.TickInterval(),
		PersistTimeout: cfg.Timer.PersistTimeout(),
	})

	return a, nil
}

// setupSocket checks for an existing socket and creates the listener
func (a *App) setupSocket() error {
	if _, err := os.Stat(a.socketPath); err == nil {
		conn, err := net.DialTimeout("unix", a.socketPath, 1*time.Second)
		if err == nil {
			conn.Close()
			return fmt.Errorf("socket %s already active, another instance might be running", a.socketPath)
		}
		log.Printf("Stale socket file found at %s, removing.", a.socketPath)
		if err := os.Remove(a.socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket file %s: %w", a.socketPath, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("error checking socket file %s: %w", a.socketPath, err)
	}

	addr, err := net.ResolveUnixAddr("unix", a.socketPath)
	if err != nil {
		return fmt.Errorf("failed to resolve unix addr %s: %w", a.socketPath, err)
	}

	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", a.socketPath, err)
	}

	a.listener = listener
	log.Printf("Listening for commands on %s", a.socketPath)
	return nil
}

// listenForCommands accepts connections and handles each in its own goroutine
func (a *App) listenForCommands() {
	defer log.Println("Socket command listener stopped.")

	for {
		conn, err := a.listener.AcceptUnix()
		if err != nil {
			select {
			case <-a.ctx.Done():
				return
			default:
				if errors.Is(err, net.ErrClosed) {
					return
				}
				log.Printf("Failed to accept connection: %v", err)
				time.Sleep(100 * time.Millisecond)
			}
			continue
		}
		a.wg.Go(func() { a.handleConnection(conn) })
	}
}

// handleConnection reads one command, processes it, and sends the response
func (a *App) handleConnection(conn *net.UnixConn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var cmd ipc.Command
	if err := decoder.Decode(&cmd); err != nil {
		if err != io.EOF {
			log.Printf("Failed to decode command: %v", err)
		}
		_ = encoder.Encode(ipc.Response{Success: false, Message: "Failed to decode command: " + err.Error()})
		return
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	log.Printf("Received command: %s", cmd.Name)

	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()
	response := a.processCommand(ctx, cmd)

	if err := encoder.Encode(response); err != nil {
		log.Printf("Failed to send response: %v", err)
	}
}

// processCommand routes the command to the timer engine
func (a *App) processCommand(ctx context.Context, cmd ipc.Command) ipc.Response {
	var (
		state event.TimerState
		err   error
		msg   string
	)

	switch cmd.Name {
	case ipc.CmdPing:
		return ipc.Response{Success: true, Message: "pong"}

	case ipc.CmdGetStatus:
		state, err = a.engine.State(ctx)
		msg = "Timer status"

	case ipc.CmdSelectTask:
		var args ipc.SelectTaskArgs
		if err := mapToStruct(cmd.Args, &args); err != nil {
			return ipc.Response{Success: false, Message: fmt.Sprintf("Invalid args for %s: %v", cmd.Name, err)}
		}
		state, err = a.engine.SelectTask(ctx, args.TaskID)
		if err == nil && (state.SelectedTaskID == nil || *state.SelectedTaskID != args.TaskID) {
			return ipc.Response{Success: false, Message: fmt.Sprintf("Task %d not found", args.TaskID), Data: a.status(ctx, state)}
		}
		msg = fmt.Sprintf("Task %d selected", args.TaskID)

	case ipc.CmdStart:
		state, err = a.engine.Start(ctx)
		msg = "Timer running"
		if !state.Running {
			msg = "Timer paused"
		}

	case ipc.CmdPause:
		state, err = a.engine.Pause(ctx)
		msg = "Timer paused"

	case ipc.CmdStop:
		state, err = a.engine.Stop(ctx)
		msg = "Timer stopped"

	case ipc.CmdSkip:
		state, err = a.engine.Skip(ctx)
		msg = "Skipped to next phase"

	case ipc.CmdSetFocusMinutes, ipc.CmdSetBreakMinutes:
		var args ipc.MinutesArgs
		if err := mapToStruct(cmd.Args, &args); err != nil {
			return ipc.Response{Success: false, Message: fmt.Sprintf("Invalid args for %s: %v", cmd.Name, err)}
		}
		if cmd.Name == ipc.CmdSetFocusMinutes {
			state, err = a.engine.UpdateFocusMinutes(ctx, args.Minutes)
			msg = fmt.Sprintf("Focus minutes set to %d", args.Minutes)
		} else {
			state, err = a.engine.UpdateBreakMinutes(ctx, args.Minutes)
			msg = fmt.Sprintf("Break minutes set to %d", args.Minutes)
		}

	case ipc.CmdSetCycles:
		var args ipc.CyclesArgs
		if err := mapToStruct(cmd.Args, &args); err != nil {
			return ipc.Response{Success: false, Message: fmt.Sprintf("Invalid args for %s: %v", cmd.Name, err)}
		}
		state, err = a.engine.UpdateCycles(ctx, args.Cycles)
		msg = fmt.Sprintf("Cycles set to %d", args.Cycles)

	case ipc.CmdResetDefaults:
		state, err = a.engine.ResetToDefaults(ctx)
		msg = "Settings reset to task defaults"

	default:
		return ipc.Response{Success: false, Message: fmt.Sprintf("Unknown command: %s", cmd.Name)}
	}

	if err != nil {
		return ipc.Response{Success: false, Message: fmt.Sprintf("%s failed: %v", cmd.Name, err)}
	}
	return ipc.Response{Success: true, Message: msg, Data: a.status(ctx, state)}
}

func (a *App) status(ctx context.Context, state event.TimerState) ipc.StatusData {
	data := ipc.StatusData{
		Status:    state.Status(),
		Remaining: report.FormatCountdown(state.RemainingSeconds),
		Timer:     state,
	}
	if state.SelectedTaskID != nil {
		task, err := a.storage.TaskByID(ctx, *state.SelectedTaskID)
		if err != nil {
			log.Printf("Warning: failed to look up task %d for status: %v", *state.SelectedTaskID, err)
		} else if task != nil {
			data.TaskName = task.Name
		}
	}
	return data
}

// Helper function to convert map[string]interface{} (from json unmarshal) to struct
func mapToStruct(input interface{}, output interface{}) error {
	if input == nil {
		return nil
	}
	jsonBytes, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to marshal args map: %w", err)
	}
	if err := json.Unmarshal(jsonBytes, output); err != nil {
		return fmt.Errorf("failed to unmarshal args into struct: %w", err)
	}
	return nil
}

func (a *App) Run() error {
	log.Println("Starting focustimer daemon...")
	log.Printf("Config: %+v", a.cfg)

	if err := a.setupSocket(); err != nil {
		a.cancel()
		if cerr := a.cleanup(); cerr != nil {
			log.Printf("Cleanup error: %v", cerr)
		}
		return err
	}

	a.handleSignals()

	updates := a.engine.Subscribe(100)
	a.wg.Go(func() { a.engine.Run(a.ctx) })
	a.wg.Go(func() { a.mainLoop(updates) })
	a.wg.Go(a.listenForCommands)

	if a.cfg.Timer.AutoSelectFirstTask {
		a.selectFirstTask()
	}

	log.Println("focustimer daemon running. Send commands via focustimer-cli or socket.")
	<-a.ctx.Done()

	log.Println("Shutdown signal received, waiting for components...")

	// Close the listener before waiting so AcceptUnix returns
	if a.listener != nil {
		log.Println("Closing command socket listener...")
		if err := a.listener.Close(); err != nil {
			log.Printf("Error closing socket listener: %v", err)
		}
	}

	waitChan := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(waitChan)
	}()

	select {
	case <-waitChan:
		log.Println("All application goroutines finished.")
	case <-time.After(5 * time.Second):
		log.Println("Warning: Timeout waiting for application goroutines to stop.")
	}

	if err := a.cleanup(); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	log.Println("focustimer daemon finished.")
	return nil
}

// Shutdown records any active session and stops the daemon.
func (a *App) Shutdown() {
	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()

	state, err := a.engine.State(ctx)
	if err == nil && state.InSession {
		log.Println("Stopping active session before shutdown.")
		if _, err := a.engine.Stop(ctx); err != nil {
			log.Printf("Warning: failed to stop active session: %v", err)
		}
	}
	a.cancel()
}

// selectFirstTask picks the first task when none is selected yet.
func (a *App) selectFirstTask() {
	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()

	state, err := a.engine.State(ctx)
	if err != nil || state.SelectedTaskID != nil {
		return
	}
	tasks, err := a.storage.ListTasks(ctx)
	if err != nil {
		log.Printf("Warning: failed to list tasks: %v", err)
		return
	}
	if len(tasks) == 0 {
		log.Println("No tasks yet. Create one with: focustimer-cli task add")
		return
	}
	if _, err := a.engine.SelectTask(ctx, tasks[0].ID); err != nil {
		log.Printf("Warning: failed to select task %d: %v", tasks[0].ID, err)
	}
}

// mainLoop logs engine updates until the engine closes the channel
func (a *App) mainLoop(updates <-chan event.Update) {
	defer log.Println("Main application loop stopped.")

	for u := range updates {
		switch u.Type {
		case event.UpdateTick:
			// Too frequent to log
		case event.UpdatePhaseComplete:
			a.notify(event.Notification{Title: "Focus timer", Message: u.Message})
		case event.UpdateSessionSaved, event.UpdateSessionSaveFailed:
			a.notify(event.Notification{Title: "Session", Message: u.Message})
		case event.UpdateStateChange:
			log.Printf("Timer: %s %s cycle %d/%d, remaining %s",
				u.State.Status(), u.State.Phase, u.State.CycleIndex, u.State.Cycles,
				report.FormatCountdown(u.State.RemainingSeconds))
		default:
			log.Printf("Unknown update type from timer engine: %s", u.Type)
		}
	}
}

// notify only logs; desktop delivery is left to whatever tails the log.
func (a *App) notify(n event.Notification) {
	log.Printf("Notification: [%s] %s", n.Title, n.Message)
}

func (a *App) handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Printf("Received signal: %v. Initiating shutdown...", sig)
			a.Shutdown()
		case <-a.ctx.Done():
		}
		signal.Stop(sigChan)
	}()
}

func (a *App) cleanup() error {
	log.Println("Running cleanup...")
	var err error

	if a.storage != nil {
		err = multierr.Append(err, a.storage.Close())
	}

	if _, statErr := os.Stat(a.socketPath); statErr == nil && a.listener != nil {
		log.Printf("Removing socket file: %s", a.socketPath)
		if rmErr := os.Remove(a.socketPath); rmErr != nil && !os.IsNotExist(rmErr) {
			err = multierr.Append(err, fmt.Errorf("remove socket file %s: %w", a.socketPath, rmErr))
		}
	}

	log.Println("Cleanup finished.")
	return err
}
