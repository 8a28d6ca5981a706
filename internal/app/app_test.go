package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focustimer/internal/config"
	"focustimer/internal/ipc"
	"focustimer/internal/model"
	"focustimer/internal/storage"

	sqlitestore "focustimer/internal/storage/sqlite"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		DatabasePath: filepath.Join(dir, "focustimer.db"),
		SettingsPath: filepath.Join(dir, "settings.yaml"),
		SocketPath:   filepath.Join(dir, "ft.sock"),
		Timer: config.TimerConfig{
			FocusMinutes:          25,
			BreakMinutes:          5,
			Cycles:                1,
			TickIntervalMs:        1000,
			AutoSelectFirstTask:   true,
			PersistTimeoutSeconds: 5,
		},
	}
	a, err := NewApp(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		a.cancel()
		a.storage.Close()
	})
	return a
}

// startEngine runs the engine loop without the socket server.
func startEngine(t *testing.T, a *App) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		a.engine.Run(a.ctx)
		close(done)
	}()
	t.Cleanup(func() {
		a.cancel()
		<-done
	})
}

func addTask(t *testing.T, a *App, name string, focus, brk, cycles int) int64 {
	t.Helper()
	id, err := a.storage.InsertTask(context.Background(), model.Task{
		Name: name, DefaultFocusMinutes: focus, DefaultBreakMinutes: brk, DefaultCycles: cycles,
	})
	require.NoError(t, err)
	return id
}

func newTestStoreAt(t *testing.T, path string) storage.Storage {
	t.Helper()
	store := sqlitestore.NewSQLiteStore(path)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func statusOf(t *testing.T, resp ipc.Response) ipc.StatusData {
	t.Helper()
	data, ok := resp.Data.(ipc.StatusData)
	require.True(t, ok, "response data is %T", resp.Data)
	return data
}

func TestProcessCommandPingAndUnknown(t *testing.T) {
	a := newTestApp(t)
	startEngine(t, a)
	ctx := context.Background()

	resp := a.processCommand(ctx, ipc.Command{Name: ipc.CmdPing})
	assert.True(t, resp.Success)
	assert.Equal(t, "pong", resp.Message)

	resp = a.processCommand(ctx, ipc.Command{Name: "self_destruct"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "Unknown command")
}

func TestProcessCommandSelectTask(t *testing.T) {
	a := newTestApp(t)
	startEngine(t, a)
	ctx := context.Background()
	id := addTask(t, a, "Reading", 50, 10, 3)

	// Args arrive as a generic map after JSON decoding
	resp := a.processCommand(ctx, ipc.Command{Name: ipc.CmdSelectTask, Args: map[string]interface{}{"task_id": float64(id)}})
	require.True(t, resp.Success, resp.Message)

	status := statusOf(t, resp)
	assert.Equal(t, "Reading", status.TaskName)
	assert.Equal(t, "Idle", status.Status)
	assert.Equal(t, "50:00", status.Remaining)
	assert.Equal(t, 10, status.Timer.BreakMinutes)
	assert.Equal(t, 3, status.Timer.Cycles)

	resp = a.processCommand(ctx, ipc.Command{Name: ipc.CmdSelectTask, Args: ipc.SelectTaskArgs{TaskID: 999}})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "not found")
	assert.Equal(t, "Reading", statusOf(t, resp).TaskName, "selection is unchanged")

	resp = a.processCommand(ctx, ipc.Command{Name: ipc.CmdSelectTask, Args: "nonsense"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "Invalid args")
}

func TestProcessCommandSettings(t *testing.T) {
	a := newTestApp(t)
	startEngine(t, a)
	ctx := context.Background()
	id := addTask(t, a, "Writing", 30, 5, 2)
	require.True(t, a.processCommand(ctx, ipc.Command{Name: ipc.CmdSelectTask, Args: ipc.SelectTaskArgs{TaskID: id}}).Success)

	resp := a.processCommand(ctx, ipc.Command{Name: ipc.CmdSetFocusMinutes, Args: ipc.MinutesArgs{Minutes: 45}})
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, "45:00", statusOf(t, resp).Remaining)

	resp = a.processCommand(ctx, ipc.Command{Name: ipc.CmdSetBreakMinutes, Args: ipc.MinutesArgs{Minutes: 15}})
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, 15, statusOf(t, resp).Timer.BreakMinutes)

	resp = a.processCommand(ctx, ipc.Command{Name: ipc.CmdSetCycles, Args: ipc.CyclesArgs{Cycles: 4}})
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, 4, statusOf(t, resp).Timer.Cycles)

	resp = a.processCommand(ctx, ipc.Command{Name: ipc.CmdSetFocusMinutes, Args: ipc.MinutesArgs{Minutes: 0}})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "positive")

	resp = a.processCommand(ctx, ipc.Command{Name: ipc.CmdResetDefaults})
	require.True(t, resp.Success, resp.Message)
	status := statusOf(t, resp)
	assert.Equal(t, 30, status.Timer.FocusMinutes)
	assert.Equal(t, 5, status.Timer.BreakMinutes)
	assert.Equal(t, 2, status.Timer.Cycles)
}

func TestProcessCommandSessionLifecycle(t *testing.T) {
	a := newTestApp(t)
	startEngine(t, a)
	ctx := context.Background()
	id := addTask(t, a, "Coding", 25, 5, 1)
	require.True(t, a.processCommand(ctx, ipc.Command{Name: ipc.CmdSelectTask, Args: ipc.SelectTaskArgs{TaskID: id}}).Success)

	resp := a.processCommand(ctx, ipc.Command{Name: ipc.CmdStart})
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, "Timer running", resp.Message)
	assert.Equal(t, "Running", statusOf(t, resp).Status)

	resp = a.processCommand(ctx, ipc.Command{Name: ipc.CmdPause})
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, "Paused", statusOf(t, resp).Status)

	resp = a.processCommand(ctx, ipc.Command{Name: ipc.CmdSkip})
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, "Break", string(statusOf(t, resp).Timer.Phase))

	resp = a.processCommand(ctx, ipc.Command{Name: ipc.CmdStop})
	require.True(t, resp.Success, resp.Message)
	assert.Equal(t, "Idle", statusOf(t, resp).Status)

	sessions, err := a.storage.SessionsByTask(ctx, id)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 0, sessions[0].ActualMinutes)
	assert.True(t, sessions[0].Completed())
}

func TestSelectFirstTask(t *testing.T) {
	a := newTestApp(t)
	startEngine(t, a)
	ctx := context.Background()

	// No tasks: nothing selected
	a.selectFirstTask()
	state, err := a.engine.State(ctx)
	require.NoError(t, err)
	assert.Nil(t, state.SelectedTaskID)

	first := addTask(t, a, "First", 20, 5, 1)
	addTask(t, a, "Second", 40, 10, 2)

	a.selectFirstTask()
	state, err = a.engine.State(ctx)
	require.NoError(t, err)
	require.NotNil(t, state.SelectedTaskID)
	assert.Equal(t, first, *state.SelectedTaskID)
	assert.Equal(t, 20, state.FocusMinutes)
}

func TestRunServesSocket(t *testing.T) {
	a := newTestApp(t)
	addTask(t, a, "Socket task", 25, 5, 1)

	runErr := make(chan error, 1)
	go func() { runErr <- a.Run() }()

	require.Eventually(t, func() bool {
		resp, err := ipc.Send(a.socketPath, ipc.Command{Name: ipc.CmdPing})
		return err == nil && resp.Success
	}, 5*time.Second, 20*time.Millisecond)

	// The first task gets auto-selected on startup
	require.Eventually(t, func() bool {
		resp, err := ipc.Send(a.socketPath, ipc.Command{Name: ipc.CmdGetStatus})
		if err != nil || !resp.Success {
			return false
		}
		data, ok := resp.Data.(map[string]interface{})
		return ok && data["task_name"] == "Socket task"
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := ipc.Send(a.socketPath, ipc.Command{Name: ipc.CmdStart})
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Message)

	a.Shutdown()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}

	_, statErr := os.Stat(a.socketPath)
	assert.True(t, os.IsNotExist(statErr), "socket file is removed")

	// Shutdown records the session that was running
	store := newTestStoreAt(t, a.cfg.DatabasePath)
	sessions, err := store.AllSessions(context.Background())
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestRunRefusesActiveSocket(t *testing.T) {
	a := newTestApp(t)
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run() }()
	require.Eventually(t, func() bool {
		_, err := ipc.Send(a.socketPath, ipc.Command{Name: ipc.CmdPing})
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	b := newTestApp(t)
	b.socketPath = a.socketPath
	assert.Error(t, b.Run())

	a.Shutdown()
	require.NoError(t, <-runErr)
}
