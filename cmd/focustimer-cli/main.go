package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"focustimer/internal/config"
	"focustimer/internal/ipc"
	"focustimer/internal/model"
	"focustimer/internal/report"
	"focustimer/internal/settings"
	"focustimer/internal/storage"

	sqlitestore "focustimer/internal/storage/sqlite"
)

var (
	configPath   string
	dbPath       string
	socketPath   string
	settingsPath string
)

var rootCmd = &cobra.Command{
	Use:   "focustimer-cli",
	Short: "CLI tool to interact with the focustimer daemon",
	Long:  `A command-line interface to control the focus timer running in the focustimer daemon via its Unix socket, and to manage tasks, session history, statistics and preferences.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Config loading is chatty; keep it out of CLI output
		log.SetOutput(io.Discard)
		cfg, err := config.LoadConfig(configPath)
		log.SetOutput(os.Stderr)
		log.SetFlags(0)
		if err != nil {
			log.Fatalf("Error loading configuration: %v", err)
		}
		if dbPath == "" {
			dbPath = cfg.DatabasePath
		}
		if socketPath == "" {
			socketPath = cfg.SocketPath
		}
		if settingsPath == "" {
			settingsPath = cfg.SettingsPath
		}
	},
}

// --- Client Helper Functions ---

func sendCommand(cmd ipc.Command) {
	resp, err := ipc.Send(socketPath, cmd)
	if err != nil {
		log.Fatalf("Error: %v\nIs the focustimer daemon running?", err)
	}

	if !resp.Success {
		fmt.Fprintf(os.Stderr, "Error: %s\n", resp.Message)
		os.Exit(1)
	}

	fmt.Println("Success:", resp.Message)
	if resp.Data == nil {
		return
	}
	var status ipc.StatusData
	if err := decodeData(resp.Data, &status); err == nil && status.Status != "" {
		printStatus(status)
		return
	}
	prettyData, err := json.MarshalIndent(resp.Data, "", "  ")
	if err == nil {
		fmt.Println("Data:")
		fmt.Println(string(prettyData))
	} else {
		fmt.Println("Data (raw):", resp.Data)
	}
}

func decodeData(input interface{}, output interface{}) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, output)
}

func printStatus(s ipc.StatusData) {
	task := s.TaskName
	if task == "" {
		task = "(none)"
	}
	t := s.Timer
	fmt.Printf("Task:      %s\n", task)
	fmt.Printf("Status:    %s\n", s.Status)
	fmt.Printf("Phase:     %s (cycle %d/%d)\n", t.Phase, t.CycleIndex, t.Cycles)
	fmt.Printf("Remaining: %s\n", s.Remaining)
	fmt.Printf("Settings:  %d min focus, %d min break, %d cycles\n", t.FocusMinutes, t.BreakMinutes, t.Cycles)
	if t.InSession {
		fmt.Printf("Focused:   %s\n", report.FormatMinutes(t.AccumulatedMinutes))
	}
}

// openStore opens the database directly for commands that do not need the daemon.
func openStore() (storage.Storage, context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store := sqlitestore.NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		cancel()
		log.Fatalf("Failed to open database %s: %v", dbPath, err)
	}
	return store, ctx, cancel
}

func parseID(s string) int64 {
	id, err := cast.ToInt64E(s)
	if err != nil || id <= 0 {
		log.Fatalf("Error: invalid id %q", s)
	}
	return id
}

func requirePositive(name string, v int) {
	if v <= 0 {
		log.Fatalf("Error: --%s must be a positive integer, got %d", name, v)
	}
}

// --- Command Definitions ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check if the focustimer daemon is running",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdPing})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current timer state",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdGetStatus})
	},
}

// Timer Command Group
var timerCmd = &cobra.Command{
	Use:   "timer",
	Short: "Control the focus timer",
}

var timerSelectCmd = &cobra.Command{
	Use:   "select <task-id>",
	Short: "Select a task and load its default durations",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdSelectTask, Args: ipc.SelectTaskArgs{TaskID: parseID(args[0])}})
	},
}

var timerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start or resume the timer (pauses it if already running)",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdStart})
	},
}

var timerPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the running timer",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdPause})
	},
}

var timerStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the session and record it",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdStop})
	},
}

var timerSkipCmd = &cobra.Command{
	Use:   "skip",
	Short: "Skip to the next phase",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdSkip})
	},
}

var timerResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset durations and cycles to the selected task's defaults",
	Run: func(cmd *cobra.Command, args []string) {
		sendCommand(ipc.Command{Name: ipc.CmdResetDefaults})
	},
}

var timerSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change focus minutes, break minutes or cycles",
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		if !flags.Changed("focus") && !flags.Changed("break") && !flags.Changed("cycles") {
			log.Fatal("Error: nothing to set, use --focus, --break or --cycles")
		}
		if flags.Changed("focus") {
			v, _ := flags.GetInt("focus")
			requirePositive("focus", v)
			sendCommand(ipc.Command{Name: ipc.CmdSetFocusMinutes, Args: ipc.MinutesArgs{Minutes: v}})
		}
		if flags.Changed("break") {
			v, _ := flags.GetInt("break")
			requirePositive("break", v)
			sendCommand(ipc.Command{Name: ipc.CmdSetBreakMinutes, Args: ipc.MinutesArgs{Minutes: v}})
		}
		if flags.Changed("cycles") {
			v, _ := flags.GetInt("cycles")
			requirePositive("cycles", v)
			sendCommand(ipc.Command{Name: ipc.CmdSetCycles, Args: ipc.CyclesArgs{Cycles: v}})
		}
	},
}

// Task Command Group
var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a task (durations default to your preferences)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		prefs, err := settings.NewStore(afero.NewOsFs(), settingsPath).Load()
		if err != nil {
			log.Printf("Warning: failed to load preferences, using defaults: %v", err)
		}

		task := model.Task{
			Name:                args[0],
			DefaultFocusMinutes: prefs.FocusMinutes,
			DefaultBreakMinutes: prefs.BreakMinutes,
			DefaultCycles:       config.DefaultCycles,
		}
		flags := cmd.Flags()
		if flags.Changed("focus") {
			task.DefaultFocusMinutes, _ = flags.GetInt("focus")
		}
		if flags.Changed("break") {
			task.DefaultBreakMinutes, _ = flags.GetInt("break")
		}
		if flags.Changed("cycles") {
			task.DefaultCycles, _ = flags.GetInt("cycles")
		}
		requirePositive("focus", task.DefaultFocusMinutes)
		requirePositive("break", task.DefaultBreakMinutes)
		requirePositive("cycles", task.DefaultCycles)

		store, ctx, cancel := openStore()
		defer cancel()
		defer store.Close()

		id, err := store.InsertTask(ctx, task)
		if err != nil {
			log.Fatalf("Failed to add task: %v", err)
		}
		fmt.Printf("Task %d added: %s (%d/%d min x%d)\n", id, task.Name, task.DefaultFocusMinutes, task.DefaultBreakMinutes, task.DefaultCycles)
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Run: func(cmd *cobra.Command, args []string) {
		store, ctx, cancel := openStore()
		defer cancel()
		defer store.Close()

		tasks, err := store.ListTasks(ctx)
		if err != nil {
			log.Fatalf("Failed to list tasks: %v", err)
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks yet. Add one with: focustimer-cli task add <name>")
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tFOCUS\tBREAK\tCYCLES")
		for _, t := range tasks {
			fmt.Fprintf(w, "%d\t%s\t%dm\t%dm\t%d\n", t.ID, t.Name, t.DefaultFocusMinutes, t.DefaultBreakMinutes, t.DefaultCycles)
		}
		w.Flush()
	},
}

var taskEditCmd = &cobra.Command{
	Use:   "edit <task-id>",
	Short: "Edit a task's name or default durations",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		store, ctx, cancel := openStore()
		defer cancel()
		defer store.Close()

		task, err := store.TaskByID(ctx, id)
		if err != nil {
			log.Fatalf("Failed to load task %d: %v", id, err)
		}
		if task == nil {
			log.Fatalf("Error: task %d not found", id)
		}

		flags := cmd.Flags()
		if flags.Changed("name") {
			task.Name, _ = flags.GetString("name")
		}
		if flags.Changed("focus") {
			task.DefaultFocusMinutes, _ = flags.GetInt("focus")
		}
		if flags.Changed("break") {
			task.DefaultBreakMinutes, _ = flags.GetInt("break")
		}
		if flags.Changed("cycles") {
			task.DefaultCycles, _ = flags.GetInt("cycles")
		}
		requirePositive("focus", task.DefaultFocusMinutes)
		requirePositive("break", task.DefaultBreakMinutes)
		requirePositive("cycles", task.DefaultCycles)

		if err := store.UpdateTask(ctx, *task); err != nil {
			log.Fatalf("Failed to update task %d: %v", id, err)
		}
		fmt.Printf("Task %d updated: %s (%d/%d min x%d)\n", task.ID, task.Name, task.DefaultFocusMinutes, task.DefaultBreakMinutes, task.DefaultCycles)
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task and its session history",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		store, ctx, cancel := openStore()
		defer cancel()
		defer store.Close()

		if err := store.DeleteTask(ctx, id); err != nil {
			log.Fatalf("Failed to delete task %d: %v", id, err)
		}
		fmt.Printf("Task %d deleted\n", id)
	},
}

// Session Command Group
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Browse recorded focus sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions in a time range or for one task",
	Run: func(cmd *cobra.Command, args []string) {
		rangeStr, _ := cmd.Flags().GetString("range")
		taskID, _ := cmd.Flags().GetInt64("task")

		store, ctx, cancel := openStore()
		defer cancel()
		defer store.Close()

		var sessions []model.FocusSession
		var err error
		if taskID > 0 {
			sessions, err = store.SessionsByTask(ctx, taskID)
		} else {
			r, perr := report.ParseTimeRange(rangeStr)
			if perr != nil {
				log.Fatalf("Error: %v", perr)
			}
			start, end := report.Bounds(time.Now(), r)
			sessions, err = store.SessionsBetween(ctx, start, end)
		}
		if err != nil {
			log.Fatalf("Failed to fetch sessions: %v", err)
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return
		}

		names := taskNames(ctx, store)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTASK\tSTARTED\tFOCUSED\tPLAN")
		for _, s := range sessions {
			name, ok := names[s.TaskID]
			if !ok {
				name = report.UnknownTaskName
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d/%d min x%d\n", s.ID, name, s.StartTime.Format("2006-01-02 15:04"),
				report.FormatMinutes(s.ActualMinutes), s.FocusMinutes, s.BreakMinutes, s.Cycles)
		}
		w.Flush()
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a recorded session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		store, ctx, cancel := openStore()
		defer cancel()
		defer store.Close()

		if err := store.DeleteSession(ctx, id); err != nil {
			log.Fatalf("Failed to delete session %d: %v", id, err)
		}
		fmt.Printf("Session %d deleted\n", id)
	},
}

func taskNames(ctx context.Context, store storage.TaskStore) map[int64]string {
	tasks, err := store.ListTasks(ctx)
	if err != nil {
		log.Printf("Warning: failed to list tasks: %v", err)
	}
	names := make(map[int64]string, len(tasks))
	for _, t := range tasks {
		names[t.ID] = t.Name
	}
	return names
}

// Report Command Group
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Statistics over recorded sessions",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		rootCmd.PersistentPreRun(cmd, args)
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			log.Fatalf("Error: Database file not found at %s. Ensure focustimerd has run or specify path with --db.", dbPath)
		} else if err != nil {
			log.Fatalf("Error accessing database file %s: %v", dbPath, err)
		}
	},
}

var reportSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show totals, daily breakdown, per-task split and achievements",
	Run: func(cmd *cobra.Command, args []string) {
		rangeStr, _ := cmd.Flags().GetString("range")
		r, err := report.ParseTimeRange(rangeStr)
		if err != nil {
			log.Fatalf("Error: %v", err)
		}

		store, ctx, cancel := openStore()
		defer cancel()
		defer store.Close()

		now := time.Now()
		start, end := report.Bounds(now, r)
		sessions, err := store.SessionsBetween(ctx, start, end)
		if err != nil {
			log.Fatalf("Failed to fetch sessions: %v", err)
		}
		all, err := store.AllSessions(ctx)
		if err != nil {
			log.Fatalf("Failed to fetch sessions: %v", err)
		}
		tasks, err := store.ListTasks(ctx)
		if err != nil {
			log.Fatalf("Failed to list tasks: %v", err)
		}

		printSummary(r, report.Build(sessions, all, tasks, now))
	},
}

func printSummary(r report.TimeRange, s report.Summary) {
	fmt.Printf("Range:      %s\n", r)
	fmt.Printf("Sessions:   %d\n", s.SessionCount)
	fmt.Printf("Focused:    %s\n", report.FormatMinutes(s.TotalMinutes))
	fmt.Printf("Average:    %.1f min/session\n", s.AverageMinutes)
	fmt.Printf("Streak:     %d day(s)\n", s.Achievement.ConsecutiveDays)
	fmt.Printf("All time:   %d min (next milestone %d min)\n", s.Achievement.TotalMinutes, s.Achievement.NextMilestone)

	if len(s.Tasks) > 0 {
		fmt.Println("\nBy task:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, t := range s.Tasks {
			fmt.Fprintf(w, "  %s\t%d sessions\t%s\t%.1f%%\n", t.TaskName, t.SessionCount, report.FormatMinutes(t.TotalMinutes), t.Percentage)
		}
		w.Flush()
	}

	if len(s.Daily) > 0 {
		fmt.Println("\nBy day:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, d := range s.Daily {
			fmt.Fprintf(w, "  %s\t%d sessions\t%s\n", d.Date.Format("Mon 2006-01-02"), d.SessionCount, report.FormatMinutes(d.TotalMinutes))
		}
		w.Flush()
	}
}

// Settings Command Group
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read or change preferences",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Show one preference, or all of them",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store := settings.NewStore(afero.NewOsFs(), settingsPath)
		keys := settings.Keys()
		if len(args) == 1 {
			keys = args
		}
		for _, k := range keys {
			v, err := store.Get(k)
			if err != nil {
				log.Fatalf("Error: %v", err)
			}
			fmt.Printf("%s = %v\n", k, v)
		}
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a preference",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		store := settings.NewStore(afero.NewOsFs(), settingsPath)
		if err := store.Set(args[0], args[1]); err != nil {
			log.Fatalf("Error: %v", err)
		}
		fmt.Printf("%s set to %s\n", args[0], args[1])
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: search ./, ~/.config/focustimer, /etc/focustimer)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the focustimer database file (default: loaded from config or 'focustimer.db')")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "Path to the daemon socket (default: loaded from config or '"+ipc.DefaultSocketPath+"')")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Path to the preferences file (default: loaded from config)")

	// --- Timer Commands ---
	timerSetCmd.Flags().Int("focus", 0, "Focus minutes")
	timerSetCmd.Flags().Int("break", 0, "Break minutes")
	timerSetCmd.Flags().Int("cycles", 0, "Number of focus/break cycles")
	timerCmd.AddCommand(timerSelectCmd, timerStartCmd, timerPauseCmd, timerStopCmd, timerSkipCmd, timerResetCmd, timerSetCmd)
	rootCmd.AddCommand(timerCmd)

	// --- Task Commands ---
	for _, c := range []*cobra.Command{taskAddCmd, taskEditCmd} {
		c.Flags().Int("focus", 0, "Default focus minutes")
		c.Flags().Int("break", 0, "Default break minutes")
		c.Flags().Int("cycles", 0, "Default number of cycles")
	}
	taskEditCmd.Flags().String("name", "", "New task name")
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskEditCmd, taskDeleteCmd)
	rootCmd.AddCommand(taskCmd)

	// --- Session Commands ---
	sessionListCmd.Flags().StringP("range", "r", string(report.RangeWeek), "Time range: today, week, month, year or all")
	sessionListCmd.Flags().Int64P("task", "t", 0, "Only sessions of this task id")
	sessionCmd.AddCommand(sessionListCmd, sessionDeleteCmd)
	rootCmd.AddCommand(sessionCmd)

	// --- Report Commands ---
	reportSummaryCmd.Flags().StringP("range", "r", string(report.RangeWeek), "Time range: today, week, month, year or all")
	reportCmd.AddCommand(reportSummaryCmd)
	rootCmd.AddCommand(reportCmd)

	// --- Settings Commands ---
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)

	// --- Other Commands ---
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(statusCmd)

	// --- Execute ---
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}
