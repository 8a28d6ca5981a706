package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"focustimer/internal/model"
	"focustimer/internal/storage"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

func NewSQLiteStore(dbPath string) storage.Storage {
	return &SQLiteStore{dbPath: dbPath}
}

// Timestamps are stored as unix milliseconds so range queries compare numbers,
// not zone-dependent strings.
const createTablesSQL = `
CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	default_focus_minutes INTEGER NOT NULL,
	default_break_minutes INTEGER NOT NULL,
	default_cycles INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS focus_sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	start_time_ms INTEGER NOT NULL,
	end_time_ms INTEGER,
	focus_minutes INTEGER NOT NULL,
	break_minutes INTEGER NOT NULL,
	cycles INTEGER NOT NULL,
	actual_minutes INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_focus_sessions_task_id ON focus_sessions (task_id);
CREATE INDEX IF NOT EXISTS idx_focus_sessions_start ON focus_sessions (start_time_ms);
`

func (s *SQLiteStore) Init(ctx context.Context) error {
	dir := filepath.Dir(s.dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create db directory %s: %w", dir, err)
	}

	log.Printf("Initializing SQLite database at: %s", s.dbPath)
	db, err := sql.Open("sqlite3", s.dbPath+"?_journal=WAL&_timeout=5000&_fk=true")
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	s.db = db

	// SQLite is best with a single writer connection
	s.db.SetMaxOpenConns(1)
	s.db.SetMaxIdleConns(1)
	s.db.SetConnMaxLifetime(time.Minute * 5)

	if err := s.db.PingContext(ctx); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, createTablesSQL); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to create tables: %w", err)
	}
	log.Println("Database initialized successfully.")
	return nil
}

// --- Tasks ---

func (s *SQLiteStore) ListTasks(ctx context.Context) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, default_focus_minutes, default_break_minutes, default_cycles
	          FROM tasks ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(&t.ID, &t.Name, &t.DefaultFocusMinutes, &t.DefaultBreakMinutes, &t.DefaultCycles); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}

func (s *SQLiteStore) TaskByID(ctx context.Context, id int64) (*model.Task, error) {
	var t model.Task
	err := s.db.QueryRowContext(ctx, `SELECT id, name, default_focus_minutes, default_break_minutes, default_cycles
	          FROM tasks WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &t.DefaultFocusMinutes, &t.DefaultBreakMinutes, &t.DefaultCycles)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task %d: %w", id, err)
	}
	return &t, nil
}

func (s *SQLiteStore) InsertTask(ctx context.Context, t model.Task) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO tasks (name, default_focus_minutes, default_break_minutes, default_cycles)
	          VALUES (?, ?, ?, ?)`, t.Name, t.DefaultFocusMinutes, t.DefaultBreakMinutes, t.DefaultCycles)
	if err != nil {
		return 0, fmt.Errorf("failed to insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) UpdateTask(ctx context.Context, t model.Task) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks
	          SET name = ?, default_focus_minutes = ?, default_break_minutes = ?, default_cycles = ?
	          WHERE id = ?`, t.Name, t.DefaultFocusMinutes, t.DefaultBreakMinutes, t.DefaultCycles, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update task %d: %w", t.ID, err)
	}
	return expectAffected(res, "task", t.ID)
}

// DeleteTask removes the task; its sessions go with it through ON DELETE CASCADE.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task %d: %w", id, err)
	}
	return expectAffected(res, "task", id)
}

// --- Sessions ---

const selectSessionsSQL = `SELECT id, task_id, start_time_ms, end_time_ms, focus_minutes, break_minutes, cycles, actual_minutes
	          FROM focus_sessions`

func (s *SQLiteStore) InsertSession(ctx context.Context, fs model.FocusSession) (int64, error) {
	var endMs sql.NullInt64
	if !fs.EndTime.IsZero() {
		endMs = sql.NullInt64{Int64: fs.EndTime.UnixMilli(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO focus_sessions
	          (task_id, start_time_ms, end_time_ms, focus_minutes, break_minutes, cycles, actual_minutes)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fs.TaskID, fs.StartTime.UnixMilli(), endMs, fs.FocusMinutes, fs.BreakMinutes, fs.Cycles, fs.ActualMinutes)
	if err != nil {
		return 0, fmt.Errorf("failed to insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) SessionsBetween(ctx context.Context, start, end time.Time) ([]model.FocusSession, error) {
	return s.querySessions(ctx, selectSessionsSQL+` WHERE start_time_ms BETWEEN ? AND ? ORDER BY start_time_ms DESC`,
		start.UnixMilli(), end.UnixMilli())
}

func (s *SQLiteStore) SessionsByTask(ctx context.Context, taskID int64) ([]model.FocusSession, error) {
	return s.querySessions(ctx, selectSessionsSQL+` WHERE task_id = ? ORDER BY start_time_ms DESC`, taskID)
}

func (s *SQLiteStore) AllSessions(ctx context.Context) ([]model.FocusSession, error) {
	return s.querySessions(ctx, selectSessionsSQL+` ORDER BY start_time_ms DESC`)
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM focus_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %d: %w", id, err)
	}
	return expectAffected(res, "session", id)
}

func (s *SQLiteStore) querySessions(ctx context.Context, query string, args ...interface{}) ([]model.FocusSession, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.FocusSession
	for rows.Next() {
		var fs model.FocusSession
		var startMs int64
		var endMs sql.NullInt64
		if err := rows.Scan(&fs.ID, &fs.TaskID, &startMs, &endMs, &fs.FocusMinutes, &fs.BreakMinutes, &fs.Cycles, &fs.ActualMinutes); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		fs.StartTime = time.UnixMilli(startMs)
		if endMs.Valid {
			fs.EndTime = time.UnixMilli(endMs.Int64)
		}
		sessions = append(sessions, fs)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return sessions, nil
}

func expectAffected(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, storage.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		log.Println("Closing database connection.")
		return s.db.Close()
	}
	return nil
}
