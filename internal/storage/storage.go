package storage

import (
	"context"
	"errors"
	"focustimer/internal/model"
	"time"
)

// ErrNotFound is returned when a task or session id does not exist.
var ErrNotFound = errors.New("not found")

type TaskStore interface {
	ListTasks(ctx context.Context) ([]model.Task, error)
	// TaskByID returns nil and no error when the task does not exist.
	TaskByID(ctx context.Context, id int64) (*model.Task, error)
	InsertTask(ctx context.Context, t model.Task) (int64, error)
	UpdateTask(ctx context.Context, t model.Task) error
	DeleteTask(ctx context.Context, id int64) error
}

type SessionStore interface {
	InsertSession(ctx context.Context, s model.FocusSession) (int64, error)
	// SessionsBetween returns sessions started within [start, end], newest first.
	SessionsBetween(ctx context.Context, start, end time.Time) ([]model.FocusSession, error)
	SessionsByTask(ctx context.Context, taskID int64) ([]model.FocusSession, error)
	AllSessions(ctx context.Context) ([]model.FocusSession, error)
	DeleteSession(ctx context.Context, id int64) error
}

type Storage interface {
	TaskStore
	SessionStore
	Init(ctx context.Context) error
	Close() error
}
