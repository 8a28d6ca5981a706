package timer

import (
	"context"
	"errors"
	"sync"
	"time"

	"focustimer/internal/model"
)

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time), stopCh: make(chan struct{})}
	c.tickers = append(c.tickers, t)
	return t
}

// active returns the tickers that have not been stopped.
func (c *fakeClock) active() []*fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTicker
	for _, t := range c.tickers {
		if !t.isStopped() {
			out = append(out, t)
		}
	}
	return out
}

type fakeTicker struct {
	c      chan time.Time
	stopCh chan struct{}
	once   sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.once.Do(func() { close(t.stopCh) })
}

func (t *fakeTicker) isStopped() bool {
	select {
	case <-t.stopCh:
		return true
	default:
		return false
	}
}

// fire delivers one tick, returning false if the ticker was stopped instead.
func (t *fakeTicker) fire(at time.Time) bool {
	select {
	case t.c <- at:
		return true
	case <-t.stopCh:
		return false
	}
}

type memTasks struct {
	mu    sync.Mutex
	tasks map[int64]model.Task
	err   error
}

func newMemTasks(tasks ...model.Task) *memTasks {
	m := &memTasks{tasks: make(map[int64]model.Task)}
	for _, t := range tasks {
		m.tasks[t.ID] = t
	}
	return m
}

func (m *memTasks) TaskByID(_ context.Context, id int64) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *memTasks) put(t model.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
}

type memSessions struct {
	mu       sync.Mutex
	sessions []model.FocusSession
	fail     bool
}

var errDiskFull = errors.New("disk full")

func (m *memSessions) InsertSession(_ context.Context, s model.FocusSession) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return 0, errDiskFull
	}
	s.ID = int64(len(m.sessions) + 1)
	m.sessions = append(m.sessions, s)
	return s.ID, nil
}

func (m *memSessions) all() []model.FocusSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.FocusSession(nil), m.sessions...)
}
