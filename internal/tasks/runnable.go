package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/logging"
)

type RunnableTask struct {
	Name     string
	Spec     string
	Schedule cron.Schedule
	Handler  TaskFunc
	Timeout  time.Duration

	registeredAt time.Time

	mu         sync.RWMutex
	running    bool
	lastRun    time.Time
	lastResult string
	lastTook   time.Duration
	logs       []LogEntry
}

// begin marks the task as running. It returns false if a run is already in progress.
func (t *RunnableTask) begin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return false
	}
	t.running = true
	t.logs = make([]LogEntry, 0)
	return true
}

// execute runs the handler. The caller must have called begin.
func (t *RunnableTask) execute(parent context.Context) {
	ctx := core.WithRunID(parent, "")
	l := log.With().Str("task", t.Name).Str("run_id", core.RunID(ctx)).Logger()

	start := time.Now()
	defer func() {
		t.mu.Lock()
		t.running = false
		t.lastRun = start
		t.lastTook = time.Since(start)
		t.mu.Unlock()
	}()

	taskLogger := NewCompositeLogger(t, l)
	taskLogger.Info("starting task execution")

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ctx = l.Hook(storeHook{task: t}).WithContext(ctx)

	err := t.safeHandle(ctx, taskLogger)
	duration := time.Since(start)

	t.mu.Lock()
	if err != nil {
		t.lastResult = fmt.Sprintf("failed: %v", err)
	} else {
		t.lastResult = "success"
	}
	t.mu.Unlock()

	if err != nil {
		taskLogger.Error("task failed after %s: %v", duration, err)
	} else {
		taskLogger.Info("task completed successfully in %s", duration)
	}
}

func (t *RunnableTask) safeHandle(ctx context.Context, logger logging.InternalLogger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return t.Handler(ctx, logger)
}

func (t *RunnableTask) Status() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var next time.Time
	if t.Schedule != nil {
		from := t.registeredAt
		if !t.lastRun.IsZero() {
			from = t.lastRun
		}
		if now := time.Now(); from.Before(now) {
			from = now
		}
		next = t.Schedule.Next(from)
	}

	return TaskStatus{
		Name:       t.Name,
		Schedule:   t.Spec,
		Running:    t.running,
		LastRun:    t.lastRun,
		LastResult: t.lastResult,
		LastTook:   t.lastTook,
		NextRun:    next,
	}
}

func (t *RunnableTask) GetLogs() []LogEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cpy := make([]LogEntry, len(t.logs))
	copy(cpy, t.logs)
	return cpy
}

func (t *RunnableTask) AppendLog(level, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.logs = append(t.logs, LogEntry{
		Time:    time.Now(),
		Level:   level,
		Message: msg,
	})

	if len(t.logs) > MaxLogsPerTask {
		t.logs = t.logs[1:]
	}
}
