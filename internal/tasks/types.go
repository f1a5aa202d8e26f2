package tasks

import (
	"context"
	"time"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/logging"
)

// TaskFunc is the unit of work. Everything written to logger, and everything logged through
// the zerolog logger carried by ctx, ends up in the task log.
type TaskFunc func(ctx context.Context, logger logging.InternalLogger) error

type TaskStatus struct {
	Name       string        `json:"name,omitempty"`
	Schedule   string        `json:"schedule,omitempty"`
	Running    bool          `json:"running,omitempty"`
	LastRun    time.Time     `json:"last_run"`
	LastResult string        `json:"last_result,omitempty"`
	LastTook   time.Duration `json:"last_took,omitempty"`
	NextRun    time.Time     `json:"next_run"`
}

type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level,omitempty"`
	Message string    `json:"message,omitempty"`
}
