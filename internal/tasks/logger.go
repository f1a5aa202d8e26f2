package tasks

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/logging"
)

var _ logging.InternalLogger = (*TaskStoreLogger)(nil)

// TaskStoreLogger writes into the log buffer of a task.
type TaskStoreLogger struct {
	Task *RunnableTask
}

func NewTaskStoreLogger(task *RunnableTask) *TaskStoreLogger {
	return &TaskStoreLogger{
		Task: task,
	}
}

func (t *TaskStoreLogger) Info(format string, args ...any) {
	t.Task.AppendLog("info", fmt.Sprintf(format, args...))
}

func (t *TaskStoreLogger) Warn(format string, args ...any) {
	t.Task.AppendLog("warn", fmt.Sprintf(format, args...))
}

func (t *TaskStoreLogger) Error(format string, args ...any) {
	t.Task.AppendLog("error", fmt.Sprintf(format, args...))
}

// NewCompositeLogger logs to both zerolog and the task store.
func NewCompositeLogger(task *RunnableTask, zlog zerolog.Logger) logging.InternalLogger {
	return logging.Tee(logging.Zerolog(zlog), NewTaskStoreLogger(task))
}

// storeHook copies zerolog messages of a run into the task log, so sync jobs that log
// through log.Ctx show up in the task logs as well.
type storeHook struct {
	task *RunnableTask
}

func (h storeHook) Run(_ *zerolog.Event, level zerolog.Level, msg string) {
	if level < zerolog.InfoLevel || msg == "" {
		return
	}
	h.task.AppendLog(level.String(), msg)
}
