package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/config"
)

const (
	MaxLogsPerTask = 1000
	DefaultTimeout = 30 * time.Minute
)

// Manager runs registered tasks on their cron schedules and on demand.
type Manager struct {
	cron    *cron.Cron
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	tasks map[string]*RunnableTask
}

// NewManager creates a manager whose runs time out after timeout (DefaultTimeout if <= 0).
func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cron: cron.New(
			cron.WithParser(config.CronParser),
			cron.WithLogger(cronLogger{}),
		),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		tasks:   make(map[string]*RunnableTask),
	}
}

// Register adds a task. An empty spec registers a task that only runs when triggered.
func (m *Manager) Register(name, spec string, fn TaskFunc) error {
	task := &RunnableTask{
		Name:         name,
		Spec:         spec,
		Handler:      fn,
		Timeout:      m.timeout,
		registeredAt: time.Now(),
		logs:         make([]LogEntry, 0),
	}
	if spec != "" {
		schedule, err := config.CronParser.Parse(spec)
		if err != nil {
			return fmt.Errorf("task '%s': invalid schedule '%s': %w", name, spec, err)
		}
		task.Schedule = schedule
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.tasks[name]; dup {
		return fmt.Errorf("task '%s' is already registered", name)
	}
	m.tasks[name] = task

	if task.Schedule != nil {
		m.cron.Schedule(task.Schedule, cron.FuncJob(func() { m.scheduled(task) }))
	}
	return nil
}

// Start begins running scheduled tasks.
func (m *Manager) Start() {
	m.cron.Start()
}

// Stop halts the scheduler, cancels running tasks and waits for them until ctx is done.
func (m *Manager) Stop(ctx context.Context) error {
	<-m.cron.Stop().Done()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) scheduled(task *RunnableTask) {
	if !task.begin() {
		log.Warn().Str("task", task.Name).Msg("task is already running, skipping scheduled execution")
		return
	}
	m.wg.Add(1)
	defer m.wg.Done()
	task.execute(m.ctx)
}

// Trigger starts the task in the background.
func (m *Manager) Trigger(name string) error {
	task, err := m.get(name)
	if err != nil {
		return err
	}
	if !task.begin() {
		return TaskRunningError{Name: name}
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		task.execute(m.ctx)
	}()
	return nil
}

func (m *Manager) ListStatus() []TaskStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]TaskStatus, 0, len(m.tasks))
	for _, task := range m.tasks {
		list = append(list, task.Status())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

func (m *Manager) GetLogs(name string) ([]LogEntry, error) {
	task, err := m.get(name)
	if err != nil {
		return nil, err
	}
	return task.GetLogs(), nil
}

func (m *Manager) get(name string) (*RunnableTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[name]
	if !ok {
		return nil, TaskNotFoundError{Name: name}
	}
	return task, nil
}

// cronLogger sends the scheduler's own messages to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
