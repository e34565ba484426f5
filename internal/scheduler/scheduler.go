package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type pendingTask struct {
	timer      *time.Timer
	generation uint64
}

// Scheduler runs delayed in-process tasks keyed by string. It implements
// booking.TaskScheduler; pending tasks are lost when the process exits.
type Scheduler struct {
	logger *zap.Logger

	mu         sync.Mutex
	pending    map[string]pendingTask
	generation uint64
	closed     bool
	running    sync.WaitGroup
}

// New builds an empty scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{logger: logger, pending: make(map[string]pendingTask)}
}

// Schedule runs task after delay, replacing any task pending under key.
func (scheduler *Scheduler) Schedule(key string, delay time.Duration, task func()) {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	if scheduler.closed {
		scheduler.logger.Warn("task dropped after close", zap.String("key", key))
		return
	}
	if existing, ok := scheduler.pending[key]; ok {
		existing.timer.Stop()
	}
	scheduler.generation++
	generation := scheduler.generation
	scheduler.pending[key] = pendingTask{
		generation: generation,
		timer:      time.AfterFunc(delay, func() { scheduler.fire(key, generation, task) }),
	}
}

// Cancel stops the task pending under key and reports whether one was pending.
func (scheduler *Scheduler) Cancel(key string) bool {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	existing, ok := scheduler.pending[key]
	if !ok {
		return false
	}
	delete(scheduler.pending, key)
	return existing.timer.Stop()
}

// Pending returns the number of tasks waiting to fire.
func (scheduler *Scheduler) Pending() int {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	return len(scheduler.pending)
}

// Close drops pending tasks and waits for running ones to return.
func (scheduler *Scheduler) Close() {
	scheduler.mu.Lock()
	scheduler.closed = true
	for key, existing := range scheduler.pending {
		existing.timer.Stop()
		delete(scheduler.pending, key)
	}
	scheduler.mu.Unlock()
	scheduler.running.Wait()
}

func (scheduler *Scheduler) fire(key string, generation uint64, task func()) {
	scheduler.mu.Lock()
	current, ok := scheduler.pending[key]
	if !ok || current.generation != generation || scheduler.closed {
		scheduler.mu.Unlock()
		return
	}
	delete(scheduler.pending, key)
	scheduler.running.Add(1)
	scheduler.mu.Unlock()

	defer scheduler.running.Done()
	defer func() {
		if recovered := recover(); recovered != nil {
			scheduler.logger.Error("scheduled task panicked", zap.String("key", key), zap.Any("panic", recovered))
		}
	}()
	task()
}
