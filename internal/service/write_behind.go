package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/spark-chat-api/internal/observability"
)

const defaultTaskTimeout = 5 * time.Second

// BackgroundTask is a unit of best-effort persistence executed off the request path.
type BackgroundTask struct {
	Name string
	Run  func(ctx context.Context) error
}

// WriteBehind runs background tasks on a bounded queue. A full queue drops the
// task instead of blocking the caller.
type WriteBehind interface {
	Enqueue(task BackgroundTask) bool
	Start(ctx context.Context)
	Stop()
}

type writeBehind struct {
	queue       chan BackgroundTask
	workers     int
	taskTimeout time.Duration
	logger      zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewWriteBehind builds a queue with the given worker count and capacity.
func NewWriteBehind(workers, capacity int, logger zerolog.Logger) WriteBehind {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &writeBehind{
		queue:       make(chan BackgroundTask, capacity),
		workers:     workers,
		taskTimeout: defaultTaskTimeout,
		logger:      logger.With().Str("component", "write_behind").Logger(),
	}
}

func (w *writeBehind) Enqueue(task BackgroundTask) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed || task.Run == nil {
		observability.WriteBehindTasks().WithLabelValues(task.Name, "dropped").Inc()
		return false
	}

	select {
	case w.queue <- task:
		return true
	default:
		observability.WriteBehindTasks().WithLabelValues(task.Name, "dropped").Inc()
		w.logger.Warn().Str("task", task.Name).Msg("write-behind queue full, dropping task")
		return false
	}
}

// Start launches the workers. Tasks keep the values of ctx but not its
// cancellation so a shutdown can still drain the queue.
func (w *writeBehind) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.closed {
		return
	}
	w.started = true

	base := context.WithoutCancel(ctx)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.work(base)
	}
}

// Stop rejects new tasks and waits for queued ones to finish.
func (w *writeBehind) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	started := w.started
	w.mu.Unlock()

	if !started {
		w.runRemaining(context.Background())
		return
	}
	w.wg.Wait()
}

func (w *writeBehind) work(ctx context.Context) {
	defer w.wg.Done()
	for task := range w.queue {
		w.run(ctx, task)
	}
}

func (w *writeBehind) runRemaining(ctx context.Context) {
	for task := range w.queue {
		w.run(ctx, task)
	}
}

func (w *writeBehind) run(ctx context.Context, task BackgroundTask) {
	taskCtx, cancel := context.WithTimeout(ctx, w.taskTimeout)
	defer cancel()

	if err := task.Run(taskCtx); err != nil {
		observability.WriteBehindTasks().WithLabelValues(task.Name, "failed").Inc()
		w.logger.Warn().Err(err).Str("task", task.Name).Msg("write-behind task failed")
		return
	}
	observability.WriteBehindTasks().WithLabelValues(task.Name, "ok").Inc()
}
