package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxTaskTimeout caps the per-task deadline.
const MaxTaskTimeout = time.Hour

type TaskQueue struct {
	handler Handler
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan uuid.UUID
	wg   sync.WaitGroup
	once sync.Once

	// closeMu guards closed and the channel close against in-flight sends.
	closeMu sync.RWMutex
	closed  bool

	mu      sync.Mutex
	active  map[uuid.UUID]struct{}
	results map[uuid.UUID]TaskResult
}

var _ Queue = (*TaskQueue)(nil)

type Option func(*TaskQueue)

func WithWorkers(n int) Option {
	return func(q *TaskQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *TaskQueue) {
		if n > 0 {
			q.ch = make(chan uuid.UUID, n)
		}
	}
}

func WithTaskTimeout(d time.Duration) Option {
	return func(q *TaskQueue) {
		if d > 0 {
			q.timeout = min(d, MaxTaskTimeout)
		}
	}
}

func NewTaskQueue(h Handler, logger *slog.Logger, opts ...Option) *TaskQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &TaskQueue{
		handler: h,
		logger:  logger,
		workers: 1,
		timeout: MaxTaskTimeout,
		ch:      make(chan uuid.UUID, 64),
		active:  make(map[uuid.UUID]struct{}),
		results: make(map[uuid.UUID]TaskResult),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *TaskQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)
				for id := range q.ch {
					q.run(workerID, id)
				}
				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *TaskQueue) run(workerID int, id uuid.UUID) {
	q.setResult(id, TaskResult{State: StateRunning})
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	out := q.handle(ctx, id)
	cancel()

	res := TaskResult{State: StateSuccess, Message: out.Message}
	if !out.Success {
		res.State = StateError
		q.logger.Error("task failed", "worker_id", workerID, "receipt_id", id, "message", out.Message,
			"elapsed_ms", time.Since(start).Milliseconds())
	} else {
		q.logger.Info("task finished", "worker_id", workerID, "receipt_id", id,
			"elapsed_ms", time.Since(start).Milliseconds())
	}

	q.mu.Lock()
	q.results[id] = res
	delete(q.active, id)
	q.mu.Unlock()
}

// handle keeps a panicking handler from taking the worker down.
func (q *TaskQueue) handle(ctx context.Context, id uuid.UUID) (out Outcome) {
	defer func() {
		if v := recover(); v != nil {
			q.logger.Error("task panicked", "receipt_id", id, "panic", v)
			out = Outcome{Message: fmt.Sprintf("unexpected error: %v", v)}
		}
	}()
	return q.handler.Handle(ctx, id)
}

// Enqueue schedules a receipt. A receipt that is already queued or running
// is rejected with ErrAlreadyQueued. When the buffer is full the call blocks
// until there is room or ctx ends.
func (q *TaskQueue) Enqueue(ctx context.Context, id uuid.UUID) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "receipt_id", id)
		return ErrQueueClosed
	}

	q.mu.Lock()
	if _, dup := q.active[id]; dup {
		q.mu.Unlock()
		q.logger.Info("receipt already queued", "receipt_id", id)
		return ErrAlreadyQueued
	}
	q.active[id] = struct{}{}
	q.results[id] = TaskResult{State: StateQueued}
	q.mu.Unlock()

	select {
	case q.ch <- id:
		q.logger.Info("queued receipt for processing", "receipt_id", id)
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "receipt_id", id)
	select {
	case q.ch <- id:
		q.logger.Info("queued receipt for processing", "receipt_id", id)
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		delete(q.active, id)
		delete(q.results, id)
		q.mu.Unlock()
		return ctx.Err()
	}
}

// Result returns the state of the latest task for a receipt.
func (q *TaskQueue) Result(id uuid.UUID) (TaskResult, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.results[id]
	return r, ok
}

func (q *TaskQueue) setResult(id uuid.UUID, r TaskResult) {
	q.mu.Lock()
	q.results[id] = r
	q.mu.Unlock()
}

// Shutdown stops accepting work and waits for queued tasks to drain or ctx
// to end.
func (q *TaskQueue) Shutdown(ctx context.Context) {
	q.closeMu.Lock()
	if q.closed {
		q.closeMu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.closeMu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
