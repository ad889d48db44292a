// Package worker runs blocking jobs off the dispatch path with a bounded
// number in flight.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrPoolClosed is returned by futures submitted after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// TaskStatus represents the status of a submitted job.
type TaskStatus string

const (
	TaskPending  TaskStatus = "pending"
	TaskRunning  TaskStatus = "running"
	TaskComplete TaskStatus = "complete"
	TaskFailed   TaskStatus = "failed"
)

// Task is the bookkeeping record of one submitted job.
type Task struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      TaskStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   time.Time  `json:"started_at,omitempty"`
	DoneAt      time.Time  `json:"done_at,omitempty"`
}

// Pool executes jobs on goroutines, at most size at a time. Jobs beyond
// that stay pending until a slot frees up.
type Pool struct {
	mu     sync.RWMutex
	tasks  map[string]*Task
	nextID int
	closed bool

	sem    chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewPool creates a pool running at most size jobs concurrently.
func NewPool(size int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		tasks:  make(map[string]*Task),
		sem:    make(chan struct{}, size),
		logger: logger,
	}
}

// Size returns the concurrency limit.
func (p *Pool) Size() int { return cap(p.sem) }

// Future is the pending result of a submitted job.
type Future[T any] struct {
	ID   string
	done chan struct{}
	val  T
	err  error
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await blocks until the job finishes or ctx is done. A cancelled ctx
// stops the wait, not the job.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit schedules fn on the pool and returns its future. ctx is handed
// to fn and also bounds the wait for a free slot.
func Submit[T any](p *Pool, ctx context.Context, name string, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		f.err = ErrPoolClosed
		close(f.done)
		return f
	}
	p.nextID++
	f.ID = fmt.Sprintf("job-%d", p.nextID)
	task := &Task{ID: f.ID, Name: name, Status: TaskPending, SubmittedAt: time.Now()}
	p.tasks[f.ID] = task
	p.wg.Add(1)
	p.mu.Unlock()

	p.logger.Debug("job submitted", "id", f.ID, "name", name)

	go func() {
		defer p.wg.Done()
		defer close(f.done)

		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			f.err = ctx.Err()
			p.finish(task, f.err)
			return
		}
		defer func() { <-p.sem }()

		p.mu.Lock()
		task.Status = TaskRunning
		task.StartedAt = time.Now()
		p.mu.Unlock()

		f.val, f.err = run(ctx, fn)
		p.finish(task, f.err)
	}()

	return f
}

func run[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func (p *Pool) finish(task *Task, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	task.DoneAt = time.Now()
	if err != nil {
		task.Status = TaskFailed
		task.Error = err.Error()
		p.logger.Debug("job failed", "id", task.ID, "name", task.Name, "err", err)
		return
	}
	task.Status = TaskComplete
	p.logger.Debug("job completed", "id", task.ID, "name", task.Name,
		"duration_ms", task.DoneAt.Sub(task.StartedAt).Milliseconds())
}

// ListActive returns tasks that are pending or running.
func (p *Pool) ListActive() []Task {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Task
	for _, t := range p.tasks {
		if t.Status == TaskPending || t.Status == TaskRunning {
			out = append(out, *t)
		}
	}
	return out
}

// Clean forgets finished tasks older than maxAge and reports how many
// were removed.
func (p *Pool) Clean(maxAge time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, t := range p.tasks {
		if (t.Status == TaskComplete || t.Status == TaskFailed) && !t.DoneAt.After(cutoff) {
			delete(p.tasks, id)
			removed++
		}
	}
	return removed
}

// Close stops accepting jobs. Jobs already submitted keep running.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Wait blocks until every submitted job has finished or ctx is done.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d jobs: %w", len(p.ListActive()), ctx.Err())
	}
}
