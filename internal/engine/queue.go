package engine

import (
	"context"
	"log/slog"
	"sync"
)

// task is one unit of detached work, such as a solve record write.
type task struct {
	name string
	run  func()
}

// taskQueue is a thread-safe FIFO queue for detached tasks.
//
// The queue is unbounded so that advancing never blocks on a slow remote
// write. The signal channel (buffered, size 1) enables context-aware
// waiting in the dispatcher loop.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []task
	closed bool
	signal chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]task, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a task to the back of the queue.
// Returns false if the queue is closed.
func (q *taskQueue) Enqueue(t task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.tasks = append(q.tasks, t)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front task without blocking.
func (q *taskQueue) TryDequeue() (task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return task{}, false
	}

	t := q.tasks[0]

	// Nil out the slot so the closure can be collected.
	q.tasks[0] = task{}

	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}

	return t, true
}

// Wait returns a channel that signals when tasks may be available. The
// channel is closed by Close.
func (q *taskQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close stops accepting tasks and wakes the dispatcher.
func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// dispatcher runs queued tasks one at a time, in submission order, on a
// single goroutine.
type dispatcher struct {
	queue  *taskQueue
	logger *slog.Logger
	done   chan struct{}
}

func newDispatcher(logger *slog.Logger) *dispatcher {
	d := &dispatcher{
		queue:  newTaskQueue(),
		logger: logger,
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Submit queues fn. Returns false after Close.
func (d *dispatcher) Submit(name string, fn func()) bool {
	ok := d.queue.Enqueue(task{name: name, run: fn})
	if !ok {
		d.logger.Warn("dispatcher closed, dropping task", "task", name)
	}
	return ok
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		if t, ok := d.queue.TryDequeue(); ok {
			d.exec(t)
			continue
		}

		<-d.queue.Wait()
		// The signal channel is closed by Close; drain whatever is left.
		d.queue.mu.Lock()
		closed := d.queue.closed
		d.queue.mu.Unlock()
		if closed {
			for {
				t, ok := d.queue.TryDequeue()
				if !ok {
					return
				}
				d.exec(t)
			}
		}
	}
}

func (d *dispatcher) exec(t task) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("detached task panicked", "task", t.name, "panic", r)
		}
	}()
	t.run()
}

// Flush blocks until every task submitted before the call has run, or ctx
// is done.
func (d *dispatcher) Flush(ctx context.Context) error {
	marker := make(chan struct{})
	if !d.Submit("flush", func() { close(marker) }) {
		// Closed: Close already drained or is draining.
		select {
		case <-d.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks, runs the ones already queued and waits for
// the dispatcher goroutine to exit.
func (d *dispatcher) Close() {
	d.queue.Close()
	<-d.done
}
