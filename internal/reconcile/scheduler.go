package reconcile

import (
	"context"
	"errors"
	"sync"
)

// Scheduler runs posted tasks later, one at a time, in posting order.
// Post must not run the task before returning.
type Scheduler interface {
	Post(task func())
}

var ErrQueueClosed = errors.New("queue closed")

// Queue is the serialized mutation queue of one document. Tasks run on a
// single goroutine; Post never blocks.
type Queue struct {
	mu      sync.Mutex
	tasks   []func()
	wake    chan struct{}
	closed  bool
	done    chan struct{}
	stopped chan struct{}
}

func NewQueue() *Queue {
	q := &Queue{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go q.run()
	return q
}

// Post appends task to the queue. Tasks posted after Close are discarded.
func (q *Queue) Post(task func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Do posts fn and waits for it to run. Tasks fn posts itself run after it.
func (q *Queue) Do(ctx context.Context, fn func()) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return ErrQueueClosed
	}

	finished := make(chan struct{})
	q.Post(func() {
		defer close(finished)
		fn()
	})

	select {
	case <-finished:
		return nil
	case <-q.stopped:
		select {
		case <-finished:
			return nil
		default:
			return ErrQueueClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the queue after the tasks already posted have run.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.stopped
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.done)
	<-q.stopped
}

func (q *Queue) run() {
	defer close(q.stopped)
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-q.wake:
			case <-q.done:
			}
			continue
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task()
	}
}

// Manual is a Scheduler that runs nothing until RunPending is called.
type Manual struct {
	mu    sync.Mutex
	tasks []func()
}

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Post(task func()) {
	m.mu.Lock()
	m.tasks = append(m.tasks, task)
	m.mu.Unlock()
}

// Pending reports how many tasks are queued.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// RunPending runs queued tasks, including ones they post, until the queue
// is empty. It returns the number of tasks run.
func (m *Manual) RunPending() int {
	ran := 0
	for {
		m.mu.Lock()
		if len(m.tasks) == 0 {
			m.mu.Unlock()
			return ran
		}
		task := m.tasks[0]
		m.tasks = m.tasks[1:]
		m.mu.Unlock()

		task()
		ran++
	}
}
