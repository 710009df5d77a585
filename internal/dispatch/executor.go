package dispatch

import (
	"context"
	"runtime"
)

type task struct {
	fn   func()
	done chan struct{}
}

// Executor owns one goroutine locked to its OS thread and runs submitted
// functions on it, one at a time. Application code that relies on
// thread-affine state gets the same thread for the whole task.
type Executor struct {
	tasks  chan task
	closed chan struct{}
}

func NewExecutor() *Executor {
	e := &Executor{
		tasks:  make(chan task),
		closed: make(chan struct{}),
	}

	go e.run()

	return e
}

func (e *Executor) run() {
	runtime.LockOSThread()
	defer close(e.closed)

	for t := range e.tasks {
		t.fn()
		close(t.done)
	}
}

// Submit runs fn on the worker thread and blocks until it finishes or the
// context ends. A context loss does not stop fn: it may still be running
// on the worker, so the submitted function must observe its own context
// to become a no-op.
func (e *Executor) Submit(ctx context.Context, fn func()) error {
	t := task{fn: fn, done: make(chan struct{})}

	select {
	case e.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker once the task in flight, if any, completes.
func (e *Executor) Close() {
	close(e.tasks)
	<-e.closed
}
