// Package taskpool runs stage work on a bounded set of goroutines and joins
// the results with fail-fast barriers.
package taskpool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many submitted tasks run at once.
type Pool struct {
	sem *semaphore.Weighted
}

// New returns a pool running at most size tasks concurrently.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size))}
}

// Future is the pending result of a submitted task.
type Future struct {
	name string
	done chan struct{}
	once sync.Once
	err  error
}

// Name returns the name the task was submitted with.
func (f *Future) Name() string { return f.name }

// Done is closed when the task has finished.
func (f *Future) Done() <-chan struct{} { return f.done }

// Err returns the task's error. It is only meaningful after Done is closed.
func (f *Future) Err() error {
	<-f.done
	return f.err
}

// Wait blocks until the task finishes or ctx ends.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Future) resolve(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Submit schedules fn and returns immediately. The task waits for a free
// slot; if ctx ends first the future resolves with ctx's error and fn never
// runs. A panic in fn resolves the future with an error.
func (p *Pool) Submit(ctx context.Context, name string, fn func(ctx context.Context) error) *Future {
	return p.submit(ctx, name, nil, fn)
}

// SubmitAfter schedules fn to run once dep has finished successfully. The
// wait does not hold a slot, so a dependent task never starves the task it
// waits for. If dep fails the future resolves with a *TaskError naming dep.
func (p *Pool) SubmitAfter(ctx context.Context, name string, dep *Future, fn func(ctx context.Context) error) *Future {
	return p.submit(ctx, name, dep, fn)
}

func (p *Pool) submit(ctx context.Context, name string, dep *Future, fn func(ctx context.Context) error) *Future {
	f := &Future{name: name, done: make(chan struct{})}
	go func() {
		if dep != nil {
			if err := dep.Wait(ctx); err != nil {
				f.resolve(&TaskError{Task: dep.name, Err: err})
				return
			}
		}
		if err := p.sem.Acquire(ctx, 1); err != nil {
			f.resolve(err)
			return
		}
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				f.resolve(fmt.Errorf("task %s panicked: %v", name, r))
			}
		}()
		f.resolve(fn(ctx))
	}()
	return f
}

// Join waits for every future and returns the first error as soon as it
// occurs, without waiting for the remaining futures. It returns ctx's error
// if ctx ends first.
func Join(ctx context.Context, futures ...*Future) error {
	type outcome struct {
		f   *Future
		err error
	}
	results := make(chan outcome, len(futures))
	for _, f := range futures {
		go func(f *Future) {
			<-f.done
			results <- outcome{f: f, err: f.err}
		}(f)
	}
	for range futures {
		select {
		case r := <-results:
			if r.err != nil {
				return &TaskError{Task: r.f.name, Err: r.err}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// TaskError names the task that broke a barrier.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string { return e.Task + ": " + e.Err.Error() }

func (e *TaskError) Unwrap() error { return e.Err }
