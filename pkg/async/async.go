// Package async provides small future primitives for best-effort fan-out:
// launch one task per item, wait for all of them, and collect every failure
// instead of aborting on the first one.
package async

import "context"

// Result pairs a task's value with its error so joined fan-outs can report
// per-item outcomes.
type Result[T any] struct {
	Value T
	Err   error
}

// Future is the pending result of a task started with Go.
type Future[T any] struct {
	done chan struct{}
	res  Result[T]
}

// Go runs fn in its own goroutine and returns a Future for its result.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.res.Value, f.res.Err = fn(ctx)
	}()
	return f
}

// Await blocks until the task completes and returns its result.
func (f *Future[T]) Await() (T, error) {
	<-f.done
	return f.res.Value, f.res.Err
}

// Join waits for every future and returns all results in order. Unlike an
// errgroup, Join never cancels siblings: every task runs to completion and
// every failure is preserved for the caller to aggregate.
func Join[T any](futures ...*Future[T]) []Result[T] {
	results := make([]Result[T], len(futures))
	for i, f := range futures {
		<-f.done
		results[i] = f.res
	}
	return results
}
