package esplora

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Promise is the write side of a Future. It is completed exactly once.
type Promise[T any] struct {
	once   sync.Once
	done   chan struct{}
	result fn.Result[T]
}

// NewPromise creates an uncompleted promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{
		done: make(chan struct{}),
	}
}

// Complete sets the result. Only the first call has an effect; it returns
// false for every later call.
func (p *Promise[T]) Complete(result fn.Result[T]) bool {
	completed := false
	p.once.Do(func() {
		p.result = result
		close(p.done)
		completed = true
	})

	return completed
}

// Future returns the read side of the promise.
func (p *Promise[T]) Future() *Future[T] {
	return &Future[T]{promise: p}
}

// Future is the result of an operation running on another goroutine.
type Future[T any] struct {
	promise *Promise[T]
}

// Done returns a channel that is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.promise.done
}

// Await blocks until the result is available or ctx is done. Abandoning the
// wait does not stop the underlying operation; the context error is returned
// instead.
func (f *Future[T]) Await(ctx context.Context) fn.Result[T] {
	select {
	case <-f.promise.done:
		return f.promise.result

	case <-ctx.Done():
		return fn.Err[T](ctx.Err())
	}
}

// resultOf turns a value and error pair into a Result.
func resultOf[T any](val T, err error) fn.Result[T] {
	if err != nil {
		return fn.Err[T](err)
	}

	return fn.Ok(val)
}
