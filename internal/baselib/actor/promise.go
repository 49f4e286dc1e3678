package actor

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// promiseImpl is a single-assignment result cell.
type promiseImpl[T any] struct {
	once   sync.Once
	done   chan struct{}
	result fn.Result[T]
}

// NewPromise returns an uncompleted promise.
func NewPromise[T any]() Promise[T] {
	return &promiseImpl[T]{
		done: make(chan struct{}),
	}
}

// Future returns the read side of the promise.
func (p *promiseImpl[T]) Future() Future[T] {
	return &futureImpl[T]{p: p}
}

// Complete stores the result the first time it is called.
func (p *promiseImpl[T]) Complete(result fn.Result[T]) bool {
	completed := false
	p.once.Do(func() {
		p.result = result
		close(p.done)
		completed = true
	})

	return completed
}

type futureImpl[T any] struct {
	p *promiseImpl[T]
}

// Await blocks until the promise is completed or ctx is done.
func (f *futureImpl[T]) Await(ctx context.Context) fn.Result[T] {
	select {
	case <-f.p.done:
		return f.p.result
	case <-ctx.Done():
		return fn.Err[T](ctx.Err())
	}
}

// OnComplete runs cb in its own goroutine once a result is available.
func (f *futureImpl[T]) OnComplete(ctx context.Context,
	cb func(fn.Result[T])) {

	go func() {
		cb(f.Await(ctx))
	}()
}

// CompletedFuture returns a Future that already holds result.
func CompletedFuture[T any](result fn.Result[T]) Future[T] {
	p := NewPromise[T]()
	p.Complete(result)

	return p.Future()
}
