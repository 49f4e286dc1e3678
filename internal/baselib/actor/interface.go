package actor

import (
	"context"
	"errors"
	"iter"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// ErrActorTerminated indicates that an operation failed because the target
// actor was stopped or is in the process of shutting down.
var ErrActorTerminated = errors.New("actor terminated")

// BaseMessage can be embedded in message types declared outside this package
// so that they satisfy the sealed Message interface.
type BaseMessage struct{}

func (BaseMessage) messageMarker() {}

// Message is a sealed interface for actor messages. Only types that embed
// BaseMessage (or live in this package) can be delivered to an actor.
type Message interface {
	messageMarker()

	// MessageType returns the type name of the message, used for logging.
	MessageType() string
}

// Future represents the result of an asynchronous computation.
type Future[T any] interface {
	// Await blocks until the result is available or the context is
	// cancelled, then returns it.
	Await(ctx context.Context) fn.Result[T]

	// OnComplete registers a callback invoked once the result is ready. If
	// ctx is cancelled first, the callback receives the context error.
	OnComplete(ctx context.Context, cb func(fn.Result[T]))
}

// Promise is the write side of a Future.
type Promise[T any] interface {
	// Future returns the read side associated with this promise.
	Future() Future[T]

	// Complete sets the result. It returns false if the promise was already
	// completed.
	Complete(result fn.Result[T]) bool
}

// BaseActorRef is the non-generic part of every actor reference.
type BaseActorRef interface {
	// ID returns the unique identifier for this actor.
	ID() string
}

// TellOnlyRef is a reference that only supports fire-and-forget delivery.
type TellOnlyRef[M Message] interface {
	BaseActorRef

	// Tell enqueues a message without waiting for a response. If ctx is
	// cancelled before the message reaches the mailbox it is dropped.
	Tell(ctx context.Context, msg M)
}

// ActorRef is a reference to an actor that supports both tell and ask.
type ActorRef[M Message, R any] interface {
	TellOnlyRef[M]

	// Ask enqueues a message and returns a Future for the reply.
	Ask(ctx context.Context, msg M) Future[R]
}

// ActorBehavior defines how an actor processes incoming messages. All calls
// to Receive for a given actor happen on a single goroutine.
type ActorBehavior[M Message, R any] interface {
	// Receive processes a message. For ask messages the context is
	// cancelled when either the actor stops or the caller gives up.
	Receive(ctx context.Context, msg M) fn.Result[R]
}

// Stoppable is implemented by behaviors that hold resources which must be
// released once the actor stops.
type Stoppable interface {
	// OnStop runs after the processing loop exits. The context carries the
	// cleanup deadline.
	OnStop(ctx context.Context) error
}

// Mailbox is an actor's message queue.
//
// Send and TrySend may be called from any goroutine. Receive and Drain must
// only be called from the actor's own goroutine. Close is idempotent.
type Mailbox[M Message, R any] interface {
	// Send blocks until the envelope is accepted or either the caller or
	// the actor context is done.
	Send(ctx context.Context, env envelope[M, R]) bool

	// TrySend enqueues without blocking.
	TrySend(env envelope[M, R]) bool

	// Receive yields envelopes until ctx is done or the mailbox closes.
	Receive(ctx context.Context) iter.Seq[envelope[M, R]]

	// Close prevents further sends.
	Close()

	// IsClosed reports whether Close has been called.
	IsClosed() bool

	// Drain yields whatever is left after Close.
	Drain() iter.Seq[envelope[M, R]]
}
