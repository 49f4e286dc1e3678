package actor

import (
	"context"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// defaultCleanupTimeout bounds how long a Stoppable behavior may take in
// OnStop.
const defaultCleanupTimeout = 5 * time.Second

// mergeContexts returns a context that is cancelled when either parent is,
// keeping the earlier of the two deadlines.
func mergeContexts(ctx1, ctx2 context.Context) (context.Context,
	context.CancelFunc) {

	base := ctx1
	d1, ok1 := ctx1.Deadline()
	if d2, ok2 := ctx2.Deadline(); ok2 && (!ok1 || d2.Before(d1)) {
		base = ctx2
	}

	merged, cancel := context.WithCancel(base)
	go func() {
		select {
		case <-ctx1.Done():
			cancel()
		case <-ctx2.Done():
			cancel()
		case <-merged.Done():
		}
	}()

	return merged, cancel
}

// ActorConfig holds the parameters for NewActor.
type ActorConfig[M Message, R any] struct {
	// ID is the unique identifier for the actor.
	ID string

	// Behavior defines how the actor responds to messages.
	Behavior ActorBehavior[M, R]

	// MailboxSize is the buffer capacity of the mailbox.
	MailboxSize int

	// Wg, if set, is incremented on Start and released when the process
	// loop has fully exited.
	Wg *sync.WaitGroup

	// CleanupTimeout overrides the OnStop deadline.
	CleanupTimeout fn.Option[time.Duration]
}

// envelope pairs a message with the promise of an ask, or nil for a tell.
type envelope[M Message, R any] struct {
	message   M
	promise   Promise[R]
	callerCtx context.Context
}

// Actor processes messages from its mailbox sequentially on its own
// goroutine.
type Actor[M Message, R any] struct {
	id       string
	behavior ActorBehavior[M, R]
	mailbox  Mailbox[M, R]

	ctx    context.Context
	cancel context.CancelFunc

	wg             *sync.WaitGroup
	cleanupTimeout time.Duration

	startOnce sync.Once
	stopOnce  sync.Once

	ref ActorRef[M, R]
}

// NewActor creates an actor. Start must be called before it processes
// anything.
func NewActor[M Message, R any](cfg ActorConfig[M, R]) *Actor[M, R] {
	ctx, cancel := context.WithCancel(context.Background())

	a := &Actor[M, R]{
		id:       cfg.ID,
		behavior: cfg.Behavior,
		mailbox: NewChannelMailbox[M, R](
			ctx, cfg.MailboxSize,
		),
		ctx:    ctx,
		cancel: cancel,
		wg:     cfg.Wg,
		cleanupTimeout: cfg.CleanupTimeout.UnwrapOr(
			defaultCleanupTimeout,
		),
	}
	a.ref = &actorRefImpl[M, R]{actor: a}

	return a
}

// Start launches the processing goroutine. Repeated calls are no-ops.
func (a *Actor[M, R]) Start() {
	a.startOnce.Do(func() {
		log.DebugS(a.ctx, "Starting actor", "actor_id", a.id)

		if a.wg != nil {
			a.wg.Add(1)
		}
		go a.process()
	})
}

func (a *Actor[M, R]) process() {
	if a.wg != nil {
		defer a.wg.Done()
	}

	for env := range a.mailbox.Receive(a.ctx) {
		// Asks honour the caller's deadline as well as our own. Tells
		// only stop with the actor.
		processCtx, cancel := a.ctx, context.CancelFunc(func() {})
		if env.promise != nil {
			processCtx, cancel = mergeContexts(a.ctx, env.callerCtx)
		}

		log.TraceS(processCtx, "Actor processing message",
			"actor_id", a.id,
			"msg_type", env.message.MessageType(),
			"is_ask", env.promise != nil)

		result := a.behavior.Receive(processCtx, env.message)
		cancel()

		if env.promise != nil {
			env.promise.Complete(result)
		}
	}

	a.mailbox.Close()

	drained := 0
	for env := range a.mailbox.Drain() {
		drained++
		if env.promise != nil {
			env.promise.Complete(fn.Err[R](ErrActorTerminated))
		}
	}

	if s, ok := a.behavior.(Stoppable); ok {
		cleanupCtx, cancel := context.WithTimeout(
			context.Background(), a.cleanupTimeout,
		)
		if err := s.OnStop(cleanupCtx); err != nil {
			log.WarnS(a.ctx, "Actor cleanup error during shutdown",
				err, "actor_id", a.id)
		}
		cancel()
	}

	log.DebugS(a.ctx, "Actor terminated",
		"actor_id", a.id,
		"drained_messages", drained)
}

// Stop cancels the actor's context. The process loop closes the mailbox and
// fails any pending asks with ErrActorTerminated.
func (a *Actor[M, R]) Stop() {
	a.stopOnce.Do(a.cancel)
}

// Ref returns the actor's reference.
func (a *Actor[M, R]) Ref() ActorRef[M, R] {
	return a.ref
}

// TellRef returns a tell-only view of the actor's reference.
func (a *Actor[M, R]) TellRef() TellOnlyRef[M] {
	return a.ref
}

type actorRefImpl[M Message, R any] struct {
	actor *Actor[M, R]
}

// Tell implements TellOnlyRef.
func (ref *actorRefImpl[M, R]) Tell(ctx context.Context, msg M) {
	ok := ref.actor.mailbox.Send(ctx, envelope[M, R]{
		message:   msg,
		callerCtx: ctx,
	})
	if !ok {
		log.DebugS(ctx, "Tell dropped",
			"actor_id", ref.actor.id,
			"msg_type", msg.MessageType())
	}
}

// Ask implements ActorRef.
func (ref *actorRefImpl[M, R]) Ask(ctx context.Context, msg M) Future[R] {
	promise := NewPromise[R]()

	if ref.actor.ctx.Err() != nil {
		promise.Complete(fn.Err[R](ErrActorTerminated))
		return promise.Future()
	}

	ok := ref.actor.mailbox.Send(ctx, envelope[M, R]{
		message:   msg,
		promise:   promise,
		callerCtx: ctx,
	})
	if !ok {
		// Actor termination takes precedence over the caller's own
		// cancellation.
		err := ErrActorTerminated
		if ref.actor.ctx.Err() == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		promise.Complete(fn.Err[R](err))
	}

	return promise.Future()
}

// ID implements BaseActorRef.
func (ref *actorRefImpl[M, R]) ID() string {
	return ref.actor.id
}
