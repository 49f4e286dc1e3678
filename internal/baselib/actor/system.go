package actor

import (
	"context"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

type stoppable interface {
	Stop()
}

// SystemConfig holds configuration for an ActorSystem.
type SystemConfig struct {
	// MailboxCapacity is the default mailbox size for spawned actors.
	MailboxCapacity int
}

// DefaultConfig returns the default ActorSystem configuration.
func DefaultConfig() SystemConfig {
	return SystemConfig{
		MailboxCapacity: 100,
	}
}

// ActorSystem owns a set of actors and shuts them down together.
type ActorSystem struct {
	config SystemConfig

	mu     sync.Mutex
	actors map[string]stoppable

	ctx    context.Context
	cancel context.CancelFunc

	actorWg sync.WaitGroup
}

// NewActorSystem creates an actor system with the default configuration.
func NewActorSystem() *ActorSystem {
	return NewActorSystemWithConfig(DefaultConfig())
}

// NewActorSystemWithConfig creates an actor system with cfg.
func NewActorSystemWithConfig(cfg SystemConfig) *ActorSystem {
	ctx, cancel := context.WithCancel(context.Background())

	return &ActorSystem{
		config: cfg,
		actors: make(map[string]stoppable),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SpawnOption tweaks a single Spawn call.
type SpawnOption func(*spawnConfig)

type spawnConfig struct {
	cleanupTimeout fn.Option[time.Duration]
	mailboxSize    fn.Option[int]
}

// WithCleanupTimeout overrides the OnStop deadline for the spawned actor.
func WithCleanupTimeout(d time.Duration) SpawnOption {
	return func(c *spawnConfig) {
		c.cleanupTimeout = fn.Some(d)
	}
}

// WithMailboxSize overrides the system mailbox capacity for one actor.
func WithMailboxSize(n int) SpawnOption {
	return func(c *spawnConfig) {
		c.mailboxSize = fn.Some(n)
	}
}

// Spawn creates and starts an actor managed by the system. After Shutdown
// has begun the returned reference belongs to an already stopped actor, so
// every Ask fails with ErrActorTerminated.
func Spawn[M Message, R any](as *ActorSystem, id string,
	behavior ActorBehavior[M, R], opts ...SpawnOption) ActorRef[M, R] {

	var sc spawnConfig
	for _, opt := range opts {
		opt(&sc)
	}

	cfg := ActorConfig[M, R]{
		ID:             id,
		Behavior:       behavior,
		MailboxSize:    sc.mailboxSize.UnwrapOr(as.config.MailboxCapacity),
		CleanupTimeout: sc.cleanupTimeout,
	}

	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ctx.Err() != nil {
		a := NewActor(cfg)
		a.Stop()

		return a.Ref()
	}

	cfg.Wg = &as.actorWg
	a := NewActor(cfg)
	a.Start()
	as.actors[id] = a

	log.DebugS(as.ctx, "Actor spawned", "actor_id", id)

	return a.Ref()
}

// StopAndRemove stops the actor with the given id. It reports whether such
// an actor was found.
func (as *ActorSystem) StopAndRemove(id string) bool {
	as.mu.Lock()
	defer as.mu.Unlock()

	a, ok := as.actors[id]
	if !ok {
		return false
	}
	a.Stop()
	delete(as.actors, id)

	return true
}

// Shutdown stops every actor and waits for their goroutines to exit or for
// ctx to expire.
func (as *ActorSystem) Shutdown(ctx context.Context) error {
	as.mu.Lock()
	as.cancel()
	actors := as.actors
	as.actors = make(map[string]stoppable)
	as.mu.Unlock()

	log.InfoS(ctx, "Actor system shutting down",
		"num_actors", len(actors))

	for _, a := range actors {
		a.Stop()
	}

	done := make(chan struct{})
	go func() {
		as.actorWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil

	case <-ctx.Done():
		log.ErrorS(ctx, "Actor system shutdown incomplete", ctx.Err())

		return ctx.Err()
	}
}
