// Package cloudsync keeps the cloud copy of the workshop eventually
// consistent with local edits. Edits are coalesced by a debounce timer
// owned by a single actor, and manual operations surface their errors.
package cloudsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/septapod/agentmapper/internal/actorutil"
	"github.com/septapod/agentmapper/internal/baselib/actor"
	"github.com/septapod/agentmapper/internal/netstatus"
	"github.com/septapod/agentmapper/internal/workshop"
)

const (
	// DefaultDebounce is the quiet period after the last qualifying edit
	// before an auto push.
	DefaultDebounce = 5 * time.Second

	// actorID names the debounce actor in the actor system.
	actorID = "cloud-sync"
)

var (
	// ErrNotConnected is returned by SyncNow without a cloud
	// organization.
	ErrNotConnected = workshop.ErrNotConnected

	// ErrNotConfigured is returned by cloud operations when no backend
	// is configured.
	ErrNotConfigured = workshop.ErrNotConfigured
)

// Config wires a Coordinator.
type Config struct {
	// Store is the shared workshop store. Required.
	Store *workshop.Store

	// Monitor reports connectivity. Nil means always online.
	Monitor netstatus.Monitor

	// Debounce overrides DefaultDebounce.
	Debounce time.Duration

	// System hosts the debounce actor. Nil gives the coordinator a
	// private system.
	System *actor.ActorSystem

	Log *slog.Logger
}

// Coordinator drives cloud sync for one store.
type Coordinator struct {
	store      *workshop.Store
	monitor    netstatus.Monitor
	configured bool
	log        *slog.Logger

	system     *actor.ActorSystem
	ownsSystem bool
	ref        actor.ActorRef[syncMsg, bool]

	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once

	mu      sync.Mutex
	unsubs  []func()
	stopped bool

	// pushes tracks in-flight auto pushes; pushMu keeps them from
	// overlapping.
	pushes sync.WaitGroup
	pushMu sync.Mutex
}

// New creates a coordinator and spawns its debounce actor. Nothing is
// watched until Start.
func New(cfg Config) *Coordinator {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	monitor := cfg.Monitor
	if monitor == nil {
		monitor = netstatus.Static{}
	}
	delay := cfg.Debounce
	if delay <= 0 {
		delay = DefaultDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		store:      cfg.Store,
		monitor:    monitor,
		configured: cfg.Store.Configured(),
		log:        log.With("component", "cloud_sync"),
		system:     cfg.System,
		ctx:        ctx,
		cancel:     cancel,
	}
	if c.system == nil {
		c.system = actor.NewActorSystem()
		c.ownsSystem = true
	}

	d := &debouncer{
		delay:      delay,
		configured: c.configured,
		push:       c.launchPush,
	}
	d.fire = func(gen uint64) {
		c.ref.Tell(c.ctx, timerFired{gen: gen})
	}

	c.ref = actor.Spawn[syncMsg, bool](c.system, actorID, d)

	return c
}

// Start subscribes to the store and to connectivity changes. If the runtime
// is offline right now the status becomes offline at once. A store that is
// already connected and dirty gets a push scheduled.
func (c *Coordinator) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		unsubStore := c.store.Subscribe(c.onStoreChange)
		unsubNet := c.monitor.Subscribe(c.onConnectivity)

		c.mu.Lock()
		c.unsubs = append(c.unsubs, unsubStore, unsubNet)
		c.mu.Unlock()

		if !c.monitor.Online() {
			c.store.SetSyncStatus(ctx, workshop.StatusOffline)
		}

		c.ref.Tell(c.ctx, stateChanged{sync: c.store.SyncState()})

		c.log.InfoContext(ctx, "Cloud sync started",
			"configured", c.configured,
			"online", c.monitor.Online())
	})
}

// Stop unsubscribes, waits for in-flight auto pushes and stops the actor,
// which drops any pending timer.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		unsubs := c.unsubs
		c.unsubs = nil
		c.stopped = true
		c.mu.Unlock()

		for _, unsub := range unsubs {
			unsub()
		}

		c.pushes.Wait()
		c.cancel()

		if c.ownsSystem {
			ctx, cancel := context.WithTimeout(
				context.Background(), 5*time.Second,
			)
			defer cancel()

			if err := c.system.Shutdown(ctx); err != nil {
				c.log.Warn("Cloud sync actor did not stop",
					"error", err)
			}
		} else {
			c.system.StopAndRemove(actorID)
		}
	})
}

// onStoreChange forwards changes that can affect the debounce condition.
// Status-only changes are ignored, so a sync's own bookkeeping never
// reschedules it.
func (c *Coordinator) onStoreChange(ch workshop.Change) {
	relevant := workshop.FieldRecords | workshop.FieldConnection |
		workshop.FieldDirty
	if !ch.Fields.Has(relevant) {
		return
	}

	c.ref.Tell(c.ctx, stateChanged{sync: ch.State.Sync})
}

// onConnectivity applies online/offline transitions. Coming back online
// never triggers a sync by itself.
func (c *Coordinator) onConnectivity(online bool) {
	if !online {
		c.log.InfoContext(c.ctx, "Went offline")
		c.store.SetSyncStatus(c.ctx, workshop.StatusOffline)

		return
	}

	if c.store.TransitionSyncStatus(
		c.ctx, workshop.StatusOffline, workshop.StatusIdle,
	) {
		c.log.InfoContext(c.ctx, "Back online")
	}
}

// launchPush runs an auto push in the background. Failures are logged and
// recorded in the store, never returned.
func (c *Coordinator) launchPush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}

	c.pushes.Add(1)
	go func() {
		defer c.pushes.Done()

		c.pushMu.Lock()
		defer c.pushMu.Unlock()

		err := c.store.SyncToCloud(c.ctx)
		if err != nil {
			c.log.WarnContext(c.ctx, "Auto sync failed",
				"error", err)
			return
		}

		c.log.DebugContext(c.ctx, "Auto sync done")
	}()
}

// cancelTimer drops a pending auto push. It reports whether one was
// pending; a stopped actor has none.
func (c *Coordinator) cancelTimer(ctx context.Context) bool {
	cancelled, err := actorutil.AskAwait(ctx, c.ref, syncMsg(cancelTimer{}))
	if err != nil && !errors.Is(err, actor.ErrActorTerminated) {
		c.log.DebugContext(ctx, "Cannot cancel sync timer",
			"error", err)
	}

	return cancelled
}

// Pending reports whether an auto push is scheduled.
func (c *Coordinator) Pending(ctx context.Context) bool {
	return actorutil.AskOr(ctx, c.ref, syncMsg(pendingQuery{}), false)
}

// Configured reports whether a cloud backend is configured.
func (c *Coordinator) Configured() bool {
	return c.configured
}

// SyncNow pushes immediately. Without a cloud organization it fails with
// ErrNotConnected before any network call. A pending auto push is
// cancelled first so it does not repeat this one.
func (c *Coordinator) SyncNow(ctx context.Context) error {
	if !c.store.SyncState().Connected() {
		return ErrNotConnected
	}

	if c.cancelTimer(ctx) {
		c.log.DebugContext(ctx, "Manual sync replaced pending auto sync")
	}

	c.pushMu.Lock()
	defer c.pushMu.Unlock()

	return c.store.SyncToCloud(ctx)
}

// ConnectToCloud creates a remote organization named orgName, attaches the
// store to it and returns its id.
func (c *Coordinator) ConnectToCloud(ctx context.Context,
	orgName string) (string, error) {

	if !c.configured {
		return "", ErrNotConfigured
	}

	return c.store.CreateCloudOrganization(ctx, orgName)
}

// LoadFromCloud replaces the local records with the remote snapshot of
// orgID.
func (c *Coordinator) LoadFromCloud(ctx context.Context, orgID string) error {
	if !c.configured {
		return ErrNotConfigured
	}

	return c.store.LoadFromCloud(ctx, orgID)
}

// DisconnectFromCloud cancels any pending auto push and then detaches the
// store. Remote data is left alone.
func (c *Coordinator) DisconnectFromCloud(ctx context.Context) {
	c.cancelTimer(ctx)
	c.store.ClearCloudConnection(ctx)

	c.log.InfoContext(ctx, "Disconnected from cloud")
}
