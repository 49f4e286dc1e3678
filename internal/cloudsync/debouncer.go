package cloudsync

import (
	"context"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/septapod/agentmapper/internal/baselib/actor"
)

// pendingTimer is a scheduled auto push. gen tells a live timer from one
// that was replaced after it had already fired.
type pendingTimer struct {
	gen   uint64
	timer *time.Timer
}

// debouncer owns the debounce timer. It only runs on the actor goroutine,
// so its state needs no locking.
type debouncer struct {
	delay      time.Duration
	configured bool

	// pending is nil when no timer is scheduled.
	pending *pendingTimer
	gen     uint64

	// fire is called from the timer goroutine. It must only post a
	// message back to the actor.
	fire func(gen uint64)

	// push starts an auto push. It must not block.
	push func()
}

// Receive implements actor.ActorBehavior.
func (d *debouncer) Receive(_ context.Context, msg syncMsg) fn.Result[bool] {
	switch m := msg.(type) {
	case stateChanged:
		if d.configured && m.sync.Connected() && m.sync.Dirty {
			d.schedule()
			return fn.Ok(true)
		}

		return fn.Ok(d.cancel())

	case timerFired:
		if d.pending == nil || d.pending.gen != m.gen {
			return fn.Ok(false)
		}
		d.pending = nil
		d.push()

		return fn.Ok(true)

	case cancelTimer:
		return fn.Ok(d.cancel())

	case pendingQuery:
		return fn.Ok(d.pending != nil)

	default:
		return fn.Err[bool](fmt.Errorf("unknown message type: %T", msg))
	}
}

// schedule replaces the pending timer: the old one is cancelled before the
// new one starts.
func (d *debouncer) schedule() {
	d.cancel()

	d.gen++
	gen := d.gen
	d.pending = &pendingTimer{
		gen: gen,
		timer: time.AfterFunc(d.delay, func() {
			d.fire(gen)
		}),
	}
}

// cancel stops the pending timer, if any, and reports whether there was
// one.
func (d *debouncer) cancel() bool {
	if d.pending == nil {
		return false
	}
	d.pending.timer.Stop()
	d.pending = nil

	return true
}

// OnStop implements actor.Stoppable.
func (d *debouncer) OnStop(context.Context) error {
	d.cancel()
	return nil
}

var (
	_ actor.ActorBehavior[syncMsg, bool] = (*debouncer)(nil)
	_ actor.Stoppable                    = (*debouncer)(nil)
)
