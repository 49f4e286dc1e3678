package actor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type counterMsg struct {
	BaseMessage
	delta int
}

func (counterMsg) MessageType() string { return "counterMsg" }

// counterBehavior sums the deltas it receives.
type counterBehavior struct {
	total   int
	stopped atomic.Bool
}

func (c *counterBehavior) Receive(_ context.Context,
	msg counterMsg) fn.Result[int] {

	c.total += msg.delta
	return fn.Ok(c.total)
}

func (c *counterBehavior) OnStop(context.Context) error {
	c.stopped.Store(true)
	return nil
}

// TestActorProcessesInOrder checks that tells and asks are handled
// sequentially in arrival order.
func TestActorProcessesInOrder(t *testing.T) {
	t.Parallel()

	sys := NewActorSystem()
	behavior := &counterBehavior{}
	ref := Spawn[counterMsg, int](sys, "counter", behavior)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		ref.Tell(ctx, counterMsg{delta: 1})
	}

	total, err := ref.Ask(ctx, counterMsg{delta: 5}).Await(ctx).Unpack()
	require.NoError(t, err)
	require.Equal(t, 15, total)

	require.NoError(t, sys.Shutdown(ctx))
	require.True(t, behavior.stopped.Load())
}

// TestAskAfterShutdown checks that a stopped actor rejects asks.
func TestAskAfterShutdown(t *testing.T) {
	t.Parallel()

	sys := NewActorSystem()
	ref := Spawn[counterMsg, int](sys, "counter", &counterBehavior{})

	ctx := context.Background()
	require.NoError(t, sys.Shutdown(ctx))

	_, err := ref.Ask(ctx, counterMsg{delta: 1}).Await(ctx).Unpack()
	require.ErrorIs(t, err, ErrActorTerminated)

	// Spawning after shutdown hands back a dead reference.
	late := Spawn[counterMsg, int](sys, "late", &counterBehavior{})
	_, err = late.Ask(ctx, counterMsg{}).Await(ctx).Unpack()
	require.ErrorIs(t, err, ErrActorTerminated)
}

// TestCallerDeadlineReachesBehavior checks that the ask context carries the
// caller's deadline into Receive.
func TestCallerDeadlineReachesBehavior(t *testing.T) {
	t.Parallel()

	sys := NewActorSystem()
	defer func() {
		require.NoError(t, sys.Shutdown(context.Background()))
	}()

	ref := Spawn[counterMsg, int](sys, "slow", NewFunctionBehavior(
		func(ctx context.Context, _ counterMsg) fn.Result[int] {
			<-ctx.Done()
			return fn.Err[int](ctx.Err())
		},
	))

	ctx, cancel := context.WithTimeout(
		context.Background(), 50*time.Millisecond,
	)
	defer cancel()

	_, err := ref.Ask(ctx, counterMsg{}).Await(
		context.Background(),
	).Unpack()
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

// TestPromiseCompletesOnce checks single assignment semantics.
func TestPromiseCompletesOnce(t *testing.T) {
	t.Parallel()

	p := NewPromise[int]()
	require.True(t, p.Complete(fn.Ok(1)))
	require.False(t, p.Complete(fn.Ok(2)))

	v, err := p.Future().Await(context.Background()).Unpack()
	require.NoError(t, err)
	require.Equal(t, 1, v)

	done := make(chan int, 1)
	p.Future().OnComplete(context.Background(), func(r fn.Result[int]) {
		done <- r.UnwrapOr(-1)
	})
	require.Equal(t, 1, <-done)
}

// TestMailboxDrainAfterClose checks that envelopes left in a closed mailbox
// are still yielded by Drain.
func TestMailboxDrainAfterClose(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mb := NewChannelMailbox[counterMsg, int](ctx, 4)
	for i := 1; i <= 3; i++ {
		require.True(t, mb.TrySend(envelope[counterMsg, int]{
			message: counterMsg{delta: i},
		}))
	}

	// Drain on an open mailbox yields nothing.
	for range mb.Drain() {
		t.Fatal("drain on open mailbox")
	}

	mb.Close()
	require.True(t, mb.IsClosed())
	require.False(t, mb.TrySend(envelope[counterMsg, int]{}))

	var sum int
	for env := range mb.Drain() {
		sum += env.message.delta
	}
	require.Equal(t, 6, sum)
}
