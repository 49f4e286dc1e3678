package cloudsync

import (
	"github.com/septapod/agentmapper/internal/baselib/actor"
	"github.com/septapod/agentmapper/internal/workshop"
)

// syncMsg is the sealed set of messages the debounce actor accepts.
type syncMsg interface {
	actor.Message

	isSyncMsg()
}

// stateChanged carries the sync state after a store change that can affect
// the debounce condition.
type stateChanged struct {
	actor.BaseMessage

	sync workshop.SyncState
}

func (stateChanged) MessageType() string { return "stateChanged" }
func (stateChanged) isSyncMsg()          {}

// timerFired is sent by the debounce timer of generation gen.
type timerFired struct {
	actor.BaseMessage

	gen uint64
}

func (timerFired) MessageType() string { return "timerFired" }
func (timerFired) isSyncMsg()          {}

// cancelTimer drops the pending timer. The reply says whether one was
// pending.
type cancelTimer struct {
	actor.BaseMessage
}

func (cancelTimer) MessageType() string { return "cancelTimer" }
func (cancelTimer) isSyncMsg()          {}

// pendingQuery asks whether a timer is pending.
type pendingQuery struct {
	actor.BaseMessage
}

func (pendingQuery) MessageType() string { return "pendingQuery" }
func (pendingQuery) isSyncMsg()          {}
