// Package actorutil holds small helpers for talking to actors.
package actorutil

import (
	"context"

	"github.com/septapod/agentmapper/internal/baselib/actor"
)

// AskAwait sends msg to ref and blocks until the reply is available or ctx
// ends. It unpacks the Result and returns the response or error directly.
func AskAwait[M actor.Message, R any](ctx context.Context,
	ref actor.ActorRef[M, R], msg M) (R, error) {

	return ref.Ask(ctx, msg).Await(ctx).Unpack()
}

// AskOr is AskAwait for callers that only care about a best-effort answer:
// any failure yields fallback.
func AskOr[M actor.Message, R any](ctx context.Context,
	ref actor.ActorRef[M, R], msg M, fallback R) R {

	resp, err := AskAwait(ctx, ref, msg)
	if err != nil {
		return fallback
	}

	return resp
}
