package scheduler

import "errors"

// ErrActorStopped is returned at the send site by any cast or call made
// after Stop has been invoked. Besides it, the actor's mutation surface can
// only return ctx.Err() when ctx ends while a cast waits for mailbox room:
// invalid operator input (unknown workflow, unknown bead, rejected edge) is
// logged and dropped by the handler instead, so a
// misbehaving caller can never wedge or terminate the actor.
var ErrActorStopped = errors.New("scheduler: actor stopped")
