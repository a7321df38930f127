// Package fsm adapts looplab/fsm's callback signature to ordinary
// error-returning functions.
package fsm

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// WrapEvent lifts an error-returning callback into the looplab signature.
// A returned error is attached to the event so fsm.Event surfaces it.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}

// IsNoTransition reports whether err only says a guard declined the
// transition, which callers usually treat as a no-op rather than a failure.
func IsNoTransition(err error) bool {
	var noTransition fsm.NoTransitionError
	return errors.As(err, &noTransition)
}
