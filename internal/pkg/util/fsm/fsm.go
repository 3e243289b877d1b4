// Package fsm adapts error-returning callbacks to the looplab/fsm callback
// signature.
package fsm

import (
	"context"

	"github.com/looplab/fsm"
)

// WrapEvent lifts an error-returning callback into an fsm.Callback, recording
// the error on the event so it surfaces from FSM.Event.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}
