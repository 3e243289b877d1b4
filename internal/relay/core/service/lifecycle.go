package service

import (
	"context"
	"errors"

	"github.com/looplab/fsm"

	fsmutil "github.com/Alanbenny123/bustrackingnew/internal/pkg/util/fsm"
	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/model"
)

// Connection states.
const (
	StateConnecting  = "connecting"
	StateEstablished = "established"
	StateClosed      = "closed"
)

const (
	// EventEstablish moves a freshly accepted connection into service.
	EventEstablish = "event_establish"
	// EventClose is the single terminal transition; side effects (offline
	// marking, subscription teardown) hang off entering the closed state.
	EventClose = "event_close"
)

// lifecycle is the per-connection state machine. Closed is terminal: a second
// close is rejected by the machine, which keeps the teardown cascade from
// running twice.
type lifecycle struct {
	*fsm.FSM
}

func newLifecycle(onClose func()) *lifecycle {
	l := &lifecycle{}

	events := fsm.Events{
		{Name: EventEstablish, Src: []string{StateConnecting}, Dst: StateEstablished},
		{Name: EventClose, Src: []string{StateConnecting, StateEstablished}, Dst: StateClosed},
	}

	callbacks := fsm.Callbacks{
		"enter_" + StateClosed: fsmutil.WrapEvent(func(ctx context.Context, e *fsm.Event) error {
			onClose()
			return nil
		}),
	}

	l.FSM = fsm.NewFSM(StateConnecting, events, callbacks)
	return l
}

func (l *lifecycle) establish(ctx context.Context) error {
	return l.Event(ctx, EventEstablish)
}

// shutdown drives the connection to closed. Closing an already-closed
// connection reports ErrConnectionClosed without re-running the cascade.
func (l *lifecycle) shutdown(ctx context.Context) error {
	err := l.Event(ctx, EventClose)
	if err == nil {
		return nil
	}
	var invalid fsm.InvalidEventError
	if errors.As(err, &invalid) {
		return model.ErrConnectionClosed
	}
	return err
}
