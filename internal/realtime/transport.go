package realtime

import (
	"context"
	"sync"
	"time"

	"mangwale-chat/internal/model"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	writeWait                = 10 * time.Second
	sendQueueSize            = 256
)

type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "disconnected"
	}
}

// StateEvent is delivered to state observers. Err is set for StateError and,
// when known, for StateDisconnected.
type StateEvent struct {
	State State
	Err   error
}

// Transport owns exactly one physical connection to the realtime backend.
// Implementations deliver callbacks from their own goroutine, one at a time, and
// never while holding an internal lock, so observers may call Send.
type Transport interface {
	Connect(ctx context.Context) error
	Send(frame model.Frame) error
	Close() error
	Connected() bool
	OnState(fn func(StateEvent))
	OnFrame(fn func(model.Frame))
}

// observers keeps callbacks in registration order.
type observers struct {
	mu     sync.RWMutex
	states []func(StateEvent)
	frames []func(model.Frame)
}

func (o *observers) OnState(fn func(StateEvent)) {
	if fn == nil {
		return
	}
	o.mu.Lock()
	o.states = append(o.states, fn)
	o.mu.Unlock()
}

func (o *observers) OnFrame(fn func(model.Frame)) {
	if fn == nil {
		return
	}
	o.mu.Lock()
	o.frames = append(o.frames, fn)
	o.mu.Unlock()
}

func (o *observers) emitState(evt StateEvent) {
	o.mu.RLock()
	fns := append([]func(StateEvent){}, o.states...)
	o.mu.RUnlock()
	for _, fn := range fns {
		fn(evt)
	}
}

func (o *observers) emitFrame(frame model.Frame) {
	o.mu.RLock()
	fns := append([]func(model.Frame){}, o.frames...)
	o.mu.RUnlock()
	for _, fn := range fns {
		fn(frame)
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
