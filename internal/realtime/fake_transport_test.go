package realtime

import (
	"context"
	"io"
	"log"
	"sync"

	"mangwale-chat/internal/model"
)

// fakeTransport records sent frames and lets tests drive state and inbound
// frames synchronously.
type fakeTransport struct {
	observers

	mu        sync.Mutex
	connected bool
	sent      []model.Frame
	connects  int
	closed    bool
	sendErr   error
	connectOn bool
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connects++
	up := f.connectOn && !f.connected
	if up {
		f.connected = true
	}
	f.mu.Unlock()
	if up {
		f.emitState(StateEvent{State: StateConnected})
	}
	return nil
}

func (f *fakeTransport) Send(frame model.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, frame)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) up() {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	f.emitState(StateEvent{State: StateConnected})
}

func (f *fakeTransport) drop(err error) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.emitState(StateEvent{State: StateDisconnected, Err: &ConnectionError{Op: "read", Err: err}})
}

func (f *fakeTransport) deliver(frame model.Frame) {
	f.emitFrame(frame)
}

func (f *fakeTransport) frames(event string) []model.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Frame
	for _, fr := range f.sent {
		if fr.Event == event {
			out = append(out, fr)
		}
	}
	return out
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func mustFrame(event string, data interface{}) model.Frame {
	frame, err := model.NewFrame(event, data)
	if err != nil {
		panic(err)
	}
	return frame
}
