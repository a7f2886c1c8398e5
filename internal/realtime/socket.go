package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"mangwale-chat/internal/model"

	"github.com/gorilla/websocket"
)

const maxInboundFrameBytes = 1 << 20

type SocketOptions struct {
	// URL of the realtime endpoint, e.g. ws://localhost:3200/ws.
	URL    string
	Header http.Header
	Dialer *websocket.Dialer

	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	HeartbeatInterval time.Duration

	Logger *log.Logger
}

// SocketTransport is the preferred transport: one gorilla websocket connection,
// re-dialed with exponential backoff whenever it drops.
type SocketTransport struct {
	observers

	opts   SocketOptions
	dialer *websocket.Dialer
	logger *log.Logger

	mu      sync.Mutex
	conn    *socketConn
	running bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// socketConn is one physical connection and its outbound queue.
type socketConn struct {
	ws   *websocket.Conn
	send chan []byte
	stop chan struct{}
	once sync.Once
}

func (c *socketConn) shutdown() {
	c.once.Do(func() {
		close(c.stop)
		_ = c.ws.Close()
	})
}

func NewSocketTransport(opts SocketOptions) *SocketTransport {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = DefaultBackoffInitial
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = DefaultBackoffMax
	}
	dialer := opts.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = 10 * time.Second
		dialer = &d
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &SocketTransport{
		opts:   opts,
		dialer: dialer,
		logger: logger,
	}
}

// Connect starts the connection loop bound to ctx. Calling it again while the
// loop is running is a no-op.
func (t *SocketTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.running {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t.running = true
	t.cancel = cancel
	t.done = make(chan struct{})

	go t.run(loopCtx, t.done)
	return nil
}

func (t *SocketTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Send queues a frame on the live connection. Frames still queued when the
// connection drops are lost.
func (t *SocketTransport) Send(frame model.Frame) error {
	t.mu.Lock()
	c := t.conn
	t.mu.Unlock()

	if c == nil {
		return ErrNotConnected
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	select {
	case <-c.stop:
		return ErrNotConnected
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return &ConnectionError{Op: "send", Err: errSendQueueFull}
	}
}

// Close stops reconnecting and closes the connection. It must not be called from
// inside an observer callback.
func (t *SocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

func (t *SocketTransport) run(ctx context.Context, done chan struct{}) {
	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		close(done)
	}()

	backoff := NewBackoff(t.opts.BackoffInitial, t.opts.BackoffMax)

	for {
		if ctx.Err() != nil {
			return
		}

		ws, _, err := t.dialer.DialContext(ctx, t.opts.URL, t.opts.Header)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := backoff.Next()
			t.logger.Printf("⚠️ realtime: dial %s failed: %v (retry in %s)", t.opts.URL, err, delay)
			t.emitState(StateEvent{State: StateError, Err: &ConnectionError{Op: "dial", Err: err}})
			if sleepCtx(ctx, delay) != nil {
				return
			}
			continue
		}

		backoff.Reset()
		t.serve(ctx, ws)

		if ctx.Err() != nil {
			return
		}
		delay := backoff.Next()
		t.logger.Printf("🔄 realtime: reconnecting in %s", delay)
		if sleepCtx(ctx, delay) != nil {
			return
		}
	}
}

// serve runs one connection until it drops or ctx is cancelled.
func (t *SocketTransport) serve(ctx context.Context, ws *websocket.Conn) {
	c := &socketConn{
		ws:   ws,
		send: make(chan []byte, sendQueueSize),
		stop: make(chan struct{}),
	}
	ws.SetReadLimit(maxInboundFrameBytes)

	t.mu.Lock()
	t.conn = c
	t.mu.Unlock()

	t.logger.Printf("✅ realtime: connected to %s", t.opts.URL)
	t.emitState(StateEvent{State: StateConnected})

	go t.writePump(c)
	go func() {
		select {
		case <-ctx.Done():
			c.shutdown()
		case <-c.stop:
		}
	}()

	err := t.readPump(c)
	c.shutdown()

	t.mu.Lock()
	if t.conn == c {
		t.conn = nil
	}
	t.mu.Unlock()

	t.logger.Printf("❌ realtime: disconnected: %v", err)
	var cause error
	if ctx.Err() == nil {
		cause = &ConnectionError{Op: "read", Err: err}
	}
	t.emitState(StateEvent{State: StateDisconnected, Err: cause})
}

func (t *SocketTransport) readPump(c *socketConn) error {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}

		var frame model.Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			if err == nil {
				err = &MalformedFrameError{Err: errMissingEvent}
			} else {
				err = &MalformedFrameError{Err: err}
			}
			t.logger.Printf("realtime: dropping inbound frame: %v", err)
			continue
		}
		t.emitFrame(frame)
	}
}

func (t *SocketTransport) writePump(c *socketConn) {
	ticker := time.NewTicker(t.opts.HeartbeatInterval)
	defer ticker.Stop()

	ping, _ := json.Marshal(model.Frame{Event: model.EventPing})

	for {
		select {
		case <-c.stop:
			return

		case payload := <-c.send:
			if err := t.write(c, payload); err != nil {
				t.logger.Printf("realtime: write failed: %v", err)
				c.shutdown()
				return
			}

		case <-ticker.C:
			if err := t.write(c, ping); err != nil {
				t.logger.Printf("⚠️ realtime: heartbeat failed: %v", err)
				c.shutdown()
				return
			}
		}
	}
}

func (t *SocketTransport) write(c *socketConn, payload []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}
