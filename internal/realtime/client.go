// Package realtime is the chat session client: one connection to the
// conversational backend, session (re)join with history replay, transcript
// reconciliation and outbound commands.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"mangwale-chat/internal/model"
)

type EventKind int

const (
	EventStatus EventKind = iota
	EventMessages
	EventTyping
	EventSession
)

// Event tells the UI something changed. It carries no transcript; read it with
// Messages.
type Event struct {
	Kind    EventKind
	State   State
	Err     error
	Session *model.Session
}

type Options struct {
	Transport Transport
	Store     LocalStore
	Platform  model.Platform
	Auth      *AuthContext
	Maps      MapsProvider
	Logger    *log.Logger
}

// Client is constructed and owned by the application; Start mounts it and Close
// disposes it. There is no package-level instance.
type Client struct {
	transport  Transport
	store      LocalStore
	registry   *Registry
	reconciler *Reconciler
	dispatcher *Dispatcher
	logger     *log.Logger

	mu        sync.Mutex
	auth      *AuthContext
	session   *model.Session
	outage    bool
	listeners []func(Event)
}

func New(opts Options) (*Client, error) {
	if opts.Transport == nil {
		return nil, errors.New("realtime: transport is required")
	}
	if opts.Store == nil {
		return nil, errors.New("realtime: local store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	c := &Client{
		transport:  opts.Transport,
		store:      opts.Store,
		reconciler: NewReconciler(),
		logger:     logger,
		auth:       opts.Auth,
	}
	c.registry = NewRegistry(opts.Transport, opts.Store, c.ingest, logger)
	c.dispatcher = NewDispatcher(opts.Transport, c.reconciler, opts.Platform, opts.Maps, logger)

	opts.Transport.OnState(c.handleState)
	opts.Transport.OnFrame(c.handleFrame)
	return c, nil
}

// OnEvent registers a change listener. Listeners run on the transport
// goroutine or the caller's goroutine and must not block.
func (c *Client) OnEvent(fn func(Event)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Start resolves the persisted session and joins it, connecting first if
// needed. ctx bounds the connection's lifetime.
func (c *Client) Start(ctx context.Context) error {
	sessionID, err := c.registry.Resolve(ctx)
	if err != nil {
		return err
	}
	return c.registry.Join(ctx, sessionID, c.currentAuth())
}

// Close leaves the session and tears the connection down, cancelling any
// pending reconnect. Unsent frames are dropped.
func (c *Client) Close() error {
	if sessionID := c.registry.SessionID(); sessionID != "" && c.transport.Connected() {
		if err := c.registry.Leave(sessionID); err != nil {
			c.logger.Printf("realtime: leave %s: %v", sessionID, err)
		}
	}
	return c.transport.Close()
}

func (c *Client) SessionID() string {
	return c.registry.SessionID()
}

func (c *Client) Connected() bool {
	return c.transport.Connected()
}

func (c *Client) Messages() []model.ChatMessage {
	return c.reconciler.Messages()
}

func (c *Client) Typing() bool {
	return c.reconciler.Typing()
}

// Pending lists local messages not yet acknowledged by the backend.
func (c *Client) Pending() []string {
	return c.reconciler.Pending()
}

// Session returns the last server-side session snapshot, if any.
func (c *Client) Session() *model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

func (c *Client) SendText(text string) error {
	err := c.dispatcher.SendText(text, c.SessionID())
	if !errors.Is(err, ErrEmptyMessage) {
		c.notify(Event{Kind: EventMessages})
	}
	return err
}

// ClickButton sends a button reply. Login buttons are not sent; they return
// loginRequired so the caller can show its login flow.
func (c *Client) ClickButton(btn model.OptionButton) (loginRequired bool, err error) {
	if model.IsLoginAction(btn.Value) {
		return true, nil
	}
	action := btn.ID
	if action == "" {
		action = btn.Value
	}
	err = c.dispatcher.SendButtonClick(btn.Value, action, c.SessionID())
	c.notify(Event{Kind: EventMessages})
	return false, err
}

// ShareLocation sends the location update and message, and remembers the last
// location on the device.
func (c *Client) ShareLocation(ctx context.Context, lat, lng float64) error {
	err := c.dispatcher.SendLocation(ctx, lat, lng, c.SessionID())
	c.notify(Event{Kind: EventMessages})

	raw, mErr := json.Marshal(model.Location{Lat: lat, Lng: lng})
	if mErr == nil {
		if pErr := c.store.Put(ctx, LocationKey, string(raw)); pErr != nil {
			c.logger.Printf("⚠️ failed to persist location: %v", pErr)
		}
	}
	return err
}

func (c *Client) SetTyping(isTyping bool) error {
	return c.dispatcher.SendTyping(c.SessionID(), isTyping)
}

func (c *Client) SelectOption(optionID string, payload interface{}) error {
	return c.dispatcher.SendOptionClick(c.SessionID(), optionID, payload)
}

// Authenticate attaches identity claims after an inline login and re-joins so
// the backend can associate the session with the user.
func (c *Client) Authenticate(ctx context.Context, auth *AuthContext) error {
	c.mu.Lock()
	c.auth = auth
	c.mu.Unlock()
	return c.registry.Join(ctx, c.SessionID(), auth)
}

// Reset clears the chat: the old session is left, the persisted id replaced
// and the transcript emptied.
func (c *Client) Reset(ctx context.Context) error {
	if old := c.SessionID(); old != "" && c.transport.Connected() {
		_ = c.registry.Leave(old)
	}
	c.reconciler.Reset()

	sessionID, err := c.registry.Reset(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	c.notify(Event{Kind: EventMessages})
	return c.registry.Join(ctx, sessionID, c.currentAuth())
}

func (c *Client) currentAuth() *AuthContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auth
}

func (c *Client) ingest(msg model.InboundMessage) bool {
	_, added := c.reconciler.Ingest(msg)
	return added
}

func (c *Client) handleState(evt StateEvent) {
	c.registry.HandleState(evt)

	switch evt.State {
	case StateConnected:
		c.mu.Lock()
		c.outage = false
		c.mu.Unlock()

	case StateDisconnected, StateError:
		if evt.Err == nil {
			break
		}
		c.mu.Lock()
		first := !c.outage
		c.outage = true
		c.mu.Unlock()
		if first {
			c.dispatcher.notice(ConnectionLostNotice)
			c.notify(Event{Kind: EventMessages})
		}
	}

	c.notify(Event{Kind: EventStatus, State: evt.State, Err: evt.Err})
}

func (c *Client) handleFrame(frame model.Frame) {
	if err := c.applyFrame(frame); err != nil {
		c.logger.Printf("realtime: dropping frame: %v", err)
	}
}

func (c *Client) applyFrame(frame model.Frame) error {
	switch frame.Event {
	case model.EventMessage:
		var msg model.InboundMessage
		if err := frame.Decode(&msg); err != nil {
			return &MalformedFrameError{Event: frame.Event, Err: err}
		}
		if _, added := c.reconciler.Ingest(msg); added {
			c.notify(Event{Kind: EventMessages})
		}

	case model.EventSessionJoined:
		added, err := c.registry.HandleJoined(frame)
		if err != nil {
			return err
		}
		if added > 0 {
			c.notify(Event{Kind: EventMessages})
		}

	case model.EventMessageAck:
		var ack model.AckPayload
		if err := frame.Decode(&ack); err != nil {
			return &MalformedFrameError{Event: frame.Event, Err: err}
		}
		c.reconciler.MarkDelivered(ack.ClientMessageID, ack.MessageID)

	case model.EventTyping:
		isTyping, err := decodeTyping(frame)
		if err != nil {
			return &MalformedFrameError{Event: frame.Event, Err: err}
		}
		c.reconciler.SetTyping(isTyping)
		c.notify(Event{Kind: EventTyping})

	case model.EventSessionUpdate:
		var session model.Session
		if err := frame.Decode(&session); err != nil {
			return &MalformedFrameError{Event: frame.Event, Err: err}
		}
		c.mu.Lock()
		c.session = &session
		c.mu.Unlock()
		c.notify(Event{Kind: EventSession, Session: &session})

	case model.EventError:
		var p model.ErrorPayload
		if err := frame.Decode(&p); err != nil {
			return &MalformedFrameError{Event: frame.Event, Err: err}
		}
		c.logger.Printf("❌ server error: %s %s", p.Code, p.Message)
		c.reconciler.SetTyping(false)
		c.dispatcher.notice(fmt.Sprintf("⚠️ %s", p.Message))
		c.notify(Event{Kind: EventMessages})

	case model.EventPong:
	default:
		c.logger.Printf("realtime: ignoring %q frame", frame.Event)
	}
	return nil
}

// decodeTyping accepts both a bare boolean and {isTyping}.
func decodeTyping(frame model.Frame) (bool, error) {
	var bare bool
	if err := json.Unmarshal(frame.Data, &bare); err == nil {
		return bare, nil
	}
	var p model.TypingPayload
	if err := frame.Decode(&p); err != nil {
		return false, err
	}
	return p.IsTyping, nil
}

func (c *Client) notify(evt Event) {
	c.mu.Lock()
	fns := append([]func(Event){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(evt)
	}
}
