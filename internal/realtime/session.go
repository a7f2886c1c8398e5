package realtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"mangwale-chat/internal/model"
	"mangwale-chat/internal/storage"

	"github.com/google/uuid"
)

// Keys in the device-local store.
const (
	SessionKey  = "mangwale-chat-session-id"
	LocationKey = "mangwale-user-location"
)

// LocalStore is device-local key/value storage that survives restarts.
// Get returns storage.ErrNotFound for a missing key.
type LocalStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// AuthContext carries optional identity claims sent with a join.
type AuthContext struct {
	UserID int64
	Phone  string
	Email  string
	Token  string
	Name   string
}

// NewSessionID returns a fresh web session identifier.
func NewSessionID() string {
	return "web-" + uuid.NewString()
}

// Registry binds the persisted session id to the connection: it (re)joins on
// every connect and replays the history the backend returns.
type Registry struct {
	transport Transport
	store     LocalStore
	ingest    func(model.InboundMessage) bool
	newID     func() string
	logger    *log.Logger

	mu        sync.Mutex
	sessionID string
	auth      *AuthContext
	active    bool
}

func NewRegistry(transport Transport, store LocalStore, ingest func(model.InboundMessage) bool, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		transport: transport,
		store:     store,
		ingest:    ingest,
		newID:     NewSessionID,
		logger:    logger,
	}
}

// Resolve returns the persisted session id, generating and persisting one on
// first use so a restart mid-conversation resumes the same session.
func (r *Registry) Resolve(ctx context.Context) (string, error) {
	id, err := r.store.Get(ctx, SessionKey)
	switch {
	case err == nil && strings.TrimSpace(id) != "":
		r.logger.Printf("🔄 Reusing existing session: %s", id)
		return id, nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return "", fmt.Errorf("load session id: %w", err)
	}

	id = r.newID()
	if err := r.store.Put(ctx, SessionKey, id); err != nil {
		return "", fmt.Errorf("persist session id: %w", err)
	}
	r.logger.Printf("🆕 Created new session: %s", id)
	return id, nil
}

// Reset forgets the persisted id and creates a new one ("clear chat").
func (r *Registry) Reset(ctx context.Context) (string, error) {
	if err := r.store.Delete(ctx, SessionKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("delete session id: %w", err)
	}
	return r.Resolve(ctx)
}

// Join registers interest in sessionID. When no connection is live it starts
// one and the join frame goes out on connect; every later reconnect re-joins.
func (r *Registry) Join(ctx context.Context, sessionID string, auth *AuthContext) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("realtime: session id is required")
	}

	r.mu.Lock()
	r.sessionID = sessionID
	r.auth = auth
	r.active = true
	r.mu.Unlock()

	if !r.transport.Connected() {
		r.logger.Printf("⚠️ Socket not connected, connecting before join: %s", sessionID)
		return r.transport.Connect(ctx)
	}
	return r.sendJoin()
}

// Leave is a best-effort notification; the persisted id is kept. It stops
// re-joins but not the transport: the connection loop (and any pending
// reconnect backoff) belongs to the caller, who ends it with Transport.Close.
// Reset relies on this to leave and join over the same connection.
func (r *Registry) Leave(sessionID string) error {
	r.mu.Lock()
	if r.sessionID == sessionID {
		r.active = false
	}
	r.mu.Unlock()

	r.logger.Printf("👋 Leaving session: %s", sessionID)
	frame, err := model.NewFrame(model.EventSessionLeave, model.LeavePayload{SessionID: sessionID})
	if err != nil {
		return err
	}
	return r.transport.Send(frame)
}

// SessionID returns the session currently joined (or being joined).
func (r *Registry) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// HandleState re-emits the join on every connect.
func (r *Registry) HandleState(evt StateEvent) {
	if evt.State != StateConnected {
		return
	}
	if err := r.sendJoin(); err != nil {
		r.logger.Printf("⚠️ realtime: re-join failed: %v", err)
	}
}

// HandleJoined replays the history carried by a session:joined frame through
// the live ingestion path, in order. It returns how many messages were new.
func (r *Registry) HandleJoined(frame model.Frame) (int, error) {
	var payload model.JoinedPayload
	if err := frame.Decode(&payload); err != nil {
		return 0, &MalformedFrameError{Event: frame.Event, Err: err}
	}

	current := r.SessionID()
	if payload.SessionID != "" && current != "" && payload.SessionID != current {
		r.logger.Printf("realtime: ignoring joined ack for stale session %s", payload.SessionID)
		return 0, nil
	}

	r.logger.Printf("📥 Session joined: %s History: %d", payload.SessionID, len(payload.History))
	added := 0
	for _, msg := range payload.History {
		if r.ingest(msg) {
			added++
		}
	}
	return added, nil
}

func (r *Registry) sendJoin() error {
	r.mu.Lock()
	active, sessionID, auth := r.active, r.sessionID, r.auth
	r.mu.Unlock()

	if !active {
		return nil
	}

	payload := model.JoinPayload{SessionID: sessionID}
	if auth != nil {
		payload.UserID = auth.UserID
		payload.Phone = auth.Phone
		payload.Email = auth.Email
		payload.Token = auth.Token
		payload.Name = auth.Name
	}

	frame, err := model.NewFrame(model.EventSessionJoin, payload)
	if err != nil {
		return err
	}

	mode := "(guest)"
	if auth != nil {
		mode = "(authenticated)"
	}
	r.logger.Printf("📱 Joining session: %s %s", sessionID, mode)

	err = r.transport.Send(frame)
	if errors.Is(err, ErrNotConnected) {
		// The connected callback will join again.
		return nil
	}
	return err
}
