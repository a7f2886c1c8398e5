package model

import (
	"context"
	"errors"
	"sync"
)

var ErrSessionNotFound = errors.New("session not found")

// StoredMessage is one persisted transcript entry on the relay.
type StoredMessage struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`

	// ClientMessageID is the sender's local id for user messages.
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

// Inbound converts a stored message to its wire form for history replay.
func (m StoredMessage) Inbound() InboundMessage {
	return InboundMessage{
		ID:              m.ID,
		ClientMessageID: m.ClientMessageID,
		Role:            m.Role,
		Content:         m.Content,
		Timestamp:       m.Timestamp,
	}
}

// HistoryStore persists chat sessions and their transcript.
type HistoryStore interface {
	AppendMessage(ctx context.Context, msg StoredMessage) error
	// RecentMessages returns up to limit of the newest messages, oldest first.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]StoredMessage, error)
	SaveSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
}

// MemoryHistoryStore keeps history in process memory.
type MemoryHistoryStore struct {
	mu       sync.RWMutex
	messages map[string][]StoredMessage
	sessions map[string]Session
}

func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{
		messages: make(map[string][]StoredMessage),
		sessions: make(map[string]Session),
	}
}

func (s *MemoryHistoryStore) AppendMessage(ctx context.Context, msg StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	return nil
}

func (s *MemoryHistoryStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]StoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]StoredMessage, len(all))
	copy(out, all)
	return out, nil
}

func (s *MemoryHistoryStore) SaveSession(ctx context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *MemoryHistoryStore) GetSession(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}
