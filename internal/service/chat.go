package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"mangwale-chat/internal/helper"
	"mangwale-chat/internal/model"
	"mangwale-chat/internal/ws"

	"github.com/google/uuid"
)

var (
	ErrMissingSession = errors.New("session id is required")
	ErrEmptyMessage   = errors.New("message is empty")
)

// Channel says how a message reached the relay; replies to polling clients
// are also queued for GET /chat/messages.
type Channel int

const (
	ChannelSocket Channel = iota
	ChannelPoll
)

type ChatOptions struct {
	HistoryLimit int
	ReplyDelay   time.Duration
	// Responder defaults to the rule table.
	Responder Responder
}

// replyContext is how many recent messages a responder sees.
const replyContext = 20

// ChatService holds the relay's conversation logic shared by the websocket and
// REST surfaces.
type ChatService struct {
	store     model.HistoryStore
	publisher ws.RealtimePublisher
	responder Responder
	opts      ChatOptions
	newID     func() string
	now       func() time.Time

	mu      sync.Mutex
	outbox  map[string][]model.StoredMessage
	pollers map[string]bool
	wg      sync.WaitGroup
}

func NewChatService(store model.HistoryStore, publisher ws.RealtimePublisher, opts ChatOptions) *ChatService {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	responder := opts.Responder
	if responder == nil {
		responder = RuleResponder{}
	}
	return &ChatService{
		store:     store,
		publisher: publisher,
		responder: responder,
		opts:      opts,
		newID:     func() string { return "srv-" + uuid.NewString() },
		now:       time.Now,
		outbox:    make(map[string][]model.StoredMessage),
		pollers:   make(map[string]bool),
	}
}

// Join registers a socket client on a session, creating it on first use, and
// returns the history to replay. A valid token marks the session authenticated.
func (s *ChatService) Join(ctx context.Context, p model.JoinPayload) (model.JoinedPayload, *model.Session, error) {
	if strings.TrimSpace(p.SessionID) == "" {
		return model.JoinedPayload{}, nil, ErrMissingSession
	}

	session, err := s.loadOrCreate(ctx, p.SessionID)
	if err != nil {
		return model.JoinedPayload{}, nil, err
	}
	if p.Phone != "" {
		if phone, err := helper.NormalizePhone(p.Phone); err != nil {
			log.Printf("⚠️ join phone ignored for %s: %v", p.SessionID, err)
		} else {
			session.PhoneNumber = phone
		}
	}
	if p.Token != "" {
		if claims, err := ValidateAccessToken(p.Token); err != nil {
			log.Printf("⚠️ join token rejected for %s: %v", p.SessionID, err)
		} else {
			applyClaims(session, claims, p.Name)
		}
	}
	session.UpdatedAt = s.now().UnixMilli()
	if err := s.store.SaveSession(ctx, *session); err != nil {
		return model.JoinedPayload{}, nil, fmt.Errorf("save session: %w", err)
	}

	history, err := s.History(ctx, p.SessionID, s.opts.HistoryLimit)
	if err != nil && !errors.Is(err, model.ErrSessionNotFound) {
		return model.JoinedPayload{}, nil, err
	}

	log.Printf("📱 session joined: %s authenticated=%v history=%d", session.ID, session.Authenticated, len(history))
	return model.JoinedPayload{SessionID: session.ID, History: history}, session, nil
}

// Authenticate attaches verified claims to a session (REST clients send them as
// a bearer token instead of in a join frame).
func (s *ChatService) Authenticate(ctx context.Context, sessionID string, claims *Claims) error {
	session, err := s.loadOrCreate(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Authenticated {
		return nil
	}
	applyClaims(session, claims, "")
	session.UpdatedAt = s.now().UnixMilli()
	return s.store.SaveSession(ctx, *session)
}

// Send stores a user message and schedules the assistant reply. The returned
// ack carries the server id for the client's message.
func (s *ChatService) Send(ctx context.Context, p model.SendPayload, ch Channel) (model.AckPayload, error) {
	if strings.TrimSpace(p.SessionID) == "" {
		return model.AckPayload{}, ErrMissingSession
	}
	text := strings.TrimSpace(p.Message)
	if text == "" {
		return model.AckPayload{}, ErrEmptyMessage
	}

	if _, err := s.loadOrCreate(ctx, p.SessionID); err != nil {
		return model.AckPayload{}, err
	}

	msg := model.StoredMessage{
		ID:              s.newID(),
		SessionID:       p.SessionID,
		Role:            model.RoleUser,
		Content:         text,
		Timestamp:       s.now().UnixMilli(),
		ClientMessageID: p.ClientMessageID,
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return model.AckPayload{}, fmt.Errorf("store message: %w", err)
	}

	s.mu.Lock()
	s.pollers[p.SessionID] = ch == ChannelPoll
	s.mu.Unlock()

	log.Printf("📩 %s [%s] %q", p.SessionID, p.Type, text)
	s.scheduleReply(p.SessionID, text)

	return model.AckPayload{ClientMessageID: p.ClientMessageID, MessageID: msg.ID}, nil
}

// OptionClick treats a chip click like a button reply.
func (s *ChatService) OptionClick(ctx context.Context, p model.OptionClickPayload) error {
	if strings.TrimSpace(p.SessionID) == "" {
		return ErrMissingSession
	}
	if strings.TrimSpace(p.OptionID) == "" {
		return errors.New("option id is required")
	}
	if _, err := s.loadOrCreate(ctx, p.SessionID); err != nil {
		return err
	}
	log.Printf("🖱️ option %s clicked in %s", p.OptionID, p.SessionID)
	s.scheduleReply(p.SessionID, p.OptionID)
	return nil
}

// UpdateLocation records the user's location and pushes the new session state.
func (s *ChatService) UpdateLocation(ctx context.Context, sessionID string, lat, lng float64) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrMissingSession
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return fmt.Errorf("location out of range: %f,%f", lat, lng)
	}

	session, err := s.loadOrCreate(ctx, sessionID)
	if err != nil {
		return err
	}
	session.Location = &model.Location{Lat: lat, Lng: lng}
	session.UpdatedAt = s.now().UnixMilli()
	if err := s.store.SaveSession(ctx, *session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	log.Printf("📍 location for %s: %.6f,%.6f", sessionID, lat, lng)
	s.publishSession(*session)
	return nil
}

// History returns the newest messages of a session in wire form, oldest first.
func (s *ChatService) History(ctx context.Context, sessionID string, limit int) ([]model.InboundMessage, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.opts.HistoryLimit {
		limit = s.opts.HistoryLimit
	}
	stored, err := s.store.RecentMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	history := make([]model.InboundMessage, 0, len(stored))
	for _, m := range stored {
		history = append(history, m.Inbound())
	}
	return history, nil
}

// Session returns the stored session.
func (s *ChatService) Session(ctx context.Context, sessionID string) (*model.Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

// MarkPolling queues future replies for sessionID on the polling outbox.
func (s *ChatService) MarkPolling(sessionID string) {
	s.mu.Lock()
	s.pollers[sessionID] = true
	s.mu.Unlock()
}

// Drain returns and clears the replies queued for a polling client.
func (s *ChatService) Drain(sessionID string) []model.StoredMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.outbox[sessionID]
	delete(s.outbox, sessionID)
	return msgs
}

// Wait blocks until scheduled replies have been delivered.
func (s *ChatService) Wait() {
	s.wg.Wait()
}

func (s *ChatService) scheduleReply(sessionID, input string) {
	s.publish(sessionID, model.EventTyping, model.TypingPayload{SessionID: sessionID, IsTyping: true})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.opts.ReplyDelay > 0 {
			time.Sleep(s.opts.ReplyDelay)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.reply(ctx, sessionID, input); err != nil {
			log.Printf("❌ reply for %s failed: %v", sessionID, err)
			s.publish(sessionID, model.EventError, model.ErrorPayload{Code: "REPLY_FAILED", Message: "Sorry, something went wrong. Please try again."})
		}
	}()
}

func (s *ChatService) reply(ctx context.Context, sessionID, input string) error {
	session, err := s.loadOrCreate(ctx, sessionID)
	if err != nil {
		return err
	}

	history, err := s.store.RecentMessages(ctx, sessionID, replyContext)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	content, next := s.responder.Reply(ctx, *session, history, input)
	next.UpdatedAt = s.now().UnixMilli()
	if err := s.store.SaveSession(ctx, next); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	msg := model.StoredMessage{
		ID:        s.newID(),
		SessionID: sessionID,
		Role:      model.RoleAssistant,
		Content:   content,
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("store reply: %w", err)
	}

	s.mu.Lock()
	if s.pollers[sessionID] {
		s.outbox[sessionID] = append(s.outbox[sessionID], msg)
	}
	s.mu.Unlock()

	s.publish(sessionID, model.EventMessage, model.InboundMessage{
		ID:        msg.ID,
		Sender:    string(model.RoleAssistant),
		Text:      msg.Content,
		Timestamp: msg.Timestamp,
	})
	if next.CurrentStep != session.CurrentStep || next.Module != session.Module {
		s.publishSession(next)
	}
	return nil
}

func (s *ChatService) loadOrCreate(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, model.ErrSessionNotFound) {
		return nil, fmt.Errorf("load session: %w", err)
	}

	now := s.now().UnixMilli()
	session = &model.Session{
		ID:          sessionID,
		Platform:    model.PlatformWeb,
		CurrentStep: "welcome",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.SaveSession(ctx, *session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	log.Printf("🆕 session created: %s", sessionID)
	return session, nil
}

func (s *ChatService) publishSession(session model.Session) {
	session.AuthToken = ""
	s.publish(session.ID, model.EventSessionUpdate, session)
}

func (s *ChatService) publish(sessionID, event string, data interface{}) {
	if s.publisher == nil {
		return
	}
	frame, err := model.NewFrame(event, data)
	if err != nil {
		log.Printf("ws: failed to encode %s: %v", event, err)
		return
	}
	s.publisher.Publish(sessionID, frame)
}

func applyClaims(session *model.Session, claims *Claims, name string) {
	session.Authenticated = true
	session.UserName = claims.Username
	if name != "" {
		session.UserName = name
	}
	if phone, err := helper.NormalizePhone(claims.Phone); err == nil {
		session.PhoneNumber = phone
	}
}
