package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"mangwale-chat/internal/model"
)

type recordingPublisher struct {
	mu     sync.Mutex
	frames map[string][]model.Frame
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{frames: make(map[string][]model.Frame)}
}

func (p *recordingPublisher) Publish(sessionID string, frame model.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames[sessionID] = append(p.frames[sessionID], frame)
}

func (p *recordingPublisher) events(sessionID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, f := range p.frames[sessionID] {
		out = append(out, f.Event)
	}
	return out
}

func (p *recordingPublisher) last(sessionID, event string) (model.Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	frames := p.frames[sessionID]
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Event == event {
			return frames[i], true
		}
	}
	return model.Frame{}, false
}

func newTestService() (*ChatService, *recordingPublisher) {
	pub := newRecordingPublisher()
	return NewChatService(model.NewMemoryHistoryStore(), pub, ChatOptions{HistoryLimit: 10}), pub
}

func withSecret(t *testing.T, secret string) {
	t.Helper()
	InitAuthConfig(secret, time.Hour)
	t.Cleanup(func() { InitAuthConfig("", 0) })
}

func TestSendRepliesOverSocket(t *testing.T) {
	svc, pub := newTestService()
	ctx := context.Background()

	ack, err := svc.Send(ctx, model.SendPayload{
		SessionID:       "web-1",
		Message:         "  hi ",
		Type:            model.MessageTypeText,
		ClientMessageID: "local-1",
	}, ChannelSocket)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	svc.Wait()

	if ack.ClientMessageID != "local-1" || !strings.HasPrefix(ack.MessageID, "srv-") {
		t.Fatalf("ack = %+v", ack)
	}

	events := pub.events("web-1")
	if len(events) < 2 || events[0] != model.EventTyping || events[1] != model.EventMessage {
		t.Fatalf("events = %v, want typing then message", events)
	}

	frame, _ := pub.last("web-1", model.EventMessage)
	var msg model.InboundMessage
	if err := frame.Decode(&msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.FromUser() || !strings.Contains(msg.Body(), "Welcome to Mangwale") {
		t.Errorf("reply = %+v", msg)
	}

	if queued := svc.Drain("web-1"); len(queued) != 0 {
		t.Errorf("socket session queued %d polled replies", len(queued))
	}
}

func TestSendQueuesReplyForPolling(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.Send(context.Background(), model.SendPayload{SessionID: "web-2", Message: "help"}, ChannelPoll); err != nil {
		t.Fatalf("Send: %v", err)
	}
	svc.Wait()

	queued := svc.Drain("web-2")
	if len(queued) != 1 {
		t.Fatalf("queued = %d, want 1", len(queued))
	}
	if queued[0].Role != model.RoleAssistant || !strings.Contains(queued[0].Content, "[btn:") {
		t.Errorf("queued reply = %+v", queued[0])
	}
	if again := svc.Drain("web-2"); len(again) != 0 {
		t.Errorf("second drain = %d, want 0", len(again))
	}
}

func TestSendValidation(t *testing.T) {
	svc, pub := newTestService()
	ctx := context.Background()

	if _, err := svc.Send(ctx, model.SendPayload{Message: "hi"}, ChannelSocket); !errors.Is(err, ErrMissingSession) {
		t.Errorf("missing session err = %v", err)
	}
	if _, err := svc.Send(ctx, model.SendPayload{SessionID: "web-3", Message: "   "}, ChannelSocket); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("empty message err = %v", err)
	}
	svc.Wait()
	if events := pub.events("web-3"); len(events) != 0 {
		t.Errorf("rejected send published %v", events)
	}
}

func TestJoinReplaysHistory(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Send(ctx, model.SendPayload{SessionID: "web-4", Message: "hi", ClientMessageID: "msg-1"}, ChannelSocket); err != nil {
		t.Fatalf("Send: %v", err)
	}
	svc.Wait()

	joined, session, err := svc.Join(ctx, model.JoinPayload{SessionID: "web-4"})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if session.Authenticated {
		t.Error("guest join should not authenticate")
	}
	if len(joined.History) != 2 {
		t.Fatalf("history = %d, want 2", len(joined.History))
	}
	if !joined.History[0].FromUser() || joined.History[1].FromUser() {
		t.Errorf("history order wrong: %+v", joined.History)
	}
	if joined.History[0].ClientMessageID != "msg-1" {
		t.Errorf("replayed user message lost its client id: %+v", joined.History[0])
	}
}

func TestJoinNewSessionHasEmptyHistory(t *testing.T) {
	svc, _ := newTestService()

	joined, session, err := svc.Join(context.Background(), model.JoinPayload{SessionID: "web-new", Phone: "98765 43210"})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if len(joined.History) != 0 {
		t.Errorf("history = %v", joined.History)
	}
	if session.PhoneNumber != "+919876543210" || session.CurrentStep != "welcome" {
		t.Errorf("session = %+v", session)
	}

	if _, _, err := svc.Join(context.Background(), model.JoinPayload{}); !errors.Is(err, ErrMissingSession) {
		t.Errorf("empty join err = %v", err)
	}
}

func TestJoinWithToken(t *testing.T) {
	withSecret(t, "test-secret")
	svc, _ := newTestService()

	token, err := GenerateAccessToken(42, "asha", "+919800000000")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	_, session, err := svc.Join(context.Background(), model.JoinPayload{SessionID: "web-5", Token: token})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if !session.Authenticated || session.UserName != "asha" || session.PhoneNumber != "+919800000000" {
		t.Errorf("session = %+v", session)
	}

	_, guest, err := svc.Join(context.Background(), model.JoinPayload{SessionID: "web-6", Token: "garbage"})
	if err != nil {
		t.Fatalf("Join with bad token: %v", err)
	}
	if guest.Authenticated {
		t.Error("bad token should leave the session as guest")
	}
}

func TestAuthenticatedFoodOrderShowsCards(t *testing.T) {
	svc, pub := newTestService()
	ctx := context.Background()

	if err := svc.Authenticate(ctx, "web-7", &Claims{UserID: 1, Username: "ravi"}); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := svc.Send(ctx, model.SendPayload{SessionID: "web-7", Message: ActionOrderFood, Type: model.MessageTypeButtonClick}, ChannelSocket); err != nil {
		t.Fatalf("Send: %v", err)
	}
	svc.Wait()

	frame, ok := pub.last("web-7", model.EventMessage)
	if !ok {
		t.Fatal("no reply published")
	}
	var msg model.InboundMessage
	_ = frame.Decode(&msg)
	if !strings.Contains(msg.Body(), "[card:") {
		t.Errorf("reply has no cards: %q", msg.Body())
	}

	if _, ok := pub.last("web-7", model.EventSessionUpdate); !ok {
		t.Error("module change should publish session:update")
	}
	session, _ := svc.Session(ctx, "web-7")
	if session.Module != "food" || session.CurrentStep != "browsing" {
		t.Errorf("session = %+v", session)
	}
}

func TestUpdateLocation(t *testing.T) {
	svc, pub := newTestService()
	ctx := context.Background()

	if err := svc.UpdateLocation(ctx, "web-8", 120, 10); err == nil {
		t.Error("expected out of range error")
	}
	if err := svc.UpdateLocation(ctx, "", 1, 1); !errors.Is(err, ErrMissingSession) {
		t.Errorf("missing session err = %v", err)
	}

	if err := svc.UpdateLocation(ctx, "web-8", 19.9975, 73.7898); err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	frame, ok := pub.last("web-8", model.EventSessionUpdate)
	if !ok {
		t.Fatal("no session:update published")
	}
	var session model.Session
	if err := frame.Decode(&session); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if session.Location == nil || session.Location.Lat != 19.9975 {
		t.Errorf("published session = %+v", session)
	}
}

func TestOptionClickReplies(t *testing.T) {
	svc, pub := newTestService()

	if err := svc.OptionClick(context.Background(), model.OptionClickPayload{SessionID: "web-9", OptionID: ActionTrackOrder}); err != nil {
		t.Fatalf("OptionClick: %v", err)
	}
	svc.Wait()

	frame, ok := pub.last("web-9", model.EventMessage)
	if !ok {
		t.Fatal("no reply published")
	}
	var msg model.InboundMessage
	_ = frame.Decode(&msg)
	if !strings.Contains(msg.Body(), "no active orders") {
		t.Errorf("reply = %q", msg.Body())
	}

	if err := svc.OptionClick(context.Background(), model.OptionClickPayload{SessionID: "web-9"}); err == nil {
		t.Error("expected error for empty option id")
	}
}

func TestHistoryUnknownSession(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.History(context.Background(), "nope", 0); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

type scriptedResponder struct {
	mu      sync.Mutex
	history []model.StoredMessage
}

func (r *scriptedResponder) Reply(ctx context.Context, session model.Session, history []model.StoredMessage, input string) (string, model.Session) {
	r.mu.Lock()
	r.history = history
	r.mu.Unlock()
	return "echo: " + input, session
}

func TestSendUsesConfiguredResponder(t *testing.T) {
	responder := &scriptedResponder{}
	svc := NewChatService(model.NewMemoryHistoryStore(), newRecordingPublisher(), ChatOptions{Responder: responder})
	ctx := context.Background()

	if _, err := svc.Send(ctx, model.SendPayload{SessionID: "web-9", Message: "what time is it"}, ChannelSocket); err != nil {
		t.Fatalf("Send: %v", err)
	}
	svc.Wait()

	responder.mu.Lock()
	history := responder.history
	responder.mu.Unlock()
	if len(history) != 1 || history[0].Content != "what time is it" {
		t.Fatalf("responder history = %+v", history)
	}

	stored, err := svc.History(ctx, "web-9", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(stored) != 2 || stored[1].Body() != "echo: what time is it" {
		t.Fatalf("history = %+v", stored)
	}
}
