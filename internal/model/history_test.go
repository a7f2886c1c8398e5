package model

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMemoryHistoryStoreRecent(t *testing.T) {
	store := NewMemoryHistoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := store.AppendMessage(ctx, StoredMessage{
			ID:        fmt.Sprintf("m%d", i),
			SessionID: "web-1",
			Role:      RoleUser,
			Content:   fmt.Sprintf("msg %d", i),
			Timestamp: int64(i),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	recent, err := store.RecentMessages(ctx, "web-1", 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 || recent[0].ID != "m2" || recent[2].ID != "m4" {
		t.Fatalf("expected m2..m4 oldest first, got %+v", recent)
	}

	none, _ := store.RecentMessages(ctx, "web-unknown", 3)
	if len(none) != 0 {
		t.Fatalf("expected empty history, got %d", len(none))
	}
}

func TestMemoryHistoryStoreSessions(t *testing.T) {
	store := NewMemoryHistoryStore()
	ctx := context.Background()

	if _, err := store.GetSession(ctx, "web-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	if err := store.SaveSession(ctx, Session{ID: "web-1", Platform: PlatformWeb, CurrentStep: "welcome"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.GetSession(ctx, "web-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CurrentStep != "welcome" {
		t.Fatalf("unexpected session %+v", got)
	}
}

func TestStoredMessageInbound(t *testing.T) {
	in := StoredMessage{ID: "m1", Role: RoleUser, Content: "hi", Timestamp: 10}.Inbound()
	if !in.FromUser() || in.Body() != "hi" || in.ID != "m1" {
		t.Fatalf("unexpected inbound %+v", in)
	}
}

func TestFrameDecode(t *testing.T) {
	frame, err := NewFrame(EventMessageAck, AckPayload{ClientMessageID: "c1", MessageID: "s1"})
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	var ack AckPayload
	if err := frame.Decode(&ack); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ack.ClientMessageID != "c1" || ack.MessageID != "s1" {
		t.Fatalf("unexpected ack %+v", ack)
	}

	ping, _ := NewFrame(EventPing, nil)
	if err := ping.Decode(&ack); err == nil {
		t.Fatal("expected error decoding empty payload")
	}
	if IsLoginAction("HELP") || !IsLoginAction(ActionLogin) {
		t.Fatal("unexpected login action detection")
	}
}

func TestStoredMessageInboundKeepsClientID(t *testing.T) {
	in := StoredMessage{ID: "srv-1", Role: RoleUser, Content: "hi", ClientMessageID: "msg-1", Timestamp: 5}.Inbound()
	if in.ClientMessageID != "msg-1" || !in.FromUser() || in.Body() != "hi" {
		t.Fatalf("unexpected inbound %+v", in)
	}
}
