package realtime

import (
	"context"
	"strings"
	"testing"

	"mangwale-chat/internal/model"
	"mangwale-chat/internal/storage/memory"
)

func TestRegistryResolvePersists(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	r := NewRegistry(&fakeTransport{}, store, nil, quietLogger())

	first, err := r.Resolve(ctx)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.HasPrefix(first, "web-") {
		t.Fatalf("expected web- prefix, got %q", first)
	}

	again, err := NewRegistry(&fakeTransport{}, store, nil, quietLogger()).Resolve(ctx)
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if again != first {
		t.Fatalf("expected persisted id %q, got %q", first, again)
	}

	reset, err := r.Reset(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if reset == first {
		t.Fatal("expected a new id after reset")
	}
}

func TestRegistryJoinConnectsThenJoins(t *testing.T) {
	tr := &fakeTransport{connectOn: true}
	r := NewRegistry(tr, memory.New(), nil, quietLogger())
	tr.OnState(r.HandleState)

	auth := &AuthContext{UserID: 42, Phone: "+919999999999", Token: "tok"}
	if err := r.Join(context.Background(), "web-1", auth); err != nil {
		t.Fatalf("join: %v", err)
	}

	joins := tr.frames(model.EventSessionJoin)
	if len(joins) != 1 {
		t.Fatalf("expected 1 join after connect, got %d", len(joins))
	}
	var p model.JoinPayload
	if err := joins[0].Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.SessionID != "web-1" || p.UserID != 42 || p.Token != "tok" {
		t.Fatalf("unexpected join payload %+v", p)
	}
}

func TestRegistryRejoinsOnReconnect(t *testing.T) {
	tr := &fakeTransport{connected: true}
	r := NewRegistry(tr, memory.New(), nil, quietLogger())
	tr.OnState(r.HandleState)

	if err := r.Join(context.Background(), "web-1", nil); err != nil {
		t.Fatalf("join: %v", err)
	}
	tr.drop(errStub("reset by peer"))
	tr.up()

	joins := tr.frames(model.EventSessionJoin)
	if len(joins) != 2 {
		t.Fatalf("expected join to be re-emitted, got %d joins", len(joins))
	}
	var p model.JoinPayload
	if err := joins[1].Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.SessionID != "web-1" {
		t.Fatalf("expected same session id, got %q", p.SessionID)
	}
}

func TestRegistryLeaveStopsRejoin(t *testing.T) {
	tr := &fakeTransport{connected: true}
	r := NewRegistry(tr, memory.New(), nil, quietLogger())
	tr.OnState(r.HandleState)

	_ = r.Join(context.Background(), "web-1", nil)
	if err := r.Leave("web-1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	tr.drop(errStub("gone"))
	tr.up()

	if got := len(tr.frames(model.EventSessionJoin)); got != 1 {
		t.Fatalf("expected no rejoin after leave, got %d joins", got)
	}
	if got := len(tr.frames(model.EventSessionLeave)); got != 1 {
		t.Fatalf("expected leave frame, got %d", got)
	}
}

func TestRegistryHandleJoinedReplaysHistory(t *testing.T) {
	rec := NewReconciler()
	ingest := func(m model.InboundMessage) bool {
		_, ok := rec.Ingest(m)
		return ok
	}
	tr := &fakeTransport{connected: true}
	r := NewRegistry(tr, memory.New(), ingest, quietLogger())
	_ = r.Join(context.Background(), "web-1", nil)

	rec.Ingest(model.InboundMessage{ID: "h2", Text: "live first"})

	frame := mustFrame(model.EventSessionJoined, model.JoinedPayload{
		SessionID: "web-1",
		History: []model.InboundMessage{
			{ID: "h1", Role: model.RoleUser, Content: "hi"},
			{ID: "h2", Role: model.RoleAssistant, Content: "live first"},
		},
	})
	added, err := r.HandleJoined(frame)
	if err != nil {
		t.Fatalf("handle joined: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected 1 new history message, got %d", added)
	}
	if rec.Len() != 2 {
		t.Fatalf("expected 2 messages, got %d", rec.Len())
	}

	stale := mustFrame(model.EventSessionJoined, model.JoinedPayload{
		SessionID: "web-old",
		History:   []model.InboundMessage{{ID: "x", Content: "old"}},
	})
	if added, _ := r.HandleJoined(stale); added != 0 {
		t.Fatalf("expected stale joined ack to be ignored, got %d", added)
	}
}

type errStub string

func (e errStub) Error() string { return string(e) }
