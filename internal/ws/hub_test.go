package ws

import (
	"testing"
	"time"

	"mangwale-chat/internal/model"
)

func newRunningHub() *Hub {
	h := NewHub()
	go h.Run()
	return h
}

func receive(t *testing.T, c *Client) model.Frame {
	t.Helper()
	select {
	case f, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return model.Frame{}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublishReachesRoomOnly(t *testing.T) {
	h := newRunningHub()
	a, b, other := NewClient(h, nil), NewClient(h, nil), NewClient(h, nil)
	for _, c := range []*Client{a, b, other} {
		h.Register(c)
	}
	h.JoinRoom(a, "web-1")
	h.JoinRoom(b, "web-1")
	h.JoinRoom(other, "web-2")

	if got := h.RoomSize("web-1"); got != 2 {
		t.Fatalf("RoomSize = %d, want 2", got)
	}

	frame, _ := model.NewFrame(model.EventTyping, model.TypingPayload{IsTyping: true})
	h.Publish("web-1", frame)

	if got := receive(t, a); got.Event != model.EventTyping {
		t.Errorf("a got %q", got.Event)
	}
	if got := receive(t, b); got.Event != model.EventTyping {
		t.Errorf("b got %q", got.Event)
	}
	select {
	case f := <-other.send:
		t.Errorf("other room received %q", f.Event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestJoinRoomMovesClient(t *testing.T) {
	h := newRunningHub()
	c := NewClient(h, nil)
	h.Register(c)

	h.JoinRoom(c, "web-1")
	h.JoinRoom(c, "web-2")

	if h.RoomSize("web-1") != 0 || h.RoomSize("web-2") != 1 {
		t.Fatalf("rooms web-1=%d web-2=%d", h.RoomSize("web-1"), h.RoomSize("web-2"))
	}
	if c.SessionID() != "web-2" {
		t.Errorf("SessionID = %q", c.SessionID())
	}

	h.LeaveRoom(c)
	if h.RoomSize("web-2") != 0 || c.SessionID() != "" {
		t.Errorf("leave did not clear room")
	}
}

func TestUnregisteredClientIgnored(t *testing.T) {
	h := newRunningHub()
	c := NewClient(h, nil)

	h.JoinRoom(c, "web-1")
	if h.RoomSize("web-1") != 0 {
		t.Fatal("unregistered client joined a room")
	}
	frame, _ := model.NewFrame(model.EventPong, nil)
	if c.Send(frame) {
		t.Error("Send succeeded for unregistered client")
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	h := newRunningHub()
	c := NewClient(h, nil)
	h.Register(c)
	h.JoinRoom(c, "web-1")

	h.Unregister(c)

	waitUntil(t, func() bool { return h.RoomSize("web-1") == 0 })
	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
}

func TestSlowClientDropped(t *testing.T) {
	h := newRunningHub()
	c := NewClient(h, nil)
	h.Register(c)
	h.JoinRoom(c, "web-1")

	frame, _ := model.NewFrame(model.EventPong, nil)
	for i := 0; i < sendBuffer; i++ {
		if !c.Send(frame) {
			t.Fatalf("send %d rejected before buffer was full", i)
		}
	}
	h.Publish("web-1", frame)

	waitUntil(t, func() bool { return h.RoomSize("web-1") == 0 })
	if c.Send(frame) {
		t.Error("dropped client still accepts frames")
	}
}
