package realtime

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mangwale-chat/internal/model"
)

type stubMaps struct {
	address string
	err     error
}

func (s stubMaps) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	return s.address, s.err
}

func newTestDispatcher(tr *fakeTransport, maps MapsProvider) (*Dispatcher, *Reconciler) {
	r := NewReconciler()
	d := NewDispatcher(tr, r, model.PlatformWeb, maps, quietLogger())
	return d, r
}

func TestDispatcherSendText(t *testing.T) {
	tr := &fakeTransport{connected: true}
	d, r := newTestDispatcher(tr, nil)

	if err := d.SendText("hi", "web-1700000000000"); err != nil {
		t.Fatalf("send text: %v", err)
	}

	sent := tr.frames(model.EventMessageSend)
	if len(sent) != 1 {
		t.Fatalf("expected 1 send frame, got %d", len(sent))
	}
	var p model.SendPayload
	if err := sent[0].Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Message != "hi" || p.SessionID != "web-1700000000000" || p.Platform != model.PlatformWeb || p.Type != model.MessageTypeText {
		t.Fatalf("unexpected payload %+v", p)
	}

	msgs := r.Messages()
	if len(msgs) != 1 || msgs[0].Role != model.RoleUser || msgs[0].Content != "hi" {
		t.Fatalf("expected local echo, got %+v", msgs)
	}
	if msgs[0].ID != p.ClientMessageID {
		t.Fatalf("expected client message id %q to match echo id %q", p.ClientMessageID, msgs[0].ID)
	}
	if !r.Typing() {
		t.Fatal("expected typing after send")
	}
	if got := r.Pending(); len(got) != 1 {
		t.Fatalf("expected 1 pending message, got %v", got)
	}
}

func TestDispatcherRejectsEmptyText(t *testing.T) {
	tr := &fakeTransport{connected: true}
	d, r := newTestDispatcher(tr, nil)

	for _, text := range []string{"", "   ", "\n\t"} {
		if err := d.SendText(text, "s"); !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("%q: expected ErrEmptyMessage, got %v", text, err)
		}
	}
	if len(tr.frames(model.EventMessageSend)) != 0 {
		t.Fatal("expected no frames for empty text")
	}
	if r.Len() != 0 {
		t.Fatal("expected no local echo for empty text")
	}
}

func TestDispatcherNotConnected(t *testing.T) {
	tr := &fakeTransport{}
	d, r := newTestDispatcher(tr, nil)

	if err := d.SendText("hello", "s"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	msgs := r.Messages()
	if len(msgs) != 1 || msgs[0].Content != ConnectionLostNotice || msgs[0].Role != model.RoleAssistant {
		t.Fatalf("expected connection notice, got %+v", msgs)
	}
	if r.Typing() {
		t.Fatal("expected typing to stay off")
	}
}

func TestDispatcherSendFailure(t *testing.T) {
	tr := &fakeTransport{connected: true, sendErr: &ConnectionError{Op: "send", Err: errSendQueueFull}}
	d, r := newTestDispatcher(tr, nil)

	err := d.SendText("hello", "s")
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if r.Typing() {
		t.Fatal("expected typing cleared after failure")
	}
	msgs := r.Messages()
	if msgs[len(msgs)-1].Content != SendFailedNotice {
		t.Fatalf("expected failure notice, got %q", msgs[len(msgs)-1].Content)
	}
}

func TestDispatcherButtonClick(t *testing.T) {
	tr := &fakeTransport{connected: true}
	d, _ := newTestDispatcher(tr, nil)

	if err := d.SendButtonClick("ORDER_NOW", "ORDER_NOW", "s"); err != nil {
		t.Fatalf("button click: %v", err)
	}
	var p model.SendPayload
	if err := tr.frames(model.EventMessageSend)[0].Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Type != model.MessageTypeButtonClick || p.Action != "ORDER_NOW" || p.Message != "ORDER_NOW" {
		t.Fatalf("unexpected payload %+v", p)
	}
}

func TestDispatcherSendLocation(t *testing.T) {
	tr := &fakeTransport{connected: true}
	d, r := newTestDispatcher(tr, stubMaps{address: "MG Road, Nashik"})

	if err := d.SendLocation(context.Background(), 19.9975, 73.7898, "s"); err != nil {
		t.Fatalf("send location: %v", err)
	}

	loc := tr.frames(model.EventLocationUpdate)
	if len(loc) != 1 {
		t.Fatalf("expected 1 location frame, got %d", len(loc))
	}
	var lp model.LocationPayload
	if err := loc[0].Decode(&lp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if lp.Lat != 19.9975 || lp.Lng != 73.7898 {
		t.Fatalf("unexpected location %+v", lp)
	}

	msgs := r.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected location message, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, "19.997500, 73.789800") || !strings.Contains(msgs[0].Content, "MG Road") {
		t.Fatalf("unexpected location text %q", msgs[0].Content)
	}
}

func TestDispatcherSendLocationGeocodeFailure(t *testing.T) {
	tr := &fakeTransport{connected: true}
	d, r := newTestDispatcher(tr, stubMaps{err: errors.New("quota")})

	if err := d.SendLocation(context.Background(), 1, 2, "s"); err != nil {
		t.Fatalf("expected geocode failure to be tolerated, got %v", err)
	}
	if strings.Contains(r.Messages()[0].Content, "\n") {
		t.Fatal("expected coordinates only")
	}
}

func TestDispatcherOptionClick(t *testing.T) {
	tr := &fakeTransport{connected: true}
	d, _ := newTestDispatcher(tr, nil)

	if err := d.SendOptionClick("s", "veg", map[string]string{"size": "large"}); err != nil {
		t.Fatalf("option click: %v", err)
	}
	var p model.OptionClickPayload
	if err := tr.frames(model.EventOptionClick)[0].Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.OptionID != "veg" || string(p.Payload) != `{"size":"large"}` {
		t.Fatalf("unexpected payload %+v", p)
	}
}
