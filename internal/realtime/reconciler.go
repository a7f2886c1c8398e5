package realtime

import (
	"fmt"
	"sync"
	"time"

	"mangwale-chat/internal/markup"
	"mangwale-chat/internal/model"
)

// Reconciler turns inbound frames into the transcript the UI renders: it
// extracts affordances, drops duplicates by id and keeps arrival order.
// Timestamps are carried along but never used for ordering.
type Reconciler struct {
	mu       sync.Mutex
	messages []model.ChatMessage
	seen     map[string]struct{}
	pending  map[string]struct{}
	typing   bool
	now      func() time.Time
}

func NewReconciler() *Reconciler {
	return &Reconciler{
		seen:    make(map[string]struct{}),
		pending: make(map[string]struct{}),
		now:     time.Now,
	}
}

// Ingest appends an inbound message. It reports false when the message id was
// already ingested (history replay racing live delivery).
func (r *Reconciler) Ingest(in model.InboundMessage) (model.ChatMessage, bool) {
	parsed := markup.Parse(in.Body())

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	id := in.ID
	if id == "" {
		id = fmt.Sprintf("bot-%d-%d", len(r.messages), now.UnixMilli())
	}
	if _, dup := r.seen[id]; dup {
		return model.ChatMessage{}, false
	}
	// The ack may have been lost with the connection; the replayed copy still
	// names our local id, so it counts as the ack.
	if in.FromUser() && in.ClientMessageID != "" {
		if _, local := r.seen[in.ClientMessageID]; local {
			delete(r.pending, in.ClientMessageID)
			r.seen[id] = struct{}{}
			return model.ChatMessage{}, false
		}
	}

	msg := model.ChatMessage{
		ID:        id,
		Role:      model.RoleAssistant,
		Content:   parsed.Text(),
		Timestamp: in.Timestamp,
	}
	if in.FromUser() {
		msg.Role = model.RoleUser
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = now.UnixMilli()
	}
	if rich, ok := parsed.(markup.TextWithAffordances); ok {
		msg.Buttons = append(msg.Buttons, rich.Buttons...)
		msg.Cards = append(msg.Cards, rich.Cards...)
	}
	msg.Buttons = append(msg.Buttons, in.Buttons...)
	msg.Cards = append(msg.Cards, in.Cards...)

	r.seen[id] = struct{}{}
	r.messages = append(r.messages, msg)
	if msg.Role == model.RoleAssistant {
		r.typing = false
	}
	return msg, true
}

// AppendLocal adds a locally created message (optimistic echo or a notice).
// Awaiting marks it as not yet acknowledged by the backend.
func (r *Reconciler) AppendLocal(msg model.ChatMessage, awaiting bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = fmt.Sprintf("local-%d-%d", len(r.messages), r.now().UnixNano())
	}
	if _, dup := r.seen[msg.ID]; dup {
		return false
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = r.now().UnixMilli()
	}

	r.seen[msg.ID] = struct{}{}
	r.messages = append(r.messages, msg)
	if awaiting {
		r.pending[msg.ID] = struct{}{}
	}
	return true
}

// MarkDelivered records the backend's ack for a local message. The server id is
// remembered so a later replay of the same message is not shown twice.
func (r *Reconciler) MarkDelivered(clientID, serverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.pending, clientID)
	if serverID != "" {
		r.seen[serverID] = struct{}{}
	}
}

// Pending lists local message ids the backend has not acknowledged, in
// transcript order.
func (r *Reconciler) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for _, msg := range r.messages {
		if _, ok := r.pending[msg.ID]; ok {
			ids = append(ids, msg.ID)
		}
	}
	return ids
}

func (r *Reconciler) SetTyping(v bool) {
	r.mu.Lock()
	r.typing = v
	r.mu.Unlock()
}

func (r *Reconciler) Typing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.typing
}

// Messages returns a copy of the transcript.
func (r *Reconciler) Messages() []model.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.ChatMessage, len(r.messages))
	copy(out, r.messages)
	return out
}

func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// Reset clears the transcript. Only used on a full session reset.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = nil
	r.seen = make(map[string]struct{})
	r.pending = make(map[string]struct{})
	r.typing = false
}
