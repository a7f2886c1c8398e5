package model

import (
	"encoding/json"
	"fmt"
)

// Event names on the realtime channel.
const (
	EventSessionJoin    = "session:join"
	EventSessionJoined  = "session:joined"
	EventSessionLeave   = "session:leave"
	EventSessionUpdate  = "session:update"
	EventMessageSend    = "message:send"
	EventMessage        = "message"
	EventMessageAck     = "message:ack"
	EventLocationUpdate = "location:update"
	EventTyping         = "typing"
	EventOptionClick    = "option:click"
	EventError          = "error"
	EventPing           = "ping"
	EventPong           = "pong"
)

const (
	MessageTypeText        = "text"
	MessageTypeButtonClick = "button_click"
)

// Frame is the envelope for everything sent over the realtime channel.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame encodes data as the payload of an event frame. A nil data produces a
// frame without payload (ping/pong).
func NewFrame(event string, data interface{}) (Frame, error) {
	if data == nil {
		return Frame{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return Frame{Event: event, Data: raw}, nil
}

// Decode unmarshals the frame payload into v.
func (f Frame) Decode(v interface{}) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%s frame has no payload", f.Event)
	}
	return json.Unmarshal(f.Data, v)
}

type JoinPayload struct {
	SessionID string `json:"sessionId"`
	UserID    int64  `json:"userId,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Token     string `json:"token,omitempty"`
	Name      string `json:"name,omitempty"`
}

type JoinedPayload struct {
	SessionID string           `json:"sessionId"`
	History   []InboundMessage `json:"history"`
}

type LeavePayload struct {
	SessionID string `json:"sessionId"`
}

type SendPayload struct {
	Message         string   `json:"message"`
	SessionID       string   `json:"sessionId"`
	Platform        Platform `json:"platform"`
	Type            string   `json:"type"`
	Action          string   `json:"action,omitempty"`
	Module          string   `json:"module,omitempty"`
	ClientMessageID string   `json:"clientMessageId,omitempty"`
}

type LocationPayload struct {
	SessionID string  `json:"sessionId"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

type TypingPayload struct {
	SessionID string `json:"sessionId,omitempty"`
	IsTyping  bool   `json:"isTyping"`
}

type OptionClickPayload struct {
	SessionID string          `json:"sessionId"`
	OptionID  string          `json:"optionId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type AckPayload struct {
	ClientMessageID string `json:"clientMessageId"`
	MessageID       string `json:"messageId"`
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// InboundMessage is a message as delivered by the backend, live or from history.
// Backends are inconsistent about sender/role and text/content, so both are accepted.
type InboundMessage struct {
	ID string `json:"id,omitempty"`
	// ClientMessageID echoes the local id of a user message sent from this
	// device, so a replay can be matched to its optimistic echo.
	ClientMessageID string `json:"clientMessageId,omitempty"`

	Sender    string         `json:"sender,omitempty"`
	Role      Role           `json:"role,omitempty"`
	Text      string         `json:"text,omitempty"`
	Content   string         `json:"content,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"`
	Buttons   []OptionButton `json:"buttons,omitempty"`
	Cards     []ProductCard  `json:"cards,omitempty"`
}

// Body returns the raw text of the message.
func (m InboundMessage) Body() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Content
}

// FromUser reports whether the message was authored by the user.
func (m InboundMessage) FromUser() bool {
	return m.Sender == string(RoleUser) || m.Role == RoleUser
}
