package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"mangwale-chat/internal/model"

	"github.com/google/uuid"
)

const (
	ConnectionLostNotice = "Connection lost. Please refresh the page."
	SendFailedNotice     = "Sorry, I encountered an error. Please try again."
)

// MapsProvider turns coordinates into a readable address. It is injected so
// the core never depends on a particular maps SDK.
type MapsProvider interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

// Dispatcher turns user intents into outbound frames. It never gates on auth:
// the backend asks for login through a button when it needs one.
type Dispatcher struct {
	transport  Transport
	reconciler *Reconciler
	platform   model.Platform
	maps       MapsProvider
	newID      func() string
	logger     *log.Logger
}

func NewDispatcher(transport Transport, reconciler *Reconciler, platform model.Platform, maps MapsProvider, logger *log.Logger) *Dispatcher {
	if platform == "" {
		platform = model.PlatformWeb
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		transport:  transport,
		reconciler: reconciler,
		platform:   platform,
		maps:       maps,
		newID:      func() string { return "msg-" + uuid.NewString() },
		logger:     logger,
	}
}

// SendText echoes the message locally, then transmits it.
func (d *Dispatcher) SendText(text, sessionID string) error {
	return d.sendMessage(text, sessionID, model.MessageTypeText, "")
}

// SendButtonClick sends a structured reply; actionID identifies the button.
func (d *Dispatcher) SendButtonClick(value, actionID, sessionID string) error {
	return d.sendMessage(value, sessionID, model.MessageTypeButtonClick, actionID)
}

// SendLocation emits a location:update and a readable location message. Both
// are attempted; a failure of the second does not undo the first.
func (d *Dispatcher) SendLocation(ctx context.Context, lat, lng float64, sessionID string) error {
	var errs []error

	frame, err := model.NewFrame(model.EventLocationUpdate, model.LocationPayload{
		SessionID: sessionID,
		Lat:       lat,
		Lng:       lng,
	})
	if err == nil {
		d.logger.Printf("📍 Updating location: %s %.6f,%.6f", sessionID, lat, lng)
		err = d.transport.Send(frame)
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("location update: %w", err))
	}

	summary := fmt.Sprintf("📍 My current location is: %.6f, %.6f", lat, lng)
	if d.maps != nil {
		address, err := d.maps.ReverseGeocode(ctx, lat, lng)
		if err != nil {
			d.logger.Printf("⚠️ reverse geocode failed: %v", err)
		} else if address = strings.TrimSpace(address); address != "" {
			summary += "\n" + address
		}
	}

	if err := d.SendText(summary, sessionID); err != nil {
		errs = append(errs, fmt.Errorf("location message: %w", err))
	}
	return errors.Join(errs...)
}

// SendTyping is a best-effort presence hint.
func (d *Dispatcher) SendTyping(sessionID string, isTyping bool) error {
	frame, err := model.NewFrame(model.EventTyping, model.TypingPayload{SessionID: sessionID, IsTyping: isTyping})
	if err != nil {
		return err
	}
	return d.transport.Send(frame)
}

// SendOptionClick reports a click on a server-defined option chip.
func (d *Dispatcher) SendOptionClick(sessionID, optionID string, payload interface{}) error {
	p := model.OptionClickPayload{SessionID: sessionID, OptionID: optionID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode option payload: %w", err)
		}
		p.Payload = raw
	}
	frame, err := model.NewFrame(model.EventOptionClick, p)
	if err != nil {
		return err
	}
	d.logger.Printf("🖱️ Handling option click: %s", optionID)
	return d.transport.Send(frame)
}

func (d *Dispatcher) sendMessage(text, sessionID, kind, action string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	if !d.transport.Connected() {
		d.notice(ConnectionLostNotice)
		return ErrNotConnected
	}

	id := d.newID()
	d.reconciler.AppendLocal(model.ChatMessage{
		ID:      id,
		Role:    model.RoleUser,
		Content: text,
	}, true)
	d.reconciler.SetTyping(true)

	frame, err := model.NewFrame(model.EventMessageSend, model.SendPayload{
		Message:         text,
		SessionID:       sessionID,
		Platform:        d.platform,
		Type:            kind,
		Action:          action,
		ClientMessageID: id,
	})
	if err == nil {
		d.logger.Printf("📤 Sending message: %s (%s)", id, kind)
		err = d.transport.Send(frame)
	}
	if err != nil {
		d.reconciler.SetTyping(false)
		if errors.Is(err, ErrNotConnected) {
			d.notice(ConnectionLostNotice)
		} else {
			d.notice(SendFailedNotice)
		}
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (d *Dispatcher) notice(content string) {
	d.reconciler.AppendLocal(model.ChatMessage{
		Role:    model.RoleAssistant,
		Content: content,
	}, false)
}
