package handler

import (
	"context"
	"errors"
	"log"
	"net/http"

	"mangwale-chat/internal/model"
	"mangwale-chat/internal/service"
	"mangwale-chat/internal/ws"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// upgrader untuk Gorilla
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// origin dibatasi oleh middleware CORS
		return true
	},
}

// WebSocketHandler meng-handle koneksi WS di route /ws
func WebSocketHandler(hub *ws.Hub, chat *service.ChatService) echo.HandlerFunc {
	frames := &socketFrames{hub: hub, chat: chat}

	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			log.Printf("ws upgrade error: %v", err)
			return err
		}

		client := ws.NewClient(hub, conn)
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump(frames)

		return nil
	}
}

// socketFrames routes inbound realtime frames to the chat service.
type socketFrames struct {
	hub  *ws.Hub
	chat *service.ChatService
}

func (h *socketFrames) HandleFrame(ctx context.Context, c *ws.Client, frame model.Frame) {
	switch frame.Event {
	case model.EventPing:
		pong, _ := model.NewFrame(model.EventPong, nil)
		c.Send(pong)

	case model.EventSessionJoin:
		var p model.JoinPayload
		if err := frame.Decode(&p); err != nil {
			sendError(c, "INVALID_PAYLOAD", err.Error())
			return
		}
		joined, session, err := h.chat.Join(ctx, p)
		if err != nil {
			sendError(c, errorCode(err), err.Error())
			return
		}
		h.hub.JoinRoom(c, joined.SessionID)
		sendFrame(c, model.EventSessionJoined, joined)
		sendFrame(c, model.EventSessionUpdate, session)

	case model.EventSessionLeave:
		h.hub.LeaveRoom(c)

	case model.EventMessageSend:
		var p model.SendPayload
		if err := frame.Decode(&p); err != nil {
			sendError(c, "INVALID_PAYLOAD", err.Error())
			return
		}
		if p.SessionID == "" {
			p.SessionID = c.SessionID()
		}
		// replies go to the room, so a sender that skipped join still hears them
		if p.SessionID != "" {
			h.hub.JoinRoom(c, p.SessionID)
		}
		ack, err := h.chat.Send(ctx, p, service.ChannelSocket)
		if err != nil {
			sendError(c, errorCode(err), err.Error())
			return
		}
		sendFrame(c, model.EventMessageAck, ack)

	case model.EventLocationUpdate:
		var p model.LocationPayload
		if err := frame.Decode(&p); err != nil {
			sendError(c, "INVALID_PAYLOAD", err.Error())
			return
		}
		if err := h.chat.UpdateLocation(ctx, p.SessionID, p.Lat, p.Lng); err != nil {
			sendError(c, errorCode(err), err.Error())
		}

	case model.EventOptionClick:
		var p model.OptionClickPayload
		if err := frame.Decode(&p); err != nil {
			sendError(c, "INVALID_PAYLOAD", err.Error())
			return
		}
		if err := h.chat.OptionClick(ctx, p); err != nil {
			sendError(c, errorCode(err), err.Error())
		}

	case model.EventTyping:
		// presence hint, nothing to do on the relay

	default:
		sendError(c, "UNKNOWN_EVENT", "unsupported event "+frame.Event)
	}
}

func sendFrame(c *ws.Client, event string, data interface{}) {
	frame, err := model.NewFrame(event, data)
	if err != nil {
		log.Printf("ws: failed to encode %s: %v", event, err)
		return
	}
	if !c.Send(frame) {
		log.Printf("ws: %s not delivered, client gone", event)
	}
}

func sendError(c *ws.Client, code, message string) {
	sendFrame(c, model.EventError, model.ErrorPayload{Code: code, Message: message})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrMissingSession):
		return "MISSING_SESSION"
	case errors.Is(err, service.ErrEmptyMessage):
		return "EMPTY_MESSAGE"
	default:
		return "INTERNAL_ERROR"
	}
}
