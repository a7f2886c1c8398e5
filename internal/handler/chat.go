package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"mangwale-chat/internal/model"
	"mangwale-chat/internal/service"

	"github.com/labstack/echo/v4"
)

// ChatHandler serves the send-then-poll REST surface used when websockets are
// unavailable.
type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type sendChatRequest struct {
	RecipientID     string `json:"recipientId"`
	Text            string `json:"text"`
	Type            string `json:"type"`
	Action          string `json:"action"`
	ClientMessageID string `json:"clientMessageId"`
}

type polledMessage struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// POST /chat/send
func (h *ChatHandler) SendChat(c echo.Context) error {
	var req sendChatRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if strings.TrimSpace(req.RecipientID) == "" {
		return ErrorResponse(c, http.StatusBadRequest, "recipientId is required", "MISSING_RECIPIENT", "")
	}

	ctx := c.Request().Context()
	if claims, ok := c.Get("user_claims").(*service.Claims); ok {
		if err := h.chat.Authenticate(ctx, req.RecipientID, claims); err != nil {
			return ErrorResponse(c, http.StatusInternalServerError, "Failed to attach identity", "INTERNAL_ERROR", err.Error())
		}
	}

	msgType := req.Type
	if msgType == "" {
		msgType = model.MessageTypeText
	}
	ack, err := h.chat.Send(ctx, model.SendPayload{
		Message:         req.Text,
		SessionID:       req.RecipientID,
		Platform:        model.PlatformWeb,
		Type:            msgType,
		Action:          req.Action,
		ClientMessageID: req.ClientMessageID,
	}, service.ChannelPoll)
	if errors.Is(err, service.ErrEmptyMessage) {
		return c.JSON(http.StatusOK, map[string]interface{}{"ok": false, "error": err.Error()})
	}
	if err != nil {
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to send message", "SEND_FAILED", err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":        true,
		"messageId": ack.MessageID,
	})
}

// GET /chat/messages/:recipientId
func (h *ChatHandler) GetMessages(c echo.Context) error {
	recipientID := c.Param("recipientId")

	queued := h.chat.Drain(recipientID)
	messages := make([]polledMessage, 0, len(queued))
	for _, m := range queued {
		messages = append(messages, polledMessage{ID: m.ID, Message: m.Content, Timestamp: m.Timestamp})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":       true,
		"messages": messages,
	})
}

// GET /sessions/:id/history?limit=50
func (h *ChatHandler) GetHistory(c echo.Context) error {
	sessionID := c.Param("id")

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return ErrorResponse(c, http.StatusBadRequest, "Invalid limit", "INVALID_LIMIT", raw)
		}
		limit = n
	}

	history, err := h.chat.History(c.Request().Context(), sessionID, limit)
	if errors.Is(err, model.ErrSessionNotFound) {
		return ErrorResponse(c, http.StatusNotFound, "Session not found", "SESSION_NOT_FOUND", sessionID)
	}
	if err != nil {
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to load history", "INTERNAL_ERROR", err.Error())
	}
	return c.JSON(http.StatusOK, history)
}

// GET /sessions/:id
func (h *ChatHandler) GetSession(c echo.Context) error {
	session, err := h.chat.Session(c.Request().Context(), c.Param("id"))
	if errors.Is(err, model.ErrSessionNotFound) {
		return ErrorResponse(c, http.StatusNotFound, "Session not found", "SESSION_NOT_FOUND", c.Param("id"))
	}
	if err != nil {
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to load session", "INTERNAL_ERROR", err.Error())
	}
	session.AuthToken = ""
	return SuccessResponse(c, http.StatusOK, "Session retrieved", session)
}

// POST /sessions/:id/location
func (h *ChatHandler) UpdateLocation(c echo.Context) error {
	var loc model.Location
	if err := c.Bind(&loc); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.chat.UpdateLocation(c.Request().Context(), c.Param("id"), loc.Lat, loc.Lng); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "Failed to update location", "INVALID_LOCATION", err.Error())
	}
	return SuccessResponse(c, http.StatusOK, "Location updated", loc)
}

// POST /sessions/:id/option
func (h *ChatHandler) OptionClick(c echo.Context) error {
	var p model.OptionClickPayload
	if err := c.Bind(&p); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	p.SessionID = c.Param("id")

	h.chat.MarkPolling(p.SessionID)
	if err := h.chat.OptionClick(c.Request().Context(), p); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "Failed to handle option", "INVALID_OPTION", err.Error())
	}
	return SuccessResponse(c, http.StatusOK, "Option received", nil)
}
