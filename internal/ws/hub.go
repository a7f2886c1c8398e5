package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"mangwale-chat/internal/model"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second

	// Client ping tiap 30 detik; tiga heartbeat terlewat berarti koneksi diputus.
	readWait = 90 * time.Second

	maxFrameBytes = 64 << 10
	sendBuffer    = 256
)

// FrameHandler menerima frame dari client. Dipanggil dari goroutine ReadPump,
// satu frame per waktu per koneksi.
type FrameHandler interface {
	HandleFrame(ctx context.Context, c *Client, frame model.Frame)
}

// RealtimePublisher dipegang service supaya tidak tergantung langsung ke Hub.
type RealtimePublisher interface {
	Publish(sessionID string, frame model.Frame)
}

// Client merepresentasikan satu koneksi WebSocket chat.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan model.Frame

	// session yang sedang di-join; dijaga oleh hub.mu
	sessionID string
}

type roomEvent struct {
	sessionID string
	frame     model.Frame
}

// Hub menyimpan semua client aktif, dikelompokkan per session id.
type Hub struct {
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool

	unregister chan *Client
	broadcast  chan roomEvent

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		unregister: make(chan *Client),
		broadcast:  make(chan roomEvent, 256),
	}
}

// Run harus dijalankan di goroutine terpisah.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			for client := range h.rooms[event.sessionID] {
				select {
				case client.send <- event.frame:
				default:
					// buffer penuh, anggap client bermasalah dan putuskan
					log.Printf("ws: dropping slow client in session %s", event.sessionID)
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register dipanggil handler WS saat koneksi baru dibuat. Sengaja sinkron
// supaya frame yang dikirim tepat setelah upgrade tidak hilang.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
}

// Unregister dipanggil ketika koneksi WS ditutup.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Publish mengimplementasikan RealtimePublisher: kirim frame ke semua client
// yang join ke sessionID.
func (h *Hub) Publish(sessionID string, frame model.Frame) {
	h.broadcast <- roomEvent{sessionID: sessionID, frame: frame}
}

// JoinRoom memindahkan client ke room milik sessionID.
func (h *Hub) JoinRoom(client *Client, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client] {
		return
	}
	if client.sessionID == sessionID {
		return
	}
	h.leaveRoomLocked(client)

	room := h.rooms[sessionID]
	if room == nil {
		room = make(map[*Client]bool)
		h.rooms[sessionID] = room
	}
	room[client] = true
	client.sessionID = sessionID
}

func (h *Hub) LeaveRoom(client *Client) {
	h.mu.Lock()
	h.leaveRoomLocked(client)
	h.mu.Unlock()
}

// RoomSize mengembalikan jumlah koneksi yang join ke sessionID.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

// SendTo mengantrikan frame untuk satu client. Hasilnya false kalau client
// sudah hilang atau buffer-nya penuh.
func (h *Hub) SendTo(client *Client, frame model.Frame) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.clients[client] {
		return false
	}
	select {
	case client.send <- frame:
		return true
	default:
		return false
	}
}

func (h *Hub) leaveRoomLocked(client *Client) {
	if client.sessionID == "" {
		return
	}
	if room := h.rooms[client.sessionID]; room != nil {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, client.sessionID)
		}
	}
	client.sessionID = ""
}

func (h *Hub) removeLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	h.leaveRoomLocked(client)
	delete(h.clients, client)
	close(client.send)
}

// NewClient membuat objek Client baru dari koneksi Gorilla WebSocket.
// Fungsi ini tidak menjalankan goroutine read/write; itu tugas handler WS.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan model.Frame, sendBuffer),
	}
}

// Send mengantrikan frame hanya untuk koneksi ini.
func (c *Client) Send(frame model.Frame) bool {
	return c.hub.SendTo(c, frame)
}

// SessionID mengembalikan session yang sedang di-join koneksi ini (bisa kosong).
func (c *Client) SessionID() string {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	return c.sessionID
}

// WritePump mengirim frame dari channel send ke koneksi WS.
func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for frame := range c.send {
		payload, err := json.Marshal(frame)
		if err != nil {
			log.Printf("ws: failed to marshal frame: %v", err)
			continue
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("ws: failed to write message: %v", err)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// ReadPump membaca frame dari client dan meneruskannya ke handler sampai
// koneksi putus.
func (c *Client) ReadPump(handler FrameHandler) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("ws read error: %v", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readWait))

		var frame model.Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			errFrame, _ := model.NewFrame(model.EventError, model.ErrorPayload{
				Code:    "INVALID_FRAME",
				Message: "frame must be a JSON object with an event name",
			})
			c.Send(errFrame)
			continue
		}
		handler.HandleFrame(ctx, c, frame)
	}
}
