package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/saravenpi/whopchat/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 64 << 10
	sendBufferSize = 256
)

// conn is one websocket connection of an authenticated user.
type conn struct {
	ws     *websocket.Conn
	userID string
	send   chan []byte
	rooms  map[string]bool
}

// JoinCheck reports whether userID may receive events of chatID.
type JoinCheck func(ctx context.Context, chatID, userID string) bool

// Hub tracks live connections and the chat rooms they joined.
type Hub struct {
	upgrader websocket.Upgrader
	canJoin  JoinCheck
	logger   *zap.Logger

	mu    sync.RWMutex
	conns map[*conn]struct{}
}

func NewHub(allowedOrigin string, canJoin JoinCheck, logger *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || origin == "" || origin == allowedOrigin
			},
		},
		canJoin: canJoin,
		logger:  logger,
		conns:   make(map[*conn]struct{}),
	}
}

// Serve upgrades the request and pumps frames until the peer goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &conn{
		ws:     ws,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
		rooms:  make(map[string]bool),
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("socket connected", zap.String("user_id", userID))

	go h.writePump(c)
	h.readPump(r.Context(), c)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	close(c.send)
}

func (h *Hub) readPump(ctx context.Context, c *conn) {
	defer func() {
		h.remove(c)
		c.ws.Close()
		h.logger.Debug("socket disconnected", zap.String("user_id", c.userID))
	}()

	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := c.ws.ReadJSON(&frame); err != nil {
			return
		}

		var room models.ChatRoom
		if err := json.Unmarshal(frame.Payload, &room); err != nil || room.ChatID == "" {
			continue
		}

		switch frame.Type {
		case models.EventChatJoin:
			if !h.canJoin(ctx, room.ChatID, c.userID) {
				h.logger.Warn("refused room join", zap.String("user_id", c.userID), zap.String("chat_id", room.ChatID))
				continue
			}
			h.mu.Lock()
			c.rooms[room.ChatID] = true
			h.mu.Unlock()
		case models.EventChatLeave:
			h.mu.Lock()
			delete(c.rooms, room.ChatID)
			h.mu.Unlock()
		}
	}
}

func (h *Hub) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ToUsers sends an event to every connection of the given users, skipping
// connections of except.
func (h *Hub) ToUsers(userIDs []string, except, eventType string, payload any) {
	targets := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		if id != except {
			targets[id] = true
		}
	}
	h.broadcast(eventType, payload, func(c *conn) bool { return targets[c.userID] })
}

// ToRoom sends an event to every connection that joined chatID.
func (h *Hub) ToRoom(chatID, eventType string, payload any) {
	h.broadcast(eventType, payload, func(c *conn) bool { return c.rooms[chatID] })
}

func (h *Hub) broadcast(eventType string, payload any, match func(c *conn) bool) {
	data, err := json.Marshal(models.WSMessage{Type: eventType, Payload: payload})
	if err != nil {
		h.logger.Error("failed to encode socket event", zap.String("type", eventType), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		if !match(c) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("socket send buffer full, dropping event",
				zap.String("user_id", c.userID), zap.String("type", eventType))
		}
	}
}

// Connections returns the number of live sockets.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
