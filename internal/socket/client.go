// Package socket keeps the realtime connection to the chat server.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/saravenpi/whopchat/internal/models"
)

// Handler receives the decoded server pushes.
type Handler interface {
	HandleIncoming(message models.Message)
	HandleChunk(chunk models.StreamChunk)
	HandleNewChat(chat models.Chat)
}

const (
	writeWait  = 10 * time.Second
	maxBackoff = 30 * time.Second
)

// ErrNotConnected is returned by writes while the connection is down.
var ErrNotConnected = errors.New("socket not connected")

type Client struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	logger *zap.Logger

	// runMu lets a single Run own the connection at a time.
	runMu sync.Mutex

	mu    sync.Mutex
	conn  *websocket.Conn
	rooms map[string]struct{}
}

// New prepares a client for serverURL. The cookie authenticates the handshake.
func New(serverURL, cookie string, logger *zap.Logger) (*Client, error) {
	wsURL, err := socketURL(serverURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	header := http.Header{}
	if cookie != "" {
		header.Set("Cookie", cookie)
	}

	return &Client{
		url:    wsURL,
		header: header,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger,
		rooms:  make(map[string]struct{}),
	}, nil
}

func socketURL(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return "", fmt.Errorf("failed to parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	return u.String(), nil
}

// SetCookie replaces the cookie sent on the next handshake.
func (c *Client) SetCookie(cookie string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.header = http.Header{}
	if cookie != "" {
		c.header.Set("Cookie", cookie)
	}
}

// Connect dials the server once and rejoins the rooms joined so far.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	header := c.header.Clone()
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		conn.Close()
		return err
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	for room := range c.rooms {
		if err := c.writeLocked(models.EventChatJoin, models.ChatRoom{ChatID: room}); err != nil {
			return err
		}
	}
	c.logger.Info("socket connected", zap.String("url", c.url), zap.Int("rooms", len(c.rooms)))
	return nil
}

// Run reads pushes until ctx is cancelled, reconnecting with backoff when the
// connection drops. A second Run waits for the previous one to return, and
// the connection is closed before Run returns.
func (c *Client) Run(ctx context.Context, h Handler) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	stopped := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-ctx.Done():
			c.Close()
		case <-stopped:
		}
	}()
	defer func() {
		close(stopped)
		<-watcherDone
		c.Close()
	}()

	backoff := time.Second
	for {
		c.mu.Lock()
		connected := c.conn != nil
		c.mu.Unlock()

		if !connected {
			if err := c.Connect(ctx); err != nil {
				c.logger.Warn("socket dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(backoff):
				}
				backoff = min(backoff*2, maxBackoff)
				continue
			}
			backoff = time.Second
		}

		err := c.readLoop(h)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("socket disconnected", zap.Error(err))
		c.drop()
	}
}

func (c *Client) readLoop(h Handler) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := c.dispatch(data, h); err != nil {
			c.logger.Warn("dropping socket frame", zap.Error(err))
		}
	}
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (c *Client) dispatch(data []byte, h Handler) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}

	switch env.Type {
	case models.EventMessageNew:
		var message models.Message
		if err := json.Unmarshal(env.Payload, &message); err != nil {
			return fmt.Errorf("failed to decode %s: %w", env.Type, err)
		}
		h.HandleIncoming(message)
	case models.EventMessageChunk:
		var chunk models.StreamChunk
		if err := json.Unmarshal(env.Payload, &chunk); err != nil {
			return fmt.Errorf("failed to decode %s: %w", env.Type, err)
		}
		h.HandleChunk(chunk)
	case models.EventChatNew:
		var chat models.Chat
		if err := json.Unmarshal(env.Payload, &chat); err != nil {
			return fmt.Errorf("failed to decode %s: %w", env.Type, err)
		}
		h.HandleNewChat(chat)
	default:
		c.logger.Debug("ignoring socket event", zap.String("type", env.Type))
	}
	return nil
}

// Join subscribes to pushes for a chat. While disconnected the room is
// remembered and joined on the next connect.
func (c *Client) Join(chatID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[chatID] = struct{}{}
	if c.conn == nil {
		return nil
	}
	return c.writeLocked(models.EventChatJoin, models.ChatRoom{ChatID: chatID})
}

func (c *Client) Leave(chatID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, chatID)
	if c.conn == nil {
		return nil
	}
	return c.writeLocked(models.EventChatLeave, models.ChatRoom{ChatID: chatID})
}

func (c *Client) writeLocked(eventType string, payload any) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(models.WSMessage{Type: eventType, Payload: payload}); err != nil {
		return fmt.Errorf("failed to send %s: %w", eventType, err)
	}
	return nil
}

func (c *Client) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close shuts the connection down. Run returns once its context is done.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := c.conn.Close()
	c.conn = nil
	return err
}
