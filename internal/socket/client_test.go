package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saravenpi/whopchat/internal/models"
)

type recordingHandler struct {
	mu       sync.Mutex
	messages []models.Message
	chunks   []models.StreamChunk
	chats    []models.Chat
}

func (h *recordingHandler) HandleIncoming(m models.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, m)
}

func (h *recordingHandler) HandleChunk(c models.StreamChunk) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chunks = append(h.chunks, c)
}

func (h *recordingHandler) HandleNewChat(c models.Chat) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chats = append(h.chats, c)
}

func (h *recordingHandler) counts() (int, int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages), len(h.chunks), len(h.chats)
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// fakeServer upgrades /ws, records every frame the client writes and lets
// the test push frames back.
type fakeServer struct {
	*httptest.Server

	mu       sync.Mutex
	received []frame
	cookie   string
	conns    chan *websocket.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.cookie = r.Header.Get("Cookie")
		fs.mu.Unlock()
		fs.conns <- conn

		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			fs.mu.Lock()
			fs.received = append(fs.received, f)
			fs.mu.Unlock()
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) frames() []frame {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]frame(nil), fs.received...)
}

func roomOf(t *testing.T, f frame) string {
	t.Helper()
	var room models.ChatRoom
	require.NoError(t, json.Unmarshal(f.Payload, &room))
	return room.ChatID
}

func TestSocketURL(t *testing.T) {
	got, err := socketURL("http://localhost:8000/")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8000/ws", got)

	got, err = socketURL("https://chat.example.com")
	require.NoError(t, err)
	assert.Equal(t, "wss://chat.example.com/ws", got)

	_, err = socketURL("ftp://example.com")
	assert.Error(t, err)
}

func TestJoinBeforeConnectIsReplayed(t *testing.T) {
	fs := newFakeServer(t)
	client, err := New(fs.URL, "accessToken=abc", nil)
	require.NoError(t, err)

	require.NoError(t, client.Join("c1"))
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	require.NoError(t, client.Join("c2"))
	require.NoError(t, client.Leave("c1"))

	require.Eventually(t, func() bool { return len(fs.frames()) == 3 }, time.Second, 5*time.Millisecond)
	frames := fs.frames()
	assert.Equal(t, models.EventChatJoin, frames[0].Type)
	assert.Equal(t, "c1", roomOf(t, frames[0]))
	assert.Equal(t, models.EventChatJoin, frames[1].Type)
	assert.Equal(t, "c2", roomOf(t, frames[1]))
	assert.Equal(t, models.EventChatLeave, frames[2].Type)
	assert.Equal(t, "c1", roomOf(t, frames[2]))

	fs.mu.Lock()
	assert.Equal(t, "accessToken=abc", fs.cookie)
	fs.mu.Unlock()
}

func TestRunDispatchesPushes(t *testing.T) {
	fs := newFakeServer(t)
	client, err := New(fs.URL, "", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	handler := &recordingHandler{}
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx, handler) }()

	var conn *websocket.Conn
	select {
	case conn = <-fs.conns:
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}

	require.NoError(t, conn.WriteJSON(models.WSMessage{Type: models.EventMessageNew, Payload: models.Message{ID: "m1", ChatID: "c1", Content: "hi"}}))
	require.NoError(t, conn.WriteJSON(models.WSMessage{Type: models.EventMessageChunk, Payload: models.StreamChunk{ChatID: "c1", MessageID: "A", Delta: "He"}}))
	require.NoError(t, conn.WriteJSON(models.WSMessage{Type: models.EventChatNew, Payload: models.Chat{ID: "c9"}}))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(models.WSMessage{Type: "typing", Payload: nil}))
	require.NoError(t, conn.WriteJSON(models.WSMessage{Type: models.EventMessageNew, Payload: models.Message{ID: "m2", ChatID: "c1"}}))

	require.Eventually(t, func() bool {
		m, c, n := handler.counts()
		return m == 2 && c == 1 && n == 1
	}, 2*time.Second, 5*time.Millisecond)

	handler.mu.Lock()
	assert.Equal(t, "m1", handler.messages[0].ID)
	assert.Equal(t, "m2", handler.messages[1].ID)
	assert.Equal(t, "He", handler.chunks[0].Delta)
	assert.Equal(t, "c9", handler.chats[0].ID)
	handler.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRunReconnectsAndRejoins(t *testing.T) {
	fs := newFakeServer(t)
	client, err := New(fs.URL, "", nil)
	require.NoError(t, err)
	require.NoError(t, client.Join("c1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.Run(ctx, &recordingHandler{}) }()

	first := <-fs.conns
	require.NoError(t, first.Close())

	select {
	case <-fs.conns:
	case <-time.After(5 * time.Second):
		t.Fatal("client did not reconnect")
	}

	require.Eventually(t, func() bool {
		joins := 0
		for _, f := range fs.frames() {
			if f.Type == models.EventChatJoin && roomOf(t, f) == "c1" {
				joins++
			}
		}
		return joins == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWritesWhileDisconnected(t *testing.T) {
	client, err := New("http://localhost:1", "", nil)
	require.NoError(t, err)

	assert.NoError(t, client.Join("c1"))
	assert.NoError(t, client.Leave("c1"))
	assert.NoError(t, client.Close())
}

func TestSetCookieAppliesToNextHandshake(t *testing.T) {
	fs := newFakeServer(t)
	client, err := New(fs.URL, "", nil)
	require.NoError(t, err)

	client.SetCookie("accessToken=fresh")
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.Equal(t, "accessToken=fresh", fs.cookie)
}

func TestRestartedRunOwnsTheNewConnection(t *testing.T) {
	fs := newFakeServer(t)
	client, err := New(fs.URL, "", nil)
	require.NoError(t, err)

	firstCtx, stopFirst := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() { firstDone <- client.Run(firstCtx, &recordingHandler{}) }()
	<-fs.conns

	stopFirst()
	handler := &recordingHandler{}
	secondCtx, stopSecond := context.WithCancel(context.Background())
	defer stopSecond()
	go func() { _ = client.Run(secondCtx, handler) }()

	select {
	case err := <-firstDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("first Run did not stop")
	}

	var second *websocket.Conn
	select {
	case second = <-fs.conns:
	case <-time.After(2 * time.Second):
		t.Fatal("second Run never connected")
	}

	require.NoError(t, second.WriteJSON(models.WSMessage{Type: models.EventMessageNew, Payload: models.Message{ID: "m1", ChatID: "c1"}}))
	require.Eventually(t, func() bool {
		m, _, _ := handler.counts()
		return m == 1
	}, 2*time.Second, 5*time.Millisecond)
}
