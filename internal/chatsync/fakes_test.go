package chatsync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/saravenpi/whopchat/internal/models"
)

type fakeAPI struct {
	mu sync.Mutex

	chats      []models.Chat
	chatsErr   error
	chatsGate  chan struct{}
	chatsCalls int
	singles    map[string]models.SingleChat
	getErr     error
	created    *models.Chat
	createErr  error
	users      []models.User
	usersErr   error
	sendFn     func(ctx context.Context, req models.SendMessageRequest) (*models.SendMessageResponse, error)
	sent       []models.SendMessageRequest
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{singles: make(map[string]models.SingleChat)}
}

func (f *fakeAPI) ListChats(context.Context) ([]models.Chat, error) {
	f.mu.Lock()
	f.chatsCalls++
	gate := f.chatsGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chatsErr != nil {
		return nil, f.chatsErr
	}
	return append([]models.Chat(nil), f.chats...), nil
}

func (f *fakeAPI) GetChat(_ context.Context, chatID string) (*models.SingleChat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	single, ok := f.singles[chatID]
	if !ok {
		return nil, apiError{message: "Chat not found", kind: ErrValidation}
	}
	return &models.SingleChat{
		Chat:     single.Chat,
		Messages: append([]models.Message(nil), single.Messages...),
	}, nil
}

func (f *fakeAPI) CreateChat(context.Context, models.CreateChatPayload) (*models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.created, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.SendMessageResponse, error) {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	fn := f.sendFn
	f.mu.Unlock()

	if fn == nil {
		return &models.SendMessageResponse{UserMessage: serverMessage("srv-"+req.ChatID, req.ChatID, "u1", req.Content)}, nil
	}
	return fn(ctx, req)
}

func (f *fakeAPI) ListUsers(context.Context) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usersErr != nil {
		return nil, f.usersErr
	}
	return f.users, nil
}

func (f *fakeAPI) listChatsCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatsCalls
}

func (f *fakeAPI) requests() []models.SendMessageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.SendMessageRequest(nil), f.sent...)
}

type fakeTransport struct {
	mu     sync.Mutex
	joined []string
	left   []string
}

func (f *fakeTransport) Join(chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, chatID)
	return nil
}

func (f *fakeTransport) Leave(chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, chatID)
	return nil
}

type fakeIdentity struct {
	user *models.User
}

func (f fakeIdentity) CurrentUser() (*models.User, bool) {
	return f.user, f.user != nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	errors    []string
	successes []string
}

func (n *recordingNotifier) Error(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, message)
}

func (n *recordingNotifier) Success(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, message)
}

func (n *recordingNotifier) errorMessages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.errors...)
}

type apiError struct {
	message string
	kind    error
}

func (e apiError) Error() string       { return e.message }
func (e apiError) Unwrap() error       { return e.kind }
func (e apiError) UserMessage() string { return e.message }

var (
	self   = models.User{ID: "u1", Name: "Alice"}
	bob    = models.User{ID: "u2", Name: "Bob"}
	carol  = models.User{ID: "u3", Name: "Carol"}
	whopAI = models.User{ID: "ai1", Name: "Whop AI", IsAI: true}
)

type harness struct {
	store     *Store
	api       *fakeAPI
	transport *fakeTransport
	notifier  *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		api:       newFakeAPI(),
		transport: &fakeTransport{},
		notifier:  &recordingNotifier{},
	}

	var (
		mu   sync.Mutex
		next int
	)
	h.store = New(Deps{
		API:       h.api,
		Transport: h.transport,
		Identity:  fakeIdentity{user: &self},
		Notifier:  h.notifier,
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			next++
			return fmt.Sprintf("tmp-%d", next)
		},
		Now: func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	return h
}

// open makes chat the open chat with the given history.
func (h *harness) open(t *testing.T, chat models.Chat, messages ...models.Message) {
	t.Helper()
	h.api.mu.Lock()
	h.api.singles[chat.ID] = models.SingleChat{Chat: chat, Messages: messages}
	h.api.mu.Unlock()
	require.True(t, h.store.FetchSingleChat(context.Background(), chat.ID))
}

func directChat(id string, other models.User) models.Chat {
	return models.Chat{ID: id, Participants: []models.User{self, other}}
}

func aiChat(id string) models.Chat {
	return models.Chat{ID: id, Participants: []models.User{self, whopAI}, IsAIChat: true}
}

func serverMessage(id, chatID, senderID, content string) models.Message {
	sender := models.User{ID: senderID}
	return models.Message{ID: id, ChatID: chatID, Sender: &sender, Content: content}
}

func messageIDs(single *models.SingleChat) []string {
	if single == nil {
		return nil
	}
	ids := make([]string, len(single.Messages))
	for i, m := range single.Messages {
		ids[i] = m.ID
	}
	return ids
}

func chatIDs(chats []models.Chat) []string {
	ids := make([]string, len(chats))
	for i, c := range chats {
		ids[i] = c.ID
	}
	return ids
}
