package ui

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saravenpi/whopchat/internal/api"
	"github.com/saravenpi/whopchat/internal/chatsync"
	"github.com/saravenpi/whopchat/internal/models"
	"github.com/saravenpi/whopchat/internal/session"
)

var (
	alice = models.User{ID: "u1", Name: "Alice", Email: "alice@example.com"}
	bob   = models.User{ID: "u2", Name: "Bob", Email: "bob@example.com"}
	carol = models.User{ID: "u3", Name: "Carol", Email: "carol@example.com"}
	whop  = models.User{ID: "ai", Name: "Whop AI", IsAI: true}
)

type fakeAPI struct {
	mu      sync.Mutex
	chats   []models.Chat
	singles map[string]models.SingleChat
	users   []models.User
	release chan struct{}
}

func (f *fakeAPI) ListChats(context.Context) ([]models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Chat(nil), f.chats...), nil
}

func (f *fakeAPI) GetChat(_ context.Context, chatID string) (*models.SingleChat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	single := f.singles[chatID]
	return &models.SingleChat{Chat: single.Chat, Messages: append([]models.Message(nil), single.Messages...)}, nil
}

func (f *fakeAPI) CreateChat(_ context.Context, payload models.CreateChatPayload) (*models.Chat, error) {
	return &models.Chat{ID: "new", IsGroup: payload.IsGroup, GroupName: payload.GroupName}, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.SendMessageResponse, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &models.SendMessageResponse{UserMessage: models.Message{
		ID:        "m-" + req.Content,
		ChatID:    req.ChatID,
		Sender:    &alice,
		Content:   req.Content,
		CreatedAt: time.Now(),
	}}, nil
}

func (f *fakeAPI) ListUsers(context.Context) ([]models.User, error) {
	return f.users, nil
}

func newTestApp(t *testing.T, remote *fakeAPI) *App {
	t.Helper()

	sess, err := session.Load(filepath.Join(t.TempDir(), "session.yml"))
	require.NoError(t, err)
	require.NoError(t, sess.Save("http://localhost:1", "token", alice))

	client, err := api.New("http://localhost:1", nil)
	require.NoError(t, err)

	toaster := NewToaster()
	return &App{
		Store:   chatsync.New(chatsync.Deps{API: remote, Identity: sess, Notifier: toaster}),
		Client:  client,
		Session: sess,
		Toaster: toaster,
	}
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestFormatTimeAgo(t *testing.T) {
	now := time.Now()
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, "unknown"},
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-90 * time.Second), "1 min ago"},
		{now.Add(-15 * time.Minute), "15m ago"},
		{now.Add(-90 * time.Minute), "1h ago"},
		{now.Add(-5 * time.Hour), "5h ago"},
		{now.Add(-30 * time.Hour), "yesterday"},
		{now.Add(-72 * time.Hour), "3d ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatTimeAgo(tt.at))
	}
}

func TestLastMessagePreview(t *testing.T) {
	assert.Equal(t, "No messages yet", lastMessagePreview(models.Chat{}, "u1"))

	chat := models.Chat{LastMessage: &models.Message{Sender: &alice, Content: "see\nyou   soon"}}
	assert.Equal(t, "You: see you soon", lastMessagePreview(chat, "u1"))
	assert.Equal(t, "see you soon", lastMessagePreview(chat, "u2"))

	chat.LastMessage = &models.Message{Sender: &bob, Image: "https://img"}
	assert.Equal(t, "🖼 Image", lastMessagePreview(chat, "u1"))

	chat.LastMessage = &models.Message{Sender: &bob, Content: strings.Repeat("a", 80)}
	preview := lastMessagePreview(chat, "u1")
	assert.True(t, strings.HasSuffix(preview, "..."))
	assert.LessOrEqual(t, len(preview), 50)
}

func TestRenderMessagesShowsSendStates(t *testing.T) {
	original := models.Message{ID: "m0", Sender: &bob, Content: "lunch?"}
	messages := []models.Message{
		original,
		{ID: "t1", Sender: &alice, Content: "sure", ReplyTo: &original, Status: chatsync.StatusSending, State: models.PendingSend{TempID: "t1"}},
		{ID: "t2", Sender: &alice, Content: "where", Status: chatsync.StatusFailed, State: models.FailedSend{TempID: "t2"}},
		{ID: "t3", Sender: &whop, Streaming: true, State: models.PendingSend{TempID: "t3"}},
		{ID: "t4", Sender: &whop, Content: "Hello the", Streaming: true},
	}

	out := renderMessages(messages, "u1", 80, "*")

	assert.Contains(t, out, "Bob")
	assert.Contains(t, out, "You")
	assert.Contains(t, out, chatsync.StatusSending)
	assert.Contains(t, out, chatsync.StatusFailed)
	assert.Contains(t, out, "↳ Bob: lunch?")
	assert.Contains(t, out, "* thinking...")
	assert.Contains(t, out, "Hello the▍")
	assert.Contains(t, out, "🤖 Whop AI")
}

func TestReplyTarget(t *testing.T) {
	messages := []models.Message{
		{ID: "m1", Sender: &bob, Content: "one"},
		{ID: "m2", Sender: &alice, Content: "two"},
		{ID: "t3", Sender: &alice, Content: "three", State: models.PendingSend{TempID: "t3"}},
	}
	target := replyTarget(messages, "u1")
	require.NotNil(t, target)
	assert.Equal(t, "m1", target.ID)

	target = replyTarget(messages[1:], "u1")
	require.NotNil(t, target)
	assert.Equal(t, "m2", target.ID)

	assert.Nil(t, replyTarget(messages[2:], "u1"))
}

func TestConversationsSearchFiltersList(t *testing.T) {
	remote := &fakeAPI{chats: []models.Chat{
		{ID: "c1", Participants: []models.User{alice, bob}},
		{ID: "c2", Participants: []models.User{alice, carol}},
		{ID: "c3", IsGroup: true, GroupName: "Book club", Participants: []models.User{alice, bob, carol}},
	}}
	app := newTestApp(t, remote)
	app.Store.FetchChats(context.Background())

	m := NewConversationsModel(app)
	assert.Len(t, m.list.Items(), 3)

	next, _ := m.Update(keyRunes("/"))
	m = next.(ConversationsModel)
	require.True(t, m.searching)

	next, _ = m.Update(keyRunes("bo"))
	m = next.(ConversationsModel)
	assert.Len(t, m.list.Items(), 2)

	// Alice is the signed-in user and never matches.
	m.search.SetValue("alice")
	m.refreshItems()
	assert.Empty(t, m.list.Items())
	assert.Contains(t, m.View(), "No chats match your search.")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(ConversationsModel)
	assert.False(t, m.searching)
	assert.Len(t, m.list.Items(), 3)
}

func TestConversationsFollowStoreEvents(t *testing.T) {
	app := newTestApp(t, &fakeAPI{})
	m := NewConversationsModel(app)
	assert.Empty(t, m.list.Items())

	app.Store.UpsertChatToFront(models.Chat{ID: "c9", Participants: []models.User{alice, whop}})
	next, _ := m.Update(storeEventMsg{Kind: chatsync.ChatsChanged})
	m = next.(ConversationsModel)

	require.Len(t, m.list.Items(), 1)
	assert.Equal(t, "🤖 Whop AI", m.list.Items()[0].(chatItem).Title())
}

func TestMessagesShowOptimisticSend(t *testing.T) {
	chat := models.Chat{ID: "c1", Participants: []models.User{alice, bob}}
	remote := &fakeAPI{
		singles: map[string]models.SingleChat{"c1": {Chat: chat}},
		release: make(chan struct{}),
	}
	app := newTestApp(t, remote)

	m := NewMessagesModel(app, chat)
	msg := m.openChatCmd()()
	next, _ := m.Update(msg)
	m = next.(MessagesModel)
	require.True(t, m.opened)

	send := m.sendMessageCmd(models.SendMessagePayload{ChatID: "c1", Content: "hello"})
	done := make(chan struct{})
	go func() {
		send()
		close(done)
	}()

	require.Eventually(t, func() bool {
		messages := m.messages()
		return len(messages) == 1 && messages[0].IsPending()
	}, time.Second, 5*time.Millisecond)

	next, _ = m.Update(storeEventMsg{Kind: chatsync.SingleChatChanged})
	m = next.(MessagesModel)
	assert.Contains(t, m.viewport.View(), chatsync.StatusSending)

	close(remote.release)
	<-done

	next, _ = m.Update(storeEventMsg{Kind: chatsync.SingleChatChanged})
	m = next.(MessagesModel)
	messages := m.messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "m-hello", messages[0].ID)
	assert.NotContains(t, m.viewport.View(), chatsync.StatusSending)
}

func TestMessagesEscClosesChat(t *testing.T) {
	chat := models.Chat{ID: "c1", Participants: []models.User{alice, bob}}
	app := newTestApp(t, &fakeAPI{singles: map[string]models.SingleChat{"c1": {Chat: chat}}})

	m := NewMessagesModel(app, chat)
	next, _ := m.Update(m.openChatCmd()())
	require.NotNil(t, app.Store.SingleChat())

	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.IsType(t, ConversationsModel{}, next)
	assert.Nil(t, app.Store.SingleChat())
}

func TestPeopleSelectionLeadsToGroupForm(t *testing.T) {
	app := newTestApp(t, &fakeAPI{users: []models.User{whop, bob, carol}})
	app.Store.FetchUsers(context.Background())

	m := NewPeopleModel(app)
	require.Len(t, m.list.Items(), 3)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	next, _ = next.Update(keyRunes(" "))
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyDown})
	next, _ = next.Update(keyRunes(" "))
	m = next.(PeopleModel)
	assert.Equal(t, 2, m.selectedCount())
	assert.Contains(t, m.list.Title, "2 selected")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	form, ok := next.(GroupFormModel)
	require.True(t, ok)
	assert.Len(t, form.members, 2)

	next, _ = form.Update(tea.KeyMsg{Type: tea.KeyEnter})
	form = next.(GroupFormModel)
	require.Error(t, form.err)
	assert.Contains(t, form.err.Error(), "group name")
}

func TestLoginValidation(t *testing.T) {
	app := newTestApp(t, &fakeAPI{})
	require.NoError(t, app.Session.Clear())

	m := NewLoginModel(app)
	assert.Error(t, m.validate())

	m.emailInput.SetValue("not-an-email")
	m.passwordInput.SetValue("secret123")
	assert.EqualError(t, m.validate(), "invalid email address")

	m.emailInput.SetValue("alice@example.com")
	assert.NoError(t, m.validate())

	m.register = true
	assert.EqualError(t, m.validate(), "name is required")
	m.nameInput.SetValue("Alice")
	assert.NoError(t, m.validate())

	m.passwordInput.SetValue("123")
	assert.Error(t, m.validate())
}

func TestRootStartsOnLoginWithoutSession(t *testing.T) {
	app := newTestApp(t, &fakeAPI{})
	require.NoError(t, app.Session.Clear())

	root := NewRoot(app)
	defer root.Close()
	assert.IsType(t, LoginModel{}, root.screen)
}

func TestRootShowsAndClearsToasts(t *testing.T) {
	app := newTestApp(t, &fakeAPI{})
	app.Client.SetToken("token")

	root := NewRoot(app)
	defer root.Close()
	require.IsType(t, ConversationsModel{}, root.screen)

	next, _ := root.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	root = next.(Root)
	assert.Equal(t, 39, app.height)

	app.Toaster.Error("Failed to send message")
	toast := app.Toaster.wait()().(toastMsg)

	next, _ = root.Update(toast)
	root = next.(Root)
	assert.Contains(t, root.View(), "Failed to send message")

	next, _ = root.Update(clearToastMsg{id: toast.id - 1})
	root = next.(Root)
	assert.Contains(t, root.View(), "Failed to send message")

	next, _ = root.Update(clearToastMsg{id: toast.id})
	root = next.(Root)
	assert.NotContains(t, root.View(), "Failed to send message")
}

func TestToasterDropsWhenFull(t *testing.T) {
	toaster := NewToaster()
	for i := 0; i < 40; i++ {
		toaster.Success("saved")
	}
	assert.Len(t, toaster.ch, cap(toaster.ch))
}
