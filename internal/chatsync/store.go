// Package chatsync holds the client-side chat state: the chat list, the chat
// currently open and the optimistic messages still waiting for the server.
//
// Every mutation runs under a single lock and completes before the next one
// starts. Network round-trips happen outside the lock, so a slow request only
// delays the goroutine that issued it.
package chatsync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saravenpi/whopchat/internal/models"
)

// RemoteAPI is the request/response side of the chat service.
type RemoteAPI interface {
	ListChats(ctx context.Context) ([]models.Chat, error)
	GetChat(ctx context.Context, chatID string) (*models.SingleChat, error)
	CreateChat(ctx context.Context, payload models.CreateChatPayload) (*models.Chat, error)
	SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.SendMessageResponse, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// Transport scopes socket events to the chat that is open.
type Transport interface {
	Join(chatID string) error
	Leave(chatID string) error
}

// Identity exposes the authenticated user.
type Identity interface {
	CurrentUser() (*models.User, bool)
}

// Notifier shows transient messages to the user.
type Notifier interface {
	Error(message string)
	Success(message string)
}

type Deps struct {
	API       RemoteAPI
	Transport Transport
	Identity  Identity
	Notifier  Notifier
	Logger    *zap.Logger

	// NewID generates temporary message ids. Defaults to uuid.NewString.
	NewID func() string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Flags are the loading indicators shown by the presentation layer.
type Flags struct {
	ChatsLoading      bool
	UsersLoading      bool
	CreatingChat      bool
	SingleChatLoading bool
	Sending           bool
}

type Store struct {
	api       RemoteAPI
	transport Transport
	identity  Identity
	notifier  Notifier
	logger    *zap.Logger
	newID     func() string
	now       func() time.Time

	mu       sync.Mutex
	chats    []models.Chat
	users    []models.User
	single   *models.SingleChat
	flags    Flags
	inFlight int
	loading  [loadingKinds]int

	subsMu  sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// New builds a Store. API and Identity are required; the rest fall back to
// no-op implementations.
func New(deps Deps) *Store {
	s := &Store{
		api:       deps.API,
		transport: deps.Transport,
		identity:  deps.Identity,
		notifier:  deps.Notifier,
		logger:    deps.Logger,
		newID:     deps.NewID,
		now:       deps.Now,
		subs:      make(map[int]chan Event),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.transport == nil {
		s.transport = noopTransport{}
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{Logger: s.logger}
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Chats returns a copy of the chat list, most recent first.
func (s *Store) Chats() []models.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneChats(s.chats)
}

// Users returns a copy of the known users.
func (s *Store) Users() []models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.User(nil), s.users...)
}

// SingleChat returns a copy of the open chat, or nil when none is open.
func (s *Store) SingleChat() *models.SingleChat {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.single == nil {
		return nil
	}
	messages := make([]models.Message, len(s.single.Messages))
	for i, m := range s.single.Messages {
		messages[i] = cloneMessage(m)
	}
	return &models.SingleChat{
		Chat:     cloneChat(s.single.Chat),
		Messages: messages,
	}
}

// OpenChatID returns the id of the open chat, or "".
func (s *Store) OpenChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.single == nil {
		return ""
	}
	return s.single.Chat.ID
}

func (s *Store) Flags() Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags
}

// CurrentUser proxies the identity context.
func (s *Store) CurrentUser() (*models.User, bool) {
	if s.identity == nil {
		return nil, false
	}
	return s.identity.CurrentUser()
}

// update runs fn under the state lock and publishes the events it returns
// once the lock is released.
func (s *Store) update(fn func() []EventKind) {
	s.mu.Lock()
	kinds := fn()
	s.mu.Unlock()

	s.emit(kinds...)
}

type loadingKind int

const (
	loadingChats loadingKind = iota
	loadingUsers
	loadingCreate
	loadingSingle
	loadingKinds
)

// track marks one call of the given kind as running and returns the func
// that marks it done. The matching flag stays set while any call runs.
func (s *Store) track(kind loadingKind) func() {
	s.adjustLoading(kind, 1)
	return func() { s.adjustLoading(kind, -1) }
}

func (s *Store) adjustLoading(kind loadingKind, delta int) {
	s.update(func() []EventKind {
		s.loading[kind] += delta
		on := s.loading[kind] > 0
		switch kind {
		case loadingChats:
			s.flags.ChatsLoading = on
		case loadingUsers:
			s.flags.UsersLoading = on
		case loadingCreate:
			s.flags.CreatingChat = on
		case loadingSingle:
			s.flags.SingleChatLoading = on
		}
		return []EventKind{FlagsChanged}
	})
}

type noopTransport struct{}

func (noopTransport) Join(string) error  { return nil }
func (noopTransport) Leave(string) error { return nil }
