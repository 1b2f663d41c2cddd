package chatsync

import (
	"context"

	"go.uber.org/zap"

	"github.com/saravenpi/whopchat/internal/models"
)

// CreateChat creates a chat and puts it at the top of the list. It returns
// nil when the server refused or could not be reached.
func (s *Store) CreateChat(ctx context.Context, payload models.CreateChatPayload) *models.Chat {
	defer s.track(loadingCreate)()

	chat, err := s.api.CreateChat(ctx, payload)
	if err != nil {
		s.reportError(err, "Failed to create chat")
		return nil
	}

	s.UpsertChatToFront(*chat)
	s.notifier.Success("Chat created successfully")
	return chat
}

// FetchSingleChat loads a chat with its messages and makes it the open chat.
// The socket follows: the previous chat's room is left and the new one joined.
func (s *Store) FetchSingleChat(ctx context.Context, chatID string) bool {
	defer s.track(loadingSingle)()

	single, err := s.api.GetChat(ctx, chatID)
	if err != nil {
		s.reportError(err, "Failed to fetch chat")
		return false
	}

	for i := range single.Messages {
		single.Messages[i] = confirm(single.Messages[i])
	}

	var previous string
	s.update(func() []EventKind {
		if s.single != nil {
			previous = s.single.Chat.ID
		}
		s.single = single
		return []EventKind{SingleChatChanged}
	})

	if previous != "" && previous != single.Chat.ID {
		s.leave(previous)
	}
	if previous != single.Chat.ID {
		if err := s.transport.Join(single.Chat.ID); err != nil {
			s.logger.Warn("failed to join chat room", zap.String("chat_id", single.Chat.ID), zap.Error(err))
		}
	}
	return true
}

// CloseChat forgets the open chat. Late updates for it are dropped.
func (s *Store) CloseChat() {
	var previous string
	s.update(func() []EventKind {
		if s.single == nil {
			return nil
		}
		previous = s.single.Chat.ID
		s.single = nil
		return []EventKind{SingleChatChanged}
	})

	if previous != "" {
		s.leave(previous)
	}
}

func (s *Store) leave(chatID string) {
	if err := s.transport.Leave(chatID); err != nil {
		s.logger.Warn("failed to leave chat room", zap.String("chat_id", chatID), zap.Error(err))
	}
}

// FetchUsers loads the users that can be added to a new chat.
func (s *Store) FetchUsers(ctx context.Context) {
	defer s.track(loadingUsers)()

	users, err := s.api.ListUsers(ctx)
	if err != nil {
		s.reportError(err, "Failed to fetch users")
		return
	}

	s.update(func() []EventKind {
		s.users = users
		return []EventKind{UsersChanged}
	})
}

// Reset drops all cached state, e.g. after logout.
func (s *Store) Reset() {
	s.CloseChat()
	s.update(func() []EventKind {
		s.chats = nil
		s.users = nil
		return []EventKind{ChatsChanged, UsersChanged}
	})
}
