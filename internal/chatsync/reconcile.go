package chatsync

import (
	"go.uber.org/zap"

	"github.com/saravenpi/whopchat/internal/models"
)

// UpsertMessage is the only way messages enter the open chat.
//
// Updates for a chat that is not open are dropped. With a matchID the entry
// carrying that id is replaced where it stands; if there is none the message
// is appended. Without a matchID the message is always appended.
func (s *Store) UpsertMessage(chatID string, message models.Message, matchID string) bool {
	var applied bool
	s.update(func() []EventKind {
		applied = s.upsertMessageLocked(chatID, message, matchID)
		if !applied {
			return nil
		}
		return []EventKind{SingleChatChanged}
	})
	return applied
}

func (s *Store) upsertMessageLocked(chatID string, message models.Message, matchID string) bool {
	if s.single == nil || s.single.Chat.ID != chatID {
		return false
	}
	message = cloneMessage(message)

	if matchID != "" {
		if i := s.indexOfLocked(matchID); i >= 0 {
			s.single.Messages[i] = message
			return true
		}
	}

	s.single.Messages = append(s.single.Messages, message)
	return true
}

func (s *Store) indexOfLocked(messageID string) int {
	for i, m := range s.single.Messages {
		if m.ID == messageID {
			return i
		}
	}
	return -1
}

// HandleIncoming reconciles a message pushed over the socket. Pushed messages
// are never replacements, so they are appended; the chat also moves to the
// front of the list.
func (s *Store) HandleIncoming(message models.Message) {
	message.State = models.Confirmed{ServerID: message.ID}

	s.update(func() []EventKind {
		var kinds []EventKind
		if s.upsertMessageLocked(message.ChatID, message, "") {
			kinds = append(kinds, SingleChatChanged)
		}
		if s.updateLastMessageLocked(message.ChatID, message) {
			kinds = append(kinds, ChatsChanged)
		}
		return kinds
	})
	s.logger.Debug("message pushed",
		zap.String("chat_id", message.ChatID),
		zap.String("message_id", message.ID))
}

// HandleNewChat puts a chat created by someone else at the top of the list.
func (s *Store) HandleNewChat(chat models.Chat) {
	s.UpsertChatToFront(chat)
}

// HandleChunk routes a streamed piece of an AI reply.
func (s *Store) HandleChunk(chunk models.StreamChunk) {
	if chunk.Delta != "" {
		s.AppendStreamChunk(chunk.ChatID, chunk.MessageID, chunk.Delta)
	}
	if chunk.Done {
		s.CompleteStream(chunk.ChatID, chunk.MessageID)
	}
}

// AppendStreamChunk appends delta to a message that is still streaming.
func (s *Store) AppendStreamChunk(chatID, messageID, delta string) bool {
	return s.mutateStreaming(chatID, messageID, func(m *models.Message) {
		m.Content += delta
	})
}

// CompleteStream marks a streaming message as fully delivered.
func (s *Store) CompleteStream(chatID, messageID string) bool {
	return s.mutateStreaming(chatID, messageID, func(m *models.Message) {
		m.Streaming = false
	})
}

func (s *Store) mutateStreaming(chatID, messageID string, fn func(m *models.Message)) bool {
	var applied bool
	s.update(func() []EventKind {
		if s.single == nil || s.single.Chat.ID != chatID {
			return nil
		}
		i := s.indexOfLocked(messageID)
		if i < 0 || !s.single.Messages[i].Streaming {
			return nil
		}

		updated := s.single.Messages[i]
		fn(&updated)
		applied = s.upsertMessageLocked(chatID, updated, messageID)
		return []EventKind{SingleChatChanged}
	})
	return applied
}
