package chatsync

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/saravenpi/whopchat/internal/models"
)

// FetchChats replaces the chat list with the server's. On failure the
// previous list is kept.
func (s *Store) FetchChats(ctx context.Context) {
	defer s.track(loadingChats)()

	chats, err := s.api.ListChats(ctx)
	if err != nil {
		s.reportError(err, "Failed to fetch chats")
		return
	}

	s.update(func() []EventKind {
		s.chats = dedupeChats(chats)
		return []EventKind{ChatsChanged}
	})
	s.logger.Debug("chats fetched", zap.Int("count", len(chats)))
}

// UpsertChatToFront moves chat to index 0, replacing any stored copy with the
// same id. Absent chats are inserted at index 0.
func (s *Store) UpsertChatToFront(chat models.Chat) {
	s.update(func() []EventKind {
		s.upsertChatToFrontLocked(chat)
		return []EventKind{ChatsChanged}
	})
}

// UpdateLastMessage sets the last message of a known chat and moves it to the
// front. Unknown chats are ignored until the next FetchChats.
func (s *Store) UpdateLastMessage(chatID string, message models.Message) bool {
	var applied bool
	s.update(func() []EventKind {
		applied = s.updateLastMessageLocked(chatID, message)
		if !applied {
			return nil
		}
		return []EventKind{ChatsChanged}
	})
	return applied
}

func (s *Store) upsertChatToFrontLocked(chat models.Chat) {
	next := make([]models.Chat, 0, len(s.chats)+1)
	next = append(next, cloneChat(chat))
	for _, c := range s.chats {
		if c.ID == chat.ID {
			continue
		}
		next = append(next, c)
	}
	s.chats = next
}

func (s *Store) updateLastMessageLocked(chatID string, message models.Message) bool {
	for _, c := range s.chats {
		if c.ID != chatID {
			continue
		}
		last := cloneMessage(message)
		c.LastMessage = &last
		s.upsertChatToFrontLocked(c)
		return true
	}
	return false
}

// SearchChats filters the chat list for the current user without touching
// the stored order.
func (s *Store) SearchChats(query string) []models.Chat {
	selfID := ""
	if user, ok := s.CurrentUser(); ok {
		selfID = user.ID
	}
	return FilterChats(s.Chats(), query, selfID)
}

// FilterChats keeps the chats whose group name or any participant other than
// selfID contains query, ignoring case. Order is preserved.
func FilterChats(chats []models.Chat, query, selfID string) []models.Chat {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return cloneChats(chats)
	}

	var out []models.Chat
	for _, chat := range chats {
		if matchesChat(chat, query, selfID) {
			out = append(out, cloneChat(chat))
		}
	}
	return out
}

func matchesChat(chat models.Chat, query, selfID string) bool {
	if strings.Contains(strings.ToLower(chat.GroupName), query) {
		return true
	}
	for _, p := range chat.Participants {
		if p.ID == selfID {
			continue
		}
		if strings.Contains(strings.ToLower(p.Name), query) {
			return true
		}
	}
	return false
}

// dedupeChats keeps the first occurrence of every chat id.
func dedupeChats(chats []models.Chat) []models.Chat {
	seen := make(map[string]struct{}, len(chats))
	out := make([]models.Chat, 0, len(chats))
	for _, c := range chats {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
