package chatsync

import (
	"context"

	"go.uber.org/zap"

	"github.com/saravenpi/whopchat/internal/models"
)

const (
	StatusSending = "Sending..."
	StatusFailed  = "Failed to send"
)

// SendMessage shows the message immediately under a temporary id, sends it
// and then swaps the optimistic entry for the confirmed one in place.
//
// When aiEnabled is set and the chat has an AI participant, a second
// placeholder is appended for the reply; it streams until the response
// replaces it. A failed send keeps its entries, marked as failed. Nothing is
// retried.
//
// It returns false when nothing was attempted: no chat is open, the target
// chat is unknown or no user is signed in.
func (s *Store) SendMessage(ctx context.Context, payload models.SendMessagePayload, aiEnabled bool) bool {
	user, ok := s.CurrentUser()
	if payload.ChatID == "" || !ok || user == nil || user.ID == "" {
		return false
	}

	var (
		tempID     = s.newID()
		aiTempID   string
		chat       models.Chat
		haveChat   bool
		sender     = *user
		now        = s.now()
		userStatus = StatusSending
	)
	if aiEnabled {
		userStatus = ""
	}

	s.update(func() []EventKind {
		if s.single == nil {
			return nil
		}
		chat, haveChat = s.chatLocked(payload.ChatID)
		if !haveChat {
			return nil
		}

		s.upsertMessageLocked(payload.ChatID, models.Message{
			ID:        tempID,
			ChatID:    payload.ChatID,
			Sender:    &sender,
			Content:   payload.Content,
			Image:     payload.Image,
			ReplyTo:   payload.ReplyTo,
			CreatedAt: now,
			UpdatedAt: now,
			Status:    userStatus,
			State:     models.PendingSend{TempID: tempID},
		}, "")

		if ai, ok := chat.AIParticipant(); ok && aiEnabled {
			aiTempID = s.newID()
			s.upsertMessageLocked(payload.ChatID, models.Message{
				ID:        aiTempID,
				ChatID:    payload.ChatID,
				Sender:    &ai,
				CreatedAt: now,
				UpdatedAt: now,
				Streaming: true,
				State:     models.PendingSend{TempID: aiTempID},
			}, "")
		}

		s.inFlight++
		s.flags.Sending = true
		return []EventKind{SingleChatChanged, FlagsChanged}
	})
	if !haveChat {
		return false
	}

	req := models.SendMessageRequest{
		ChatID:      payload.ChatID,
		Content:     payload.Content,
		Image:       payload.Image,
		AIMessageID: aiTempID,
	}
	if payload.ReplyTo != nil {
		req.ReplyToID = payload.ReplyTo.ID
	}

	resp, err := s.api.SendMessage(ctx, req)
	if err != nil {
		s.update(func() []EventKind {
			s.markFailedLocked(payload.ChatID, tempID, err)
			if aiTempID != "" {
				s.markFailedLocked(payload.ChatID, aiTempID, err)
			}
			s.finishSendLocked()
			return []EventKind{SingleChatChanged, FlagsChanged}
		})
		s.reportError(err, "Failed to send message")
		return true
	}

	confirmed := confirm(resp.UserMessage)
	var reply *models.Message
	if resp.AIResponse != nil {
		r := confirm(*resp.AIResponse)
		reply = &r
	}

	s.update(func() []EventKind {
		s.upsertMessageLocked(payload.ChatID, confirmed, tempID)
		last := confirmed
		if reply != nil {
			// Without a placeholder the reply is simply appended.
			s.upsertMessageLocked(payload.ChatID, *reply, aiTempID)
			last = *reply
		} else if aiTempID != "" {
			s.markFailedLocked(payload.ChatID, aiTempID, nil)
		}
		s.updateLastMessageLocked(payload.ChatID, last)
		s.finishSendLocked()
		return []EventKind{SingleChatChanged, ChatsChanged, FlagsChanged}
	})

	s.logger.Debug("message sent",
		zap.String("chat_id", payload.ChatID),
		zap.String("temp_id", tempID),
		zap.String("message_id", confirmed.ID),
		zap.Bool("ai_reply", reply != nil))
	return true
}

// chatLocked finds the chat a send targets: the open chat first, then the list.
func (s *Store) chatLocked(chatID string) (models.Chat, bool) {
	if s.single != nil && s.single.Chat.ID == chatID {
		return s.single.Chat, true
	}
	for _, c := range s.chats {
		if c.ID == chatID {
			return c, true
		}
	}
	return models.Chat{}, false
}

func (s *Store) markFailedLocked(chatID, tempID string, err error) {
	if s.single == nil || s.single.Chat.ID != chatID {
		return
	}
	i := s.indexOfLocked(tempID)
	if i < 0 {
		return
	}

	reason := "no reply"
	if err != nil {
		reason = err.Error()
	}

	failed := s.single.Messages[i]
	failed.Status = StatusFailed
	failed.Streaming = false
	failed.State = models.FailedSend{TempID: tempID, Reason: reason}
	s.upsertMessageLocked(chatID, failed, tempID)
}

func (s *Store) finishSendLocked() {
	s.inFlight--
	s.flags.Sending = s.inFlight > 0
}

func confirm(m models.Message) models.Message {
	m.Status = ""
	m.Streaming = false
	m.State = models.Confirmed{ServerID: m.ID}
	return m
}
