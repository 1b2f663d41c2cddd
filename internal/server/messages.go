package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/saravenpi/whopchat/internal/assistant"
	"github.com/saravenpi/whopchat/internal/models"
	"github.com/saravenpi/whopchat/internal/repository"
)

// historyLimit is how many earlier messages the assistant sees.
const historyLimit = 30

// sendMessage handles POST /api/messages
func (s *Server) sendMessage(c *gin.Context) {
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.ChatID == "" {
		respondError(c, http.StatusBadRequest, "chatId is required")
		return
	}
	if req.Content == "" && req.Image == "" {
		respondError(c, http.StatusBadRequest, "Either content or image must be provided")
		return
	}

	ctx := c.Request.Context()
	user := currentUser(c)

	chat, err := s.repo.ChatByID(ctx, req.ChatID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("failed to load chat", zap.String("chat_id", req.ChatID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Failed to send message")
		return
	}
	if chat == nil || !isParticipant(*chat, user.ID) {
		respondError(c, http.StatusNotFound, "Chat not found or unauthorized")
		return
	}

	userMessage, err := s.repo.CreateMessage(ctx, repository.NewMessage{
		ChatID:    chat.ID,
		SenderID:  user.ID,
		Content:   req.Content,
		Image:     req.Image,
		ReplyToID: req.ReplyToID,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(c, http.StatusBadRequest, "Reply message not found")
			return
		}
		s.logger.Error("failed to store message", zap.String("chat_id", chat.ID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Failed to send message")
		return
	}

	members := participantIDs(*chat)
	s.hub.ToUsers(members, user.ID, models.EventMessageNew, userMessage)

	var aiResponse *models.Message
	if chat.HasAIParticipant() && req.Content != "" {
		aiResponse = s.replyAsAssistant(ctx, *chat, *userMessage, req.AIMessageID)
		if aiResponse != nil {
			s.hub.ToUsers(members, user.ID, models.EventMessageNew, aiResponse)
		}
	}

	c.JSON(http.StatusCreated, models.SendMessageResponse{UserMessage: *userMessage, AIResponse: aiResponse})
}

// replyAsAssistant generates and stores the AI participant's answer. Partial
// text is streamed to the chat room keyed by streamID, the sender's
// placeholder id. A nil result means no reply could be produced.
func (s *Server) replyAsAssistant(ctx context.Context, chat models.Chat, prompt models.Message, streamID string) *models.Message {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReplyTimeout)
	defer cancel()

	history, err := s.repo.RecentMessages(ctx, chat.ID, historyLimit+1)
	if err != nil {
		s.logger.Error("failed to load history", zap.String("chat_id", chat.ID), zap.Error(err))
		return nil
	}

	turns := make([]assistant.Turn, 0, len(history))
	for _, m := range history {
		if m.ID == prompt.ID {
			continue
		}
		turns = append(turns, assistant.Turn{FromAssistant: m.SenderID() == s.aiUser.ID, Text: m.Content})
	}

	onDelta := func(delta string) {
		if streamID == "" {
			return
		}
		s.hub.ToRoom(chat.ID, models.EventMessageChunk, models.StreamChunk{
			ChatID:    chat.ID,
			MessageID: streamID,
			Delta:     delta,
		})
	}

	text, err := s.responder.Reply(ctx, turns, prompt.Content, onDelta)
	if err != nil {
		s.logger.Error("assistant reply failed", zap.String("chat_id", chat.ID), zap.Error(err))
		return nil
	}

	reply, err := s.repo.CreateMessage(context.WithoutCancel(ctx), repository.NewMessage{
		ChatID:   chat.ID,
		SenderID: s.aiUser.ID,
		Content:  text,
	})
	if err != nil {
		s.logger.Error("failed to store assistant reply", zap.String("chat_id", chat.ID), zap.Error(err))
		return nil
	}

	if streamID != "" {
		s.hub.ToRoom(chat.ID, models.EventMessageChunk, models.StreamChunk{ChatID: chat.ID, MessageID: streamID, Done: true})
	}
	return reply
}

func isParticipant(chat models.Chat, userID string) bool {
	for _, p := range chat.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}
