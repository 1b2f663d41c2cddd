package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/saravenpi/whopchat/internal/models"
	"github.com/saravenpi/whopchat/internal/repository"
)

// listUsers handles GET /api/users
func (s *Server) listUsers(c *gin.Context) {
	users, err := s.repo.ListUsers(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.logger.Error("failed to list users", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Failed to retrieve users")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All users fetched successfully", "users": users})
}

// listChats handles GET /api/chats
func (s *Server) listChats(c *gin.Context) {
	chats, err := s.repo.ChatsForUser(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.logger.Error("failed to list chats", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Failed to retrieve chats")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User chats retrieved successfully", "chats": chats})
}

// getChat handles GET /api/chats/:id
func (s *Server) getChat(c *gin.Context) {
	ctx := c.Request.Context()
	chatID := c.Param("id")

	ok, err := s.repo.IsParticipant(ctx, chatID, currentUser(c).ID)
	if err != nil {
		s.logger.Error("failed to check participant", zap.String("chat_id", chatID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Failed to retrieve chat")
		return
	}
	if !ok {
		respondError(c, http.StatusNotFound, "Chat not found or you are not authorized to view this chat")
		return
	}

	chat, err := s.repo.ChatByID(ctx, chatID)
	if err != nil {
		s.logger.Error("failed to load chat", zap.String("chat_id", chatID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Failed to retrieve chat")
		return
	}
	messages, err := s.repo.MessagesForChat(ctx, chatID)
	if err != nil {
		s.logger.Error("failed to load messages", zap.String("chat_id", chatID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Failed to retrieve chat")
		return
	}

	c.JSON(http.StatusOK, models.SingleChat{Chat: *chat, Messages: messages})
}

type createChatRequest struct {
	Participants []string `json:"participants" binding:"required,min=1"`
	IsGroup      bool     `json:"isGroup"`
	GroupName    string   `json:"groupName"`
}

// createChat handles POST /api/chats
func (s *Server) createChat(c *gin.Context) {
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	req.GroupName = strings.TrimSpace(req.GroupName)
	switch {
	case req.IsGroup && req.GroupName == "":
		respondError(c, http.StatusBadRequest, "Group name is required")
		return
	case !req.IsGroup && len(req.Participants) != 1:
		respondError(c, http.StatusBadRequest, "A direct chat needs exactly one other participant")
		return
	}

	user := currentUser(c)
	chat, err := s.repo.CreateChat(c.Request.Context(), repository.NewChat{
		CreatorID:    user.ID,
		Participants: req.Participants,
		IsGroup:      req.IsGroup,
		GroupName:    req.GroupName,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(c, http.StatusBadRequest, "Participant not found")
			return
		}
		s.logger.Error("failed to create chat", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Failed to create chat")
		return
	}

	s.hub.ToUsers(participantIDs(*chat), user.ID, models.EventChatNew, chat)
	c.JSON(http.StatusCreated, gin.H{"message": "Chat created or retrieved successfully", "chat": chat})
}

func participantIDs(chat models.Chat) []string {
	ids := make([]string, 0, len(chat.Participants))
	for _, p := range chat.Participants {
		ids = append(ids, p.ID)
	}
	return ids
}
