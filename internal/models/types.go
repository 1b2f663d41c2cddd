package models

import (
	"strings"
	"time"
)

type User struct {
	ID     string `json:"_id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Email  string `json:"email,omitempty" yaml:"email,omitempty"`
	Avatar string `json:"avatar,omitempty" yaml:"avatar,omitempty"`
	IsAI   bool   `json:"isAI" yaml:"is_ai"`
}

type Chat struct {
	ID           string    `json:"_id"`
	Participants []User    `json:"participants"`
	IsGroup      bool      `json:"isGroup"`
	GroupName    string    `json:"groupName,omitempty"`
	IsAIChat     bool      `json:"isAIChat"`
	LastMessage  *Message  `json:"lastMessage"`
	CreatedBy    string    `json:"createdBy,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasAIParticipant reports whether any participant is a synthetic AI user.
func (c Chat) HasAIParticipant() bool {
	for _, p := range c.Participants {
		if p.IsAI {
			return true
		}
	}
	return false
}

// AIParticipant returns the first AI participant of the chat.
func (c Chat) AIParticipant() (User, bool) {
	for _, p := range c.Participants {
		if p.IsAI {
			return p, true
		}
	}
	return User{}, false
}

// Title is the group name for group chats, otherwise the names of the
// participants other than selfID.
func (c Chat) Title(selfID string) string {
	if c.IsGroup && c.GroupName != "" {
		return c.GroupName
	}

	names := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.ID == selfID {
			continue
		}
		names = append(names, p.Name)
	}
	if len(names) == 0 {
		return "Unknown chat"
	}
	return strings.Join(names, ", ")
}

type Message struct {
	ID        string    `json:"_id"`
	ChatID    string    `json:"chatId"`
	Sender    *User     `json:"sender"`
	Content   string    `json:"content"`
	Image     string    `json:"image,omitempty"`
	ReplyTo   *Message  `json:"replyTo"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Local-only fields, never sent over the wire.
	Status    string    `json:"-"`
	Streaming bool      `json:"-"`
	State     SendState `json:"-"`
}

// SenderID returns the sender's id, or "" when the sender is unknown.
func (m Message) SenderID() string {
	if m.Sender == nil {
		return ""
	}
	return m.Sender.ID
}

// IsPending reports whether the message is an optimistic entry that has not
// been confirmed by the server yet.
func (m Message) IsPending() bool {
	_, ok := m.State.(PendingSend)
	return ok
}

// IsFailed reports whether the send that created this entry failed.
func (m Message) IsFailed() bool {
	_, ok := m.State.(FailedSend)
	return ok
}

// SingleChat is the chat currently open in the UI together with its messages
// in insertion order.
type SingleChat struct {
	Chat     Chat      `json:"chat"`
	Messages []Message `json:"messages"`
}

// SendState tracks where a message is in its send lifecycle.
// It is one of PendingSend, Confirmed or FailedSend.
type SendState interface {
	isSendState()
}

// PendingSend is an optimistic message keyed by a locally generated id.
type PendingSend struct {
	TempID string
}

// Confirmed is a message persisted by the server.
type Confirmed struct {
	ServerID string
}

// FailedSend is an optimistic message whose send request failed.
type FailedSend struct {
	TempID string
	Reason string
}

func (PendingSend) isSendState() {}
func (Confirmed) isSendState()   {}
func (FailedSend) isSendState()  {}

type CreateChatPayload struct {
	Participants []string `json:"participants"`
	IsGroup      bool     `json:"isGroup,omitempty"`
	GroupName    string   `json:"groupName,omitempty"`
}

type SendMessagePayload struct {
	ChatID  string   `json:"chatId"`
	Content string   `json:"content,omitempty"`
	Image   string   `json:"image,omitempty"`
	ReplyTo *Message `json:"-"`
}

// SendMessageRequest is the wire body of POST /messages.
type SendMessageRequest struct {
	ChatID      string `json:"chatId"`
	Content     string `json:"content,omitempty"`
	Image       string `json:"image,omitempty"`
	ReplyToID   string `json:"replyToId,omitempty"`
	AIMessageID string `json:"aiMessageId,omitempty"`
}

type SendMessageResponse struct {
	UserMessage Message  `json:"userMessage"`
	AIResponse  *Message `json:"aiResponse,omitempty"`
}

// StreamChunk is a piece of an AI reply pushed while it is being generated.
type StreamChunk struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	Delta     string `json:"delta"`
	Done      bool   `json:"done"`
}

// WSMessage is the envelope of every socket frame.
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

const (
	EventMessageNew   = "message:new"
	EventMessageChunk = "message:chunk"
	EventChatNew      = "chat:new"
	EventChatJoin     = "chat:join"
	EventChatLeave    = "chat:leave"
)

type ChatRoom struct {
	ChatID string `json:"chatId"`
}
