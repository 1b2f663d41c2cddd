package chatsync

import "github.com/saravenpi/whopchat/internal/models"

// cloneChat copies c together with everything it points to, so the result
// shares no memory with the Store.
func cloneChat(c models.Chat) models.Chat {
	if c.Participants != nil {
		c.Participants = append([]models.User(nil), c.Participants...)
	}
	if c.LastMessage != nil {
		last := cloneMessage(*c.LastMessage)
		c.LastMessage = &last
	}
	return c
}

func cloneChats(chats []models.Chat) []models.Chat {
	if chats == nil {
		return nil
	}
	out := make([]models.Chat, len(chats))
	for i, c := range chats {
		out[i] = cloneChat(c)
	}
	return out
}

func cloneMessage(m models.Message) models.Message {
	if m.Sender != nil {
		sender := *m.Sender
		m.Sender = &sender
	}
	if m.ReplyTo != nil {
		reply := cloneMessage(*m.ReplyTo)
		m.ReplyTo = &reply
	}
	return m
}
