package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/saravenpi/whopchat/internal/models"
)

type NewMessage struct {
	ChatID    string
	SenderID  string
	Content   string
	Image     string
	ReplyToID string
}

const messageSelect = `
	SELECT
		m.id, m.chat_id, m.content, m.image, m.created_at, m.updated_at,
		s.id, s.name, COALESCE(s.email, ''), s.avatar, s.is_ai,
		COALESCE(r.id, ''), COALESCE(r.content, ''), COALESCE(rs.id, ''), COALESCE(rs.name, '')
	FROM messages m
	JOIN users s ON s.id = m.sender_id
	LEFT JOIN messages r ON r.id = m.reply_to_id
	LEFT JOIN users rs ON rs.id = r.sender_id
`

func scanMessage(row interface{ Scan(...any) error }) (models.Message, error) {
	var m models.Message
	var sender models.User
	var created, updated int64
	var replyID, replyContent, replySenderID, replySenderName string

	err := row.Scan(&m.ID, &m.ChatID, &m.Content, &m.Image, &created, &updated,
		&sender.ID, &sender.Name, &sender.Email, &sender.Avatar, &sender.IsAI,
		&replyID, &replyContent, &replySenderID, &replySenderName)
	if err != nil {
		return m, err
	}

	m.Sender = &sender
	m.CreatedAt = fromUnixNano(created)
	m.UpdatedAt = fromUnixNano(updated)
	if replyID != "" {
		m.ReplyTo = &models.Message{
			ID:      replyID,
			ChatID:  m.ChatID,
			Content: replyContent,
			Sender:  &models.User{ID: replySenderID, Name: replySenderName},
		}
	}
	return m, nil
}

func collectMessages(rows *sql.Rows) ([]models.Message, error) {
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MessagesForChat returns the chat history oldest first.
func (d *DB) MessagesForChat(ctx context.Context, chatID string) ([]models.Message, error) {
	rows, err := d.db.QueryContext(ctx, messageSelect+`
		WHERE m.chat_id = ?
		ORDER BY m.created_at ASC, m.rowid ASC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	return collectMessages(rows)
}

// RecentMessages returns at most limit messages of a chat, oldest first.
func (d *DB) RecentMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	rows, err := d.db.QueryContext(ctx, messageSelect+`
		WHERE m.chat_id = ?
		ORDER BY m.created_at DESC, m.rowid DESC
		LIMIT ?
	`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}

func (d *DB) messagesByID(ctx context.Context, ids []string) (map[string]models.Message, error) {
	found := make(map[string]models.Message, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := d.db.QueryContext(ctx, messageSelect+`WHERE m.id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	for _, m := range messages {
		found[m.ID] = m
	}
	return found, nil
}

// CreateMessage stores a message and makes it the chat's last message.
func (d *DB) CreateMessage(ctx context.Context, nm NewMessage) (*models.Message, error) {
	id := d.newID()
	now := unixNano(d.now())

	err := d.withTx(ctx, func(tx *sql.Tx) error {
		if nm.ReplyToID != "" {
			var n int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM messages WHERE id = ? AND chat_id = ?`,
				nm.ReplyToID, nm.ChatID).Scan(&n); err != nil {
				return fmt.Errorf("failed to check reply target: %w", err)
			}
			if n == 0 {
				return fmt.Errorf("reply target: %w", ErrNotFound)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, chat_id, sender_id, content, image, reply_to_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, nm.ChatID, nm.SenderID, nm.Content, nm.Image, nullString(nm.ReplyToID), now, now); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE chats SET last_message_id = ?, updated_at = ? WHERE id = ?`,
			id, now, nm.ChatID)
		if err != nil {
			return fmt.Errorf("failed to update chat: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("chat %s: %w", nm.ChatID, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages, err := d.messagesByID(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	m, ok := messages[id]
	if !ok {
		return nil, errors.New("message vanished after insert")
	}
	return &m, nil
}
