package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/saravenpi/whopchat/internal/models"
)

type NewChat struct {
	CreatorID    string
	Participants []string
	IsGroup      bool
	GroupName    string
}

// CreateChat stores a chat between the creator and the participants. A
// direct chat that already exists between the same two users is returned
// instead of creating a second one.
func (d *DB) CreateChat(ctx context.Context, nc NewChat) (*models.Chat, error) {
	members := []string{nc.CreatorID}
	seen := map[string]bool{nc.CreatorID: true}
	for _, id := range nc.Participants {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}
	if len(members) < 2 {
		return nil, fmt.Errorf("chat needs another participant: %w", ErrNotFound)
	}

	if !nc.IsGroup && len(members) == 2 {
		existing, err := d.findDirectChat(ctx, members[0], members[1])
		if err != nil {
			return nil, err
		}
		if existing != "" {
			return d.ChatByID(ctx, existing)
		}
	}

	chatID := d.newID()
	now := unixNano(d.now())

	err := d.withTx(ctx, func(tx *sql.Tx) error {
		var known, ai int
		args := make([]any, len(members))
		for i, id := range members {
			args[i] = id
		}
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*), COALESCE(SUM(is_ai), 0) FROM users WHERE id IN (`+placeholders(len(members))+`)`,
			args...).Scan(&known, &ai)
		if err != nil {
			return fmt.Errorf("failed to check participants: %w", err)
		}
		if known != len(members) {
			return fmt.Errorf("participant does not exist: %w", ErrNotFound)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chats (id, is_group, group_name, is_ai_chat, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			chatID, nc.IsGroup, nc.GroupName, ai > 0, nc.CreatorID, now, now); err != nil {
			return fmt.Errorf("failed to insert chat: %w", err)
		}

		for i, id := range members {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO chat_participants (chat_id, user_id, position) VALUES (?, ?, ?)`,
				chatID, id, i); err != nil {
				return fmt.Errorf("failed to insert participant: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return d.ChatByID(ctx, chatID)
}

func (d *DB) findDirectChat(ctx context.Context, a, b string) (string, error) {
	var id string
	err := d.db.QueryRowContext(ctx, `
		SELECT c.id
		FROM chats c
		WHERE c.is_group = 0
		AND (SELECT COUNT(*) FROM chat_participants p WHERE p.chat_id = c.id) = 2
		AND EXISTS (SELECT 1 FROM chat_participants p WHERE p.chat_id = c.id AND p.user_id = ?)
		AND EXISTS (SELECT 1 FROM chat_participants p WHERE p.chat_id = c.id AND p.user_id = ?)
		LIMIT 1
	`, a, b).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up direct chat: %w", err)
	}
	return id, nil
}

const chatColumns = `c.id, c.is_group, c.group_name, c.is_ai_chat, COALESCE(c.last_message_id, ''), c.created_by, c.created_at, c.updated_at`

type chatRow struct {
	chat          models.Chat
	lastMessageID string
}

func scanChat(row interface{ Scan(...any) error }) (chatRow, error) {
	var r chatRow
	var created, updated int64
	err := row.Scan(&r.chat.ID, &r.chat.IsGroup, &r.chat.GroupName, &r.chat.IsAIChat,
		&r.lastMessageID, &r.chat.CreatedBy, &created, &updated)
	r.chat.CreatedAt = fromUnixNano(created)
	r.chat.UpdatedAt = fromUnixNano(updated)
	return r, err
}

// ChatByID loads a chat with its participants and last message.
func (d *DB) ChatByID(ctx context.Context, chatID string) (*models.Chat, error) {
	r, err := scanChat(d.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats c WHERE c.id = ?`, chatID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query chat: %w", err)
	}

	chats, err := d.hydrate(ctx, []chatRow{r})
	if err != nil {
		return nil, err
	}
	return &chats[0], nil
}

// ChatsForUser returns the chats userID takes part in, most recently active
// first.
func (d *DB) ChatsForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+chatColumns+`
		FROM chats c
		JOIN chat_participants p ON p.chat_id = c.id
		WHERE p.user_id = ?
		ORDER BY c.updated_at DESC, c.rowid DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}

	var list []chatRow
	for rows.Next() {
		r, err := scanChat(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		list = append(list, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chats: %w", err)
	}

	return d.hydrate(ctx, list)
}

func (d *DB) hydrate(ctx context.Context, list []chatRow) ([]models.Chat, error) {
	chats := make([]models.Chat, 0, len(list))
	if len(list) == 0 {
		return chats, nil
	}

	chatIDs := make([]string, 0, len(list))
	var messageIDs []string
	for _, r := range list {
		chatIDs = append(chatIDs, r.chat.ID)
		if r.lastMessageID != "" {
			messageIDs = append(messageIDs, r.lastMessageID)
		}
	}

	participants, err := d.participantsFor(ctx, chatIDs)
	if err != nil {
		return nil, err
	}
	lastMessages, err := d.messagesByID(ctx, messageIDs)
	if err != nil {
		return nil, err
	}

	for _, r := range list {
		chat := r.chat
		chat.Participants = participants[chat.ID]
		if msg, ok := lastMessages[r.lastMessageID]; ok {
			chat.LastMessage = &msg
		}
		chats = append(chats, chat)
	}
	return chats, nil
}

// participantsFor fetches participants for several chats in one query.
func (d *DB) participantsFor(ctx context.Context, chatIDs []string) (map[string][]models.User, error) {
	args := make([]any, len(chatIDs))
	for i, id := range chatIDs {
		args[i] = id
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT p.chat_id, u.id, u.name, COALESCE(u.email, ''), u.avatar, u.is_ai
		FROM chat_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.chat_id IN (`+placeholders(len(chatIDs))+`)
		ORDER BY p.chat_id, p.position
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	participants := make(map[string][]models.User)
	for rows.Next() {
		var chatID string
		var u models.User
		if err := rows.Scan(&chatID, &u.ID, &u.Name, &u.Email, &u.Avatar, &u.IsAI); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants[chatID] = append(participants[chatID], u)
	}
	return participants, rows.Err()
}

// IsParticipant reports whether userID belongs to chatID.
func (d *DB) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_participants WHERE chat_id = ? AND user_id = ?`,
		chatID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return n > 0, nil
}
