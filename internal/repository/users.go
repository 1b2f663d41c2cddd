package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/saravenpi/whopchat/internal/models"
)

// AIUserName is the display name of the seeded assistant account.
const AIUserName = "Whop AI"

type NewUser struct {
	Name         string
	Email        string
	PasswordHash string
	Avatar       string
	IsAI         bool
}

const userColumns = `id, name, COALESCE(email, ''), avatar, is_ai`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Avatar, &u.IsAI); err != nil {
		return nil, err
	}
	return &u, nil
}

func (d *DB) CreateUser(ctx context.Context, nu NewUser) (*models.User, error) {
	user := models.User{
		ID:     d.newID(),
		Name:   strings.TrimSpace(nu.Name),
		Email:  strings.ToLower(strings.TrimSpace(nu.Email)),
		Avatar: nu.Avatar,
		IsAI:   nu.IsAI,
	}

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, avatar, is_ai, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, nullString(user.Email), nu.PasswordHash, user.Avatar, user.IsAI, unixNano(d.now()))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return &user, nil
}

// UserByEmail returns the user and its password hash.
func (d *DB) UserByEmail(ctx context.Context, email string) (*models.User, string, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+userColumns+`, password_hash FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)))

	var u models.User
	var hash string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Avatar, &u.IsAI, &hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to query user: %w", err)
	}
	return &u, hash, nil
}

func (d *DB) UserByID(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(d.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}

// ListUsers returns every user except excludeID, AI first, then by name.
func (d *DB) ListUsers(ctx context.Context, excludeID string) ([]models.User, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id != ? ORDER BY is_ai DESC, name COLLATE NOCASE`,
		excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// EnsureAIUser returns the assistant account, creating it on first start.
func (d *DB) EnsureAIUser(ctx context.Context) (*models.User, error) {
	u, err := scanUser(d.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE is_ai = 1 LIMIT 1`))
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query ai user: %w", err)
	}

	u, err = d.CreateUser(ctx, NewUser{Name: AIUserName, Avatar: "placeholder", IsAI: true})
	if err != nil {
		return nil, fmt.Errorf("failed to seed ai user: %w", err)
	}
	d.logger.Info("seeded ai user", zap.String("user_id", u.ID))
	return u, nil
}
