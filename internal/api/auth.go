package api

import (
	"context"
	"net/http"

	"github.com/saravenpi/whopchat/internal/models"
)

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Avatar   string `json:"avatar,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	Message string      `json:"message"`
	User    models.User `json:"user"`
}

// Register creates an account and logs it in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	var out userResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", req, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*models.User, error) {
	var out userResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// Status returns the user the current session belongs to.
func (c *Client) Status(ctx context.Context) (*models.User, error) {
	var out userResponse
	if err := c.do(ctx, http.MethodGet, "/auth/status", nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}
