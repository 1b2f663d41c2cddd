// Package api talks to the chat server's REST endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/saravenpi/whopchat/internal/chatsync"
	"github.com/saravenpi/whopchat/internal/models"
)

// CookieName is the session cookie set by the server on login.
const CookieName = "accessToken"

// Error is a failed API call. It unwraps to one of the chatsync error kinds.
type Error struct {
	Status  int
	Message string
	Kind    error
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func (e *Error) UserMessage() string {
	return e.Message
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *zap.Logger
}

// New creates a client for the server at baseURL, e.g. http://localhost:8000.
func New(baseURL string, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL: u,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Jar:     jar,
		},
		logger: logger,
	}, nil
}

// BaseURL returns the server address the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Token returns the session token currently held in the cookie jar.
func (c *Client) Token() string {
	for _, cookie := range c.http.Jar.Cookies(c.baseURL) {
		if cookie.Name == CookieName {
			return cookie.Value
		}
	}
	return ""
}

// SetToken restores a session token saved from an earlier login.
func (c *Client) SetToken(token string) {
	c.http.Jar.SetCookies(c.baseURL, []*http.Cookie{{
		Name:  CookieName,
		Value: token,
		Path:  "/",
	}})
}

// ClearToken drops the session token held by the client.
func (c *Client) ClearToken() {
	c.http.Jar.SetCookies(c.baseURL, []*http.Cookie{{
		Name:   CookieName,
		Path:   "/",
		MaxAge: -1,
	}})
}

// Cookie returns the session cookie header value for the socket handshake.
func (c *Client) Cookie() string {
	token := c.Token()
	if token == "" {
		return ""
	}
	return (&http.Cookie{Name: CookieName, Value: token}).String()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+"/api"+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return &Error{Kind: chatsync.ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("request done",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode))

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Status: resp.StatusCode, Kind: chatsync.ErrNetwork, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var payload struct {
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &payload); err != nil || payload.Message == "" {
		payload.Message = strings.TrimSpace(string(data))
	}

	kind := chatsync.ErrNetwork
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		kind = chatsync.ErrUnauthorized
	case resp.StatusCode < 500:
		kind = chatsync.ErrValidation
	}

	return &Error{Status: resp.StatusCode, Message: payload.Message, Kind: kind}
}

// IsUnauthorized reports whether err means the user has to log in again.
func IsUnauthorized(err error) bool {
	return errors.Is(err, chatsync.ErrUnauthorized)
}

var _ chatsync.RemoteAPI = (*Client)(nil)

func (c *Client) ListChats(ctx context.Context) ([]models.Chat, error) {
	var out struct {
		Chats []models.Chat `json:"chats"`
	}
	if err := c.do(ctx, http.MethodGet, "/chats", nil, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

func (c *Client) GetChat(ctx context.Context, chatID string) (*models.SingleChat, error) {
	var out models.SingleChat
	if err := c.do(ctx, http.MethodGet, "/chats/"+url.PathEscape(chatID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateChat(ctx context.Context, payload models.CreateChatPayload) (*models.Chat, error) {
	var out struct {
		Chat models.Chat `json:"chat"`
	}
	if err := c.do(ctx, http.MethodPost, "/chats", payload, &out); err != nil {
		return nil, err
	}
	return &out.Chat, nil
}

func (c *Client) SendMessage(ctx context.Context, req models.SendMessageRequest) (*models.SendMessageResponse, error) {
	var out models.SendMessageResponse
	if err := c.do(ctx, http.MethodPost, "/messages", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var out struct {
		Users []models.User `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/users", nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}
