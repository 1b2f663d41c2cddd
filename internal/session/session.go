// Package session remembers who is logged in between runs.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/saravenpi/whopchat/internal/models"
)

type data struct {
	ServerURL string       `yaml:"server_url"`
	Token     string       `yaml:"token"`
	User      *models.User `yaml:"user,omitempty"`
}

// Session is the identity context: the authenticated user and the token the
// server issued for them. It is safe for concurrent use.
type Session struct {
	path string

	mu   sync.RWMutex
	data data
}

// DefaultPath returns ~/.chime/session.yml.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".chime", "session.yml")
}

// Load reads the session stored at path. A missing file yields a logged-out
// session.
func Load(path string) (*Session, error) {
	s := &Session{path: path}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	if err := yaml.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	return s, nil
}

func (s *Session) CurrentUser() (*models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.User == nil || s.data.User.ID == "" {
		return nil, false
	}
	user := *s.data.User
	return &user, true
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Token
}

// ServerURL is the server the token was issued by.
func (s *Session) ServerURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ServerURL
}

// Save records a successful login and writes it to disk.
func (s *Session) Save(serverURL, token string, user models.User) error {
	if user.ID == "" {
		return fmt.Errorf("session user id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := data{ServerURL: serverURL, Token: token, User: &user}
	raw, err := yaml.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	s.data = next
	return nil
}

// Clear logs out locally and removes the stored session.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = data{}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}
