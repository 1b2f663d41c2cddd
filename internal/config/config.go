// Package config loads ~/.chime/config.yml.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the client, server and assistant settings. Every field has a
// default, so an empty or missing file is valid.
type Config struct {
	Client struct {
		ServerURL string `yaml:"server_url"`
		LogFile   string `yaml:"log_file"`
		Debug     bool   `yaml:"debug"`
	} `yaml:"client"`
	Server struct {
		Port           string        `yaml:"port"`
		DatabasePath   string        `yaml:"database_path"`
		JWTSecret      string        `yaml:"jwt_secret"`
		TokenTTL       time.Duration `yaml:"token_ttl"`
		FrontendOrigin string        `yaml:"frontend_origin"`
		Debug          bool          `yaml:"debug"`
	} `yaml:"server"`
	Assistant struct {
		GeminiAPIKey string `yaml:"gemini_api_key"`
		ModelName    string `yaml:"model_name"`
	} `yaml:"assistant"`
}

const (
	DefaultServerURL = "http://localhost:8000"
	DefaultPort      = "8000"
	DefaultModelName = "gemini-1.5-flash"
	DefaultTokenTTL  = 7 * 24 * time.Hour
	devJWTSecret     = "whopchat-dev-secret"
)

// Dir returns ~/.chime.
func Dir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".chime")
}

// DefaultPath returns ~/.chime/config.yml.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yml")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML file at path, fills in defaults and applies the
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("WHOPCHAT_SERVER_URL"); v != "" {
		c.Client.ServerURL = v
	}
	if v := os.Getenv("WHOPCHAT_JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Assistant.GeminiAPIKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.Client.ServerURL == "" {
		c.Client.ServerURL = DefaultServerURL
	}
	if c.Client.LogFile == "" {
		c.Client.LogFile = filepath.Join(Dir(), "whopchat.log")
	}
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if c.Server.DatabasePath == "" {
		c.Server.DatabasePath = filepath.Join(Dir(), "whopchat.db")
	}
	if c.Server.JWTSecret == "" {
		c.Server.JWTSecret = devJWTSecret
	}
	if c.Server.TokenTTL <= 0 {
		c.Server.TokenTTL = DefaultTokenTTL
	}
	if c.Assistant.ModelName == "" {
		c.Assistant.ModelName = DefaultModelName
	}
}

// UsesDevSecret reports whether the server would sign tokens with the
// built-in secret.
func (c *Config) UsesDevSecret() bool {
	return c.Server.JWTSecret == devJWTSecret
}
