// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/letterpet/client-go/internal/session"
)

// Config holds all application configuration, shared between the chat
// client and the loopback dev server.
type Config struct {
	// Username is the default identity of the local participant.
	Username string
	// SocketURL is the chat socket endpoint.
	SocketURL string
	// DirectoryURL is the base URL of the directory REST backend.
	DirectoryURL string
	// ReconnectDelay is the fixed wait between reconnect attempts.
	ReconnectDelay time.Duration

	// Port and DBPath configure the dev server.
	Port   string
	DBPath string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Username:       getEnv("CHAT_USERNAME", ""),
		SocketURL:      getEnv("CHAT_SOCKET_URL", "ws://localhost:8080/chat-socket"),
		DirectoryURL:   getEnv("CHAT_DIRECTORY_URL", "http://localhost:8080"),
		ReconnectDelay: getEnvDuration("CHAT_RECONNECT_DELAY", session.DefaultReconnectDelay),
		Port:           getEnv("PORT", "8080"),
		DBPath:         getEnv("DB_PATH", "./data/letterpet.db"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.SocketURL == "" {
		return fmt.Errorf("CHAT_SOCKET_URL cannot be empty")
	}
	if c.DirectoryURL == "" {
		return fmt.Errorf("CHAT_DIRECTORY_URL cannot be empty")
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("CHAT_RECONNECT_DELAY must be > 0")
	}
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
