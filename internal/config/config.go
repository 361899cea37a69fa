// Package config loads the bot configuration from the environment. Chat
// identities are mutable behind the Config so that a group-to-supergroup
// migration can be healed at runtime without rebinding globals.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

// DefaultRetentionDays is how long published events are kept before the
// archive sweep moves them to archived.
const DefaultRetentionDays = 180

// Config holds the bot configuration.
type Config struct {
	BotToken      string
	AdminID       int64
	DBPath        string
	RetentionDays int

	mu        sync.RWMutex
	channelID int64
	groupID   int64
}

// Load reads .env (when present) and the environment.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments may configure through the
	// environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		BotToken:      os.Getenv("BOT_TOKEN"),
		DBPath:        getEnv("DB_PATH", "./bot.db"),
		RetentionDays: DefaultRetentionDays,
	}
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}

	var err error
	if cfg.AdminID, err = parseID("ADMIN_ID"); err != nil {
		return nil, err
	}
	if cfg.channelID, err = parseID("CHANNEL_ID"); err != nil {
		return nil, err
	}
	if cfg.groupID, err = parseID("GROUP_ID"); err != nil {
		return nil, err
	}
	if cfg.AdminID == 0 {
		return nil, fmt.Errorf("ADMIN_ID is required")
	}

	if v := os.Getenv("RETENTION_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			return nil, fmt.Errorf("invalid RETENTION_DAYS: %q", v)
		}
		cfg.RetentionDays = days
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseID(key string) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return id, nil
}

// IsAdmin reports whether the user is the administrator.
func (c *Config) IsAdmin(userID int64) bool {
	return userID == c.AdminID
}

// ChannelID returns the current public channel identity.
func (c *Config) ChannelID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channelID
}

// UpdateChannelID records a migrated channel identity.
func (c *Config) UpdateChannelID(id int64) {
	c.mu.Lock()
	c.channelID = id
	c.mu.Unlock()
}

// GroupID returns the current admin group identity.
func (c *Config) GroupID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.groupID
}

// UpdateGroupID records a migrated admin group identity.
func (c *Config) UpdateGroupID(id int64) {
	c.mu.Lock()
	c.groupID = id
	c.mu.Unlock()
}
