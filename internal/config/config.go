// Package config loads process configuration for the sagaflow binary from
// SAGAFLOW_* environment variables. CLI flags override these values.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Router backends.
const (
	RouterLog   = "log"
	RouterRedis = "redis"
	RouterNone  = "none"
)

// Config is the environment-derived configuration.
type Config struct {
	LogLevel  string `env:"SAGAFLOW_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"SAGAFLOW_LOG_FORMAT" envDefault:"text"`

	Store       string        `env:"SAGAFLOW_STORE" envDefault:"file"`
	Dir         string        `env:"SAGAFLOW_DIR" envDefault:".sagaflow"`
	SQLitePath  string        `env:"SAGAFLOW_SQLITE_PATH" envDefault:".sagaflow/sagaflow.db"`
	RedisURL    string        `env:"SAGAFLOW_REDIS_URL"`
	RedisPrefix string        `env:"SAGAFLOW_REDIS_PREFIX" envDefault:"sagaflow:"`
	RedisTTL    time.Duration `env:"SAGAFLOW_REDIS_TTL"`

	Router string `env:"SAGAFLOW_ROUTER" envDefault:"log"`
	// History enables the append-only transition log in SQLitePath.
	History bool `env:"SAGAFLOW_HISTORY"`

	EncryptionKey          string   `env:"SAGAFLOW_ENCRYPTION_KEY"`
	EncryptionFallbackKeys []string `env:"SAGAFLOW_ENCRYPTION_FALLBACK_KEYS" envSeparator:","`
	PIIKeys                []string `env:"SAGAFLOW_PII_KEYS" envSeparator:","`

	LockTTL         time.Duration `env:"SAGAFLOW_LOCK_TTL" envDefault:"30s"`
	PersistAttempts int           `env:"SAGAFLOW_PERSIST_ATTEMPTS" envDefault:"3"`

	Commands string `env:"SAGAFLOW_COMMANDS" envDefault:"commands.yaml"`
	Addr     string `env:"SAGAFLOW_ADDR" envDefault:":8080"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks enumerations and key material.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreFile, StoreRedis, StoreSQLite:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	switch c.Router {
	case RouterLog, RouterRedis, RouterNone:
	default:
		return fmt.Errorf("unknown router %q", c.Router)
	}
	if (c.Store == StoreRedis || c.Router == RouterRedis) && c.RedisURL == "" {
		return fmt.Errorf("SAGAFLOW_REDIS_URL is required for the redis backend")
	}
	if c.PersistAttempts < 1 {
		return fmt.Errorf("persist attempts must be at least 1, got %d", c.PersistAttempts)
	}
	if _, _, err := c.Keys(); err != nil {
		return err
	}
	return nil
}

// Keys decodes the encryption keys. Both are nil when encryption is off.
func (c Config) Keys() (active []byte, fallback [][]byte, err error) {
	if c.EncryptionKey == "" {
		return nil, nil, nil
	}
	if active, err = DecodeKey(c.EncryptionKey); err != nil {
		return nil, nil, fmt.Errorf("SAGAFLOW_ENCRYPTION_KEY: %w", err)
	}
	for i, k := range c.EncryptionFallbackKeys {
		key, err := DecodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("SAGAFLOW_ENCRYPTION_FALLBACK_KEYS[%d]: %w", i, err)
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

// DecodeKey accepts a 32-byte key as 64 hex characters or standard base64.
func DecodeKey(s string) ([]byte, error) {
	if b, err := hex.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	return nil, fmt.Errorf("key must be 32 bytes, hex or base64 encoded")
}
