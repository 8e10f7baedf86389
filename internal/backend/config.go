package backend

import (
	"errors"
	"fmt"

	"deals/internal/config"
)

// Type selects the record store implementation.
type Type string

const (
	SQLiteBackend Type = "sqlite"
	MemoryBackend Type = "memory"
)

func (t Type) IsValid() bool {
	return t == SQLiteBackend || t == MemoryBackend
}

func (t Type) String() string { return string(t) }

// Config holds what the factory needs to open a store and its publisher.
type Config struct {
	Type Type

	SQLiteDBPath string

	// AMQP is optional; an empty URL disables publishing.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Managers seeds the memory backend.
	Managers []string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig config.Config) (Config, error) {
	cfg := Config{
		Type:         Type(appConfig.DataBackend),
		SQLiteDBPath: appConfig.SQLiteDBPath,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return errors.New("SQLite database path is required for sqlite backend")
		}
	case MemoryBackend:
	default:
		return fmt.Errorf("invalid backend type: %q", c.Type)
	}
	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == "") {
		return errors.New("AMQP exchange and queue are required when AMQP_URL is set")
	}
	return nil
}
