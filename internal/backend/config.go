package backend

import (
	"errors"
	"fmt"

	"fintrack/internal/config"
	"fintrack/internal/storage"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	dialect, err := appConfig.Dialect()
	if err != nil {
		return Config{}, fmt.Errorf("invalid backend type in config: %w", err)
	}

	return Config{
		Dialect:      dialect,
		DSN:          appConfig.DSN(),
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	switch c.Dialect {
	case storage.SQLite, storage.Postgres:
	default:
		return fmt.Errorf("invalid backend type: %q", c.Dialect)
	}
	if c.DSN == "" {
		return fmt.Errorf("a database location is required for the %s backend", c.Dialect)
	}
	if c.RequireEvents && c.AMQPURL == "" {
		return errors.New("an AMQP URL is required")
	}
	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == "") {
		return errors.New("AMQP exchange and queue are required when an AMQP URL is set")
	}
	return nil
}
