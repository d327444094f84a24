// Package backend opens the ledger store and the optional event
// publisher from configuration.
package backend

import (
	"context"

	"fintrack/internal/amqp"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the opened resources. Events is nil when no broker
// is configured or reachable.
type BackendResult struct {
	Store   *storage.Store
	Events  *amqp.Client
	Cleanup CleanupFunc
}

// Publisher returns Events as a services.EventPublisher, or a nil
// interface when events are disabled.
func (r *BackendResult) Publisher() services.EventPublisher {
	if r.Events == nil {
		return nil
	}
	return r.Events
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Dialect storage.Dialect
	DSN     string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	// RequireEvents turns a broker failure into an error instead of a
	// warning. The mirror worker cannot run without it.
	RequireEvents bool
}
