package backend

import (
	"context"

	"bally/internal/amqp"
	"bally/internal/records"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the store, the optional event client and a cleanup
// function releasing both.
type BackendResult struct {
	Store records.Store

	// Events is nil when AMQP is not configured or could not be reached.
	Events *amqp.Client

	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory backend specific
	SeedFile string

	// Record events, optional for both backends
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// Shared reports whether several processes can work on the same data.
// The worker needs a shared backend to see the API's writes.
func (bt BackendType) Shared() bool {
	return bt == SQLiteBackend
}
