package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bally/internal/amqp"
	"bally/internal/records"
	"bally/internal/records/memory"
	"bally/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store records.Store
		err   error
	)
	switch config.Type {
	case SQLiteBackend:
		store, err = f.createSQLiteStore(config)
	case MemoryBackend:
		store, err = f.createMemoryStore(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	events := f.createEventClient(config)

	return &BackendResult{
		Store:  store,
		Events: events,
		Cleanup: func() error {
			var errs []error
			if events != nil {
				errs = append(errs, events.Close())
			}
			errs = append(errs, store.Close())
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) createSQLiteStore(config Config) (records.Store, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return repo, nil
}

func (f *DefaultFactory) createMemoryStore(config Config) (records.Store, error) {
	if config.SeedFile == "" {
		f.logger.Info("Initialized memory backend without seed data")
		return memory.New(), nil
	}
	store, err := memory.NewFromFile(config.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load seed file %s: %w", config.SeedFile, err)
	}
	snap := store.Snapshot()
	f.logger.Info("Initialized memory backend",
		"seed_file", config.SeedFile,
		"suppliers", len(snap.Suppliers),
		"invoices", len(snap.Invoices))
	return store, nil
}

// createEventClient connects to AMQP when configured. A broker that cannot
// be reached disables events instead of failing startup.
func (f *DefaultFactory) createEventClient(config Config) *amqp.Client {
	if config.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without record events", "error", err)
		return nil
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client
}
