package backend

import (
	"context"
	"fmt"

	"feeledger/internal/log"
	"feeledger/internal/storage"
	"feeledger/internal/storage/memory"
	"feeledger/internal/storage/postgres"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case PostgresBackend:
		return f.createPostgresBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{Stores: repo, Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := postgres.Open(postgres.Config{
		DSN:          config.PostgresDSN,
		MaxIdleConns: config.PostgresMaxIdleConns,
		MaxOpenConns: config.PostgresMaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres store: %w", err)
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	f.logger.Info("Initialized postgres backend",
		"max_idle_conns", config.PostgresMaxIdleConns,
		"max_open_conns", config.PostgresMaxOpenConns)

	return &BackendResult{Stores: store, Cleanup: store.Close}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	f.logger.Warn("Using in-memory backend; data is lost on restart")
	return &BackendResult{Stores: memory.New()}, nil
}
