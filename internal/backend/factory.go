package backend

import (
	"context"
	"fmt"
	"log/slog"

	"loanbook/internal/adapters"
	"loanbook/internal/ledger/memory"
	"loanbook/internal/storage"
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

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	if err := sqliteRepo.Ping(ctx); err != nil {
		sqliteRepo.Close()
		return nil, fmt.Errorf("ping SQLite database: %w", err)
	}

	adapter := adapters.NewSQLiteAdapter(sqliteRepo)
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Store:     adapter,
		Reminders: adapter,
		Ping:      adapter.Ping,
		Cleanup:   sqliteRepo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	store := memory.New()
	if config.DataFile != "" {
		var err error
		store, err = memory.NewFromFile(config.DataFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open data file: %w", err)
		}
	}

	f.logger.Info("Initialized memory backend", "data_file", config.DataFile)

	return &BackendResult{
		Store:     store,
		Reminders: store,
		Ping:      func(context.Context) error { return nil },
	}, nil
}
