package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ledger/internal/amqp"
	"ledger/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
	dial   func(url, exchange, queue string) (*amqp.Client, error)
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
		dial:   amqp.NewClient,
	}
}

// CreateBackend opens the slot for config.Type and connects the optional
// change publisher.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate backend config: %w", err)
	}

	slot, err := f.createSlot(config)
	if err != nil {
		return nil, err
	}

	result := &BackendResult{Slot: slot}

	if config.AMQPURL != "" {
		client, err := f.dial(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		switch {
		case err != nil && config.RequireAMQP:
			slot.Close()
			return nil, fmt.Errorf("connect AMQP: %w", err)
		case err != nil:
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without change events", "error", err)
		default:
			result.AMQP = client
			result.Publisher = client
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	result.Cleanup = func() error {
		var errs []error
		if result.AMQP != nil {
			if err := result.AMQP.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close AMQP: %w", err))
			}
		}
		if err := slot.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close slot: %w", err))
		}
		return errors.Join(errs...)
	}

	f.logger.InfoContext(ctx, "Initialized backend",
		"type", config.Type.String(),
		"amqp_enabled", result.AMQP != nil)

	return result, nil
}

func (f *DefaultFactory) createSlot(config Config) (storage.Slot, error) {
	switch config.Type {
	case SQLiteBackend:
		slot, err := storage.NewSQLiteSlot(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize SQLite slot: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return slot, nil
	case FileBackend:
		slot, err := storage.NewFileSlot(config.DataDirectory)
		if err != nil {
			return nil, fmt.Errorf("initialize file slot: %w", err)
		}
		f.logger.Info("Initialized file backend", "data_directory", config.DataDirectory)
		return slot, nil
	case MemoryBackend:
		f.logger.Info("Initialized memory backend, nothing will survive a restart")
		return storage.NewMemorySlot(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}
