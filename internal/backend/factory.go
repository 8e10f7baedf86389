// Package backend opens the configured record store together with the
// optional AMQP publisher the web server announces changes through.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"deals/internal/amqp"
	"deals/internal/auth"
	"deals/internal/services"
	"deals/internal/storage"
	"deals/internal/storage/memory"
	"deals/internal/worker"
)

// Store is everything the web server and the sync worker need from a
// record store.
type Store interface {
	services.DealStore
	services.ReportStore
	auth.UserStore
	worker.Store
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*storage.SQLiteRepository)(nil)
	_ Store = (*memory.Store)(nil)
)

// Result is an opened backend. Publisher and Broker are nil when AMQP is
// disabled or unreachable.
type Result struct {
	Store     Store
	Publisher services.Publisher
	Broker    *amqp.Client
}

// Close releases the publisher connection and the store.
func (r *Result) Close() error {
	var errs []error
	if r.Broker != nil {
		errs = append(errs, r.Broker.Close())
	}
	errs = append(errs, r.Store.Close())
	return errors.Join(errs...)
}

type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// Open creates the store for cfg.Type and connects the publisher when
// configured. A broker that cannot be reached is logged, not fatal: deals
// stay pending and the worker's sweep mirrors them later.
func (f *Factory) Open(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var store Store
	switch cfg.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		store = repo
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
	case MemoryBackend:
		store = memory.NewWithManagers(cfg.Managers...)
		f.logger.InfoContext(ctx, "Initialized memory backend", "managers", len(cfg.Managers))
	}

	res := &Result{Store: store}
	if cfg.AMQPURL == "" {
		f.logger.InfoContext(ctx, "AMQP disabled, deal changes will not be published")
		return res, nil
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without sync", "error", err)
		return res, nil
	}
	res.Broker, res.Publisher = client, client
	f.logger.InfoContext(ctx, "Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return res, nil
}
