package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"deals/internal/cli"
	"deals/internal/config"
	"deals/internal/log"
	"deals/internal/sheets"
	gsheet "deals/internal/sheets/google"
	memsheet "deals/internal/sheets/memory"
	"deals/internal/worker"
)

func main() {
	ctx, cancel := cli.SignalContext()
	defer cancel()

	cfg, err := cli.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting deals-worker")

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker failed", log.Err(err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	backendResult, err := cli.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := backendResult.Close(); err != nil {
			logger.Error("Failed to close backend", log.Err(err))
		}
	}()

	sheet, err := openSheet(ctx, cfg, logger)
	if err != nil {
		return err
	}
	syncWorker := worker.NewSyncWorker(backendResult.Store, sheet, cfg.SyncBatchSize)

	// Catch up on deals saved while the worker was down
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", log.Err(err))
	}

	g, ctx := errgroup.WithContext(ctx)
	cli.RunMetricsServer(ctx, g, cfg.MetricsAddr)
	g.Go(func() error {
		return worker.NewScheduler(cfg.SyncSchedule, syncWorker).Run(ctx)
	})

	if broker := backendResult.Broker; broker != nil {
		g.Go(func() error {
			err := broker.ConsumeMessages(ctx, syncWorker.HandleSyncMessage, syncWorker.HandleDeleteMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("consume messages: %w", err)
			}
			return nil
		})
	} else {
		logger.Info("Skipping AMQP message consumption, relying on the scheduled sweep")
	}

	return g.Wait()
}

// openSheet picks the Google Sheets mirror when a spreadsheet is configured,
// otherwise an in-memory sheet useful for local runs.
func openSheet(ctx context.Context, cfg config.Config, logger *log.Logger) (sheets.DealSheet, error) {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Info("Google Sheets disabled, mirroring into memory")
		return memsheet.New(), nil
	}

	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("google sheets client: %w", err)
	}
	if err := client.EnsureHeader(ctx); err != nil {
		return nil, err
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}
