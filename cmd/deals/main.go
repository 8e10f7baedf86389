package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"deals/internal/auth"
	"deals/internal/cli"
	"deals/internal/config"
	apphttp "deals/internal/http"
	"deals/internal/log"
	"deals/internal/services"
)

func main() {
	ctx, cancel := cli.SignalContext()
	defer cancel()

	cfg, err := cli.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("application failed", log.Err(err))
		os.Exit(1)
	}
	logger.Info("application stopped")
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
	store := backendResult.Store

	authenticator := auth.New(store, cfg.SessionSecret, cfg.SessionTTL)
	if cfg.AdminPassword != "" {
		if err := authenticator.EnsureUser(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			return fmt.Errorf("bootstrap admin user: %w", err)
		}
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Deals:          services.NewDealService(store, backendResult.Publisher),
		Reports:        services.NewReportService(store),
		Auth:           authenticator,
		Ready:          store.Ping,
		Logger:         logger.WithComponent(log.ComponentHTTP),
		CookieSecure:   cfg.CookieSecure,
		LoginRateLimit: cfg.LoginRateLimit,
	})
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	cli.RunMetricsServer(ctx, g, cfg.MetricsAddr)
	g.Go(func() error {
		return srv.Run(ctx)
	})

	logger.Info("Starting deals server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp", backendResult.Publisher != nil)
	return g.Wait()
}
