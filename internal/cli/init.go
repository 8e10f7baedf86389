// Package cli holds the start-up steps shared by cmd/deals and
// cmd/deals-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"deals/internal/backend"
	"deals/internal/config"
	"deals/internal/log"
	"deals/internal/metrics"
)

// SetupLogger builds the process logger from cfg and installs it as the
// slog default.
func SetupLogger(cfg config.Config, component string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)
	return logger
}

// LoadConfig loads the environment (and .env when present) and validates it.
func LoadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// OpenBackend opens the configured store and, when AMQP_URL is set, the broker.
func OpenBackend(ctx context.Context, cfg config.Config, logger *log.Logger) (*backend.Result, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("backend config: %w", err)
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentStorage).Logger).Open(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}
	return res, nil
}

// RunMetricsServer serves /metrics on addr inside g. An empty addr disables it.
func RunMetricsServer(ctx context.Context, g *errgroup.Group, addr string) {
	if addr == "" {
		return
	}
	prometheusServer := metrics.NewPrometheusServer(addr)
	g.Go(func() error {
		if err := prometheusServer.Run(ctx); err != nil {
			return fmt.Errorf("prometheusServer.Run: %w", err)
		}
		return nil
	})
}
