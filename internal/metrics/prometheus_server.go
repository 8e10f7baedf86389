package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const httpServerReadHeaderTimeout = 5 * time.Second

type PrometheusServer struct {
	listenAddress string
}

func NewPrometheusServer(listenAddress string) PrometheusServer {
	return PrometheusServer{listenAddress: listenAddress}
}

// Run serves /metrics until ctx is cancelled.
func (p PrometheusServer) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:              p.listenAddress,
		Handler:           mux,
		ReadHeaderTimeout: httpServerReadHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()
		if err := httpServer.Shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.ErrorContext(ctx, "metrics server shutdown", tint.Err(err))
		}
	}()

	slog.InfoContext(ctx, "prometheus server started", "address", p.listenAddress)

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("httpServer.ListenAndServe: %w", err)
	}

	slog.InfoContext(ctx, "prometheus server stopped")
	return nil
}
