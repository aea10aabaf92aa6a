package main

import (
	"context"
	"net/http"

	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/georgex8001/voting-fun/metrics"
)

// setupMetricsServer starts the Prometheus metrics server at the supplied
// address. An empty address disables it.
func setupMetricsServer(logger polylog.Logger, addr string) (*http.Server, error) {
	if addr == "" {
		return nil, nil
	}
	return metrics.ServeMetrics(logger, addr)
}

// setupPprofServer starts the metric package's pprof server, at the supplied address.
func setupPprofServer(ctx context.Context, logger polylog.Logger, addr string) {
	metrics.ServePprof(ctx, logger, addr)
}
