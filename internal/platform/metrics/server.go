package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MRamiBalles/uplink-sim/server/internal/platform/logger"
)

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// MetricsServer serves a registry over HTTP for Prometheus scraping.
type MetricsServer struct {
	server   *http.Server
	registry *prometheus.Registry
	port     int
	endpoint string
	logger   *logger.Logger
}

// NewMetricsServer creates a new metrics server instance.
func NewMetricsServer(port int, endpoint string, registry *prometheus.Registry, log *logger.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle(endpoint, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &MetricsServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		registry: registry,
		port:     port,
		endpoint: endpoint,
		logger:   log,
	}
}

// Start serves in the background.
func (m *MetricsServer) Start() {
	go func() {
		m.logger.Infof("Prometheus metrics available at :%d%s", m.port, m.endpoint)
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Errorf("metrics server failed: %v", err)
		}
	}()
}

// Shutdown stops the server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}
