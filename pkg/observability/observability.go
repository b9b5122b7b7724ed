// Package observability builds the logger, Prometheus registry and tracer
// shared by every module, and serves /metrics.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config configures observability.
type Config struct {
	ServiceName    string
	Environment    string
	Version        string
	MetricsAddress string
	LogLevel       string
	TracingEnabled bool
}

// Observability bundles the ambient instrumentation handles.
type Observability struct {
	Logger         *slog.Logger
	Registry       *prometheus.Registry
	TracerProvider trace.TracerProvider
	Tracer         trace.Tracer

	metricsServer *http.Server
}

// Init constructs logger, registry and tracer from cfg.
func Init(ctx context.Context, cfg Config) (*Observability, error) {
	logger := NewLogger(cfg)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var tp trace.TracerProvider = noop.NewTracerProvider()
	if cfg.TracingEnabled {
		tp = otel.GetTracerProvider()
	}

	logger.InfoContext(ctx, "Observability initialized",
		attr.String("service", cfg.ServiceName),
		attr.String("environment", cfg.Environment),
		attr.Bool("tracing", cfg.TracingEnabled),
	)

	return &Observability{
		Logger:         logger,
		Registry:       registry,
		TracerProvider: tp,
		Tracer:         tp.Tracer(cfg.ServiceName),
	}, nil
}

// NewLogger builds the process logger: JSON in deployed environments, text in development.
func NewLogger(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}

	var handler slog.Handler
	if cfg.Environment == "development" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler).With(
		attr.String("service", cfg.ServiceName),
		attr.String("version", cfg.Version),
	)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// StartMetricsServer serves the registry on MetricsAddress. An empty address disables it.
func (o *Observability) StartMetricsServer(address string) {
	if address == "" {
		o.Logger.Info("Metrics server disabled")
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(o.Registry, promhttp.HandlerOpts{Registry: o.Registry}))
	o.metricsServer = &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		o.Logger.Info("Metrics server listening", attr.String("address", address))
		if err := o.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.Logger.Error("Metrics server failed", attr.Error(err))
		}
	}()
}

// Shutdown stops the metrics server.
func (o *Observability) Shutdown(ctx context.Context) error {
	if o.metricsServer == nil {
		return nil
	}
	return o.metricsServer.Shutdown(ctx)
}

// NewNoop returns an Observability suitable for tests.
func NewNoop() *Observability {
	tp := noop.NewTracerProvider()
	return &Observability{
		Logger:         slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
		Registry:       prometheus.NewRegistry(),
		TracerProvider: tp,
		Tracer:         tp.Tracer("noop"),
	}
}
