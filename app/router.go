package app

import (
	"log/slog"
	"os"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	TestEnvironmentFlag  = "APP_ENV"
	TestEnvironmentValue = "test"
)

// NewMessageRouter builds the Watermill router shared by every module.
// Router metrics are skipped in the test environment.
func NewMessageRouter(logger *slog.Logger, registry *prometheus.Registry) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: 30 * time.Second,
	}, watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, err
	}

	if registry != nil && os.Getenv(TestEnvironmentFlag) != TestEnvironmentValue {
		builder := metrics.NewPrometheusMetricsBuilder(registry, "lastword", "router")
		builder.AddPrometheusRouterMetrics(router)
	}

	router.AddMiddleware(
		middleware.CorrelationID,
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: 100 * time.Millisecond,
			Logger:          watermill.NewSlogLogger(logger),
		}.Middleware,
	)

	return router, nil
}
