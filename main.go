package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Black-And-White-Club/lastword/app"
	"github.com/Black-And-White-Club/lastword/config"
	"github.com/Black-And-White-Club/lastword/pkg/observability"
	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
)

var version = "dev"

func main() {
	configFile := flag.String("config", "config.yaml", "Path to the configuration file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	obs, err := observability.Init(ctx, observability.Config{
		ServiceName:    "lastword",
		Environment:    cfg.Observability.Environment,
		Version:        version,
		MetricsAddress: cfg.Observability.MetricsAddress,
		LogLevel:       cfg.Observability.LogLevel,
		TracingEnabled: cfg.Observability.TracingEnabled,
	})
	if err != nil {
		log.Fatalf("Failed to initialize observability: %v", err)
	}
	logger := obs.Logger

	application, err := app.NewApp(ctx, cfg, obs)
	if err != nil {
		logger.Error("Failed to initialize app", attr.Error(err))
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("Application stopped with error", attr.Error(err))
		os.Exit(1)
	}
	logger.Info("Application shut down gracefully")
}
