package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Black-And-White-Club/lastword/app/modules/gateway"
	roundnotifier "github.com/Black-And-White-Club/lastword/app/modules/round/infrastructure/notifier"
	"github.com/Black-And-White-Club/lastword/config"
	"github.com/Black-And-White-Club/lastword/pkg/eventbus"
	"github.com/Black-And-White-Club/lastword/pkg/observability"
	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/google/uuid"
)

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
		ServiceName:    "lastword-websocket",
		Environment:    cfg.Observability.Environment,
		Version:        "1.0.0",
		LogLevel:       cfg.Observability.LogLevel,
		TracingEnabled: cfg.Observability.TracingEnabled,
	})
	if err != nil {
		log.Fatalf("Failed to initialize observability: %v", err)
	}
	logger := obs.Logger
	logger.Info("Starting WebSocket server")

	// Every gateway instance needs its own consumer so each one sees every change.
	eventBus, err := eventbus.NewEventBus(ctx, eventbus.Options{
		URL:      cfg.NATS.URL,
		NKeySeed: cfg.NATS.NKeySeed,
		AppType:  "gateway_" + uuid.NewString()[:8],
	}, logger)
	if err != nil {
		log.Fatalf("Failed to create event bus: %v", err)
	}
	defer eventBus.Close()

	snapshots, err := roundnotifier.New(ctx, eventBus, logger)
	if err != nil {
		log.Fatalf("Failed to open round snapshots: %v", err)
	}

	hubCfg := gateway.DefaultHubConfig()
	hubCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	hub := gateway.NewHub(hubCfg, logger)
	gw := gateway.New(eventBus, snapshots, hub, logger)

	go func() {
		if err := gw.Run(ctx); err != nil {
			logger.Error("Gateway stopped consuming", attr.Error(err))
			cancel()
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTP.GatewayAddress,
		Handler:           gw.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("WebSocket server listening", attr.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("WebSocket server failed", attr.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down WebSocket server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", attr.Error(err))
	}
	logger.Info("WebSocket server stopped")
}
