package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Black-And-White-Club/lastword/app/modules/round"
	"github.com/Black-And-White-Club/lastword/config"
	"github.com/Black-And-White-Club/lastword/db/bundb"
	"github.com/Black-And-White-Club/lastword/pkg/eventbus"
	"github.com/Black-And-White-Club/lastword/pkg/jwt"
	"github.com/Black-And-White-Club/lastword/pkg/observability"
	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/uptrace/bun"
)

const shutdownTimeout = 15 * time.Second

// Modules holds the application's feature modules.
type Modules struct {
	RoundModule *round.Module
}

// App owns the process-wide resources and the modules built on them.
type App struct {
	Config        *config.Config
	Observability *observability.Observability
	DB            *bun.DB
	EventBus      eventbus.EventBus
	Router        *message.Router
	Modules       *Modules

	httpServer *http.Server
	wg         sync.WaitGroup
}

// NewApp connects to Postgres and NATS and builds every module.
func NewApp(ctx context.Context, cfg *config.Config, obs *observability.Observability) (*App, error) {
	logger := obs.Logger

	db, err := bundb.Open(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}

	bus, err := eventbus.NewEventBus(ctx, eventbus.Options{
		URL:      cfg.NATS.URL,
		NKeySeed: cfg.NATS.NKeySeed,
		AppType:  "engine",
	}, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	router, err := NewMessageRouter(logger, obs.Registry)
	if err != nil {
		_ = bus.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to create message router: %w", err)
	}

	app := &App{
		Config:        cfg,
		Observability: obs,
		DB:            db,
		EventBus:      bus,
		Router:        router,
	}

	roundModule, err := round.NewRoundModule(ctx, cfg, round.Deps{
		DB:            db,
		EventBus:      bus,
		Router:        router,
		Observability: obs,
		Tokens:        jwt.NewService(cfg.JWT.Secret, cfg.JWT.DefaultTTL, nil),
		Clock:         clockwork.NewRealClock(),
	})
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to initialize round module: %w", err)
	}
	app.Modules = &Modules{RoundModule: roundModule}

	app.httpServer = &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           app.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return app, nil
}

func (app *App) handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := app.DB.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Mount("/", app.Modules.RoundModule.API.Routes())
	return r
}

// Run serves until ctx is cancelled, then shuts everything down.
func (app *App) Run(ctx context.Context) error {
	logger := app.Observability.Logger
	app.Observability.StartMetricsServer(app.Config.Observability.MetricsAddress)

	app.wg.Add(1)
	go app.Modules.RoundModule.Run(ctx, &app.wg)

	routerErr := make(chan error, 1)
	go func() {
		routerErr <- app.Router.Run(ctx)
	}()
	select {
	case <-app.Router.Running():
	case err := <-routerErr:
		return fmt.Errorf("message router stopped: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", attr.String("address", app.httpServer.Addr))
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown requested")
	case err := <-serverErr:
		runErr = fmt.Errorf("http server failed: %w", err)
	case err := <-routerErr:
		if err != nil {
			runErr = fmt.Errorf("message router failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", attr.Error(err))
	}
	if err := app.Observability.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics server shutdown failed", attr.Error(err))
	}
	return errors.Join(runErr, app.Close())
}

// Close releases modules, the router, the bus and the database, in that order.
func (app *App) Close() error {
	var errs []error
	if app.Modules != nil && app.Modules.RoundModule != nil {
		errs = append(errs, app.Modules.RoundModule.Close())
	}
	app.wg.Wait()
	if app.Router != nil {
		errs = append(errs, app.Router.Close())
	}
	if app.EventBus != nil {
		errs = append(errs, app.EventBus.Close())
	}
	if app.DB != nil {
		errs = append(errs, app.DB.Close())
	}
	return errors.Join(errs...)
}
