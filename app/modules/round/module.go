package round

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	auditservice "github.com/Black-And-White-Club/lastword/app/modules/audit/application"
	auditdb "github.com/Black-And-White-Club/lastword/app/modules/audit/infrastructure/repositories"
	ledgerservice "github.com/Black-And-White-Club/lastword/app/modules/ledger/application"
	ledgerdb "github.com/Black-And-White-Club/lastword/app/modules/ledger/infrastructure/repositories"
	roundservice "github.com/Black-And-White-Club/lastword/app/modules/round/application"
	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	roundapi "github.com/Black-And-White-Club/lastword/app/modules/round/infrastructure/api"
	roundhandlers "github.com/Black-And-White-Club/lastword/app/modules/round/infrastructure/handlers"
	roundnotifier "github.com/Black-And-White-Club/lastword/app/modules/round/infrastructure/notifier"
	roundqueue "github.com/Black-And-White-Club/lastword/app/modules/round/infrastructure/queue"
	rounddb "github.com/Black-And-White-Club/lastword/app/modules/round/infrastructure/repositories"
	roundrouter "github.com/Black-And-White-Club/lastword/app/modules/round/infrastructure/router"
	roundscheduler "github.com/Black-And-White-Club/lastword/app/modules/round/infrastructure/scheduler"
	userservice "github.com/Black-And-White-Club/lastword/app/modules/user/application"
	userdb "github.com/Black-And-White-Club/lastword/app/modules/user/infrastructure/repositories"
	"github.com/Black-And-White-Club/lastword/config"
	"github.com/Black-And-White-Club/lastword/pkg/eventbus"
	"github.com/Black-And-White-Club/lastword/pkg/jwt"
	"github.com/Black-And-White-Club/lastword/pkg/observability"
	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/Black-And-White-Club/lastword/pkg/observability/metrics/roundmetrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jonboulle/clockwork"
	"github.com/uptrace/bun"
)

// Deps are the process-wide handles the module is built from.
type Deps struct {
	DB            *bun.DB
	EventBus      eventbus.EventBus
	Router        *message.Router
	Observability *observability.Observability
	Tokens        jwt.Service
	Clock         clockwork.Clock
}

// Module represents the round module.
type Module struct {
	RoundService roundservice.Service
	Notifier     *roundnotifier.Notifier
	API          *roundapi.API

	roundRouter *roundrouter.RoundRouter
	ticker      *roundscheduler.Ticker
	queue       roundqueue.QueueService
	logger      *slog.Logger
	cancelFunc  context.CancelFunc
}

// NewRoundModule wires the engine, its collaborators and both transports.
func NewRoundModule(ctx context.Context, cfg *config.Config, deps Deps) (*Module, error) {
	obs := deps.Observability
	logger := obs.Logger.With(attr.String("module", "round"))
	logger.InfoContext(ctx, "round.NewRoundModule called")

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	metrics := roundmetrics.NewPrometheus(obs.Registry)
	tracer := obs.TracerProvider.Tracer("round")

	wallet := ledgerservice.NewService(ledgerdb.NewRepository(deps.DB), deps.DB, logger, cfg.Engine.AllowOverdraft)
	stats := userservice.NewStatsService(userdb.NewRepository(deps.DB), logger)
	audit := auditservice.NewService(auditdb.NewRepository(deps.DB), logger)

	notifier, err := roundnotifier.New(ctx, deps.EventBus, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create round notifier: %w", err)
	}

	lifecycle := rounddomain.LifecycleConfig{
		EndingWarning:     cfg.Engine.EndingWarning,
		MinResetExtension: cfg.Engine.MinResetExtension,
	}

	ports := roundservice.Ports{
		Wallet:   wallet,
		Identity: stats,
		Audit:    audit,
		Notifier: notifier,
	}

	var queue roundqueue.QueueService
	var jobs roundapi.Jobs
	if cfg.Engine.TransitionJobs {
		q, err := roundqueue.NewService(ctx, deps.DB, logger, cfg.Postgres.DSN, metrics, deps.EventBus, roundqueue.Config{
			MaxWorkers: cfg.Engine.JobWorkers,
			Lifecycle:  lifecycle,
		}, clock)
		if err != nil {
			return nil, fmt.Errorf("failed to create transition queue: %w", err)
		}
		queue, jobs = q, q
		ports.Scheduler = q
	}

	service := roundservice.NewRoundService(
		rounddb.NewRepository(deps.DB),
		ports,
		roundservice.Config{
			Lifecycle:          lifecycle,
			TickBatchSize:      cfg.Engine.TickBatchSize,
			SuccessorBatchSize: cfg.Engine.SuccessorScanLimit,
		},
		logger,
		metrics,
		tracer,
		deps.DB,
	)

	handlers := roundhandlers.NewRoundHandlers(service, logger, tracer, clock)
	roundRouter := roundrouter.NewRoundRouter(logger, deps.Router, deps.EventBus, deps.EventBus, metrics, tracer)
	if err := roundRouter.Configure(ctx, handlers); err != nil {
		return nil, fmt.Errorf("failed to configure round router: %w", err)
	}

	ticker, err := roundscheduler.NewTicker(deps.EventBus, cfg.Engine.TickInterval, "scheduler", clock, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create lifecycle ticker: %w", err)
	}

	commission, err := cfg.Engine.Commission()
	if err != nil {
		return nil, err
	}
	api := roundapi.NewAPI(service, wallet, stats, audit, jobs, logger, roundapi.Options{
		Tokens:            deps.Tokens,
		AllowedOrigins:    cfg.HTTP.AllowedOrigins,
		NudgeRate:         cfg.HTTP.NudgeRate,
		NudgeBurst:        cfg.HTTP.NudgeBurst,
		DefaultCommission: commission,
		Clock:             clock,
	})

	return &Module{
		RoundService: service,
		Notifier:     notifier,
		API:          api,
		roundRouter:  roundRouter,
		ticker:       ticker,
		queue:        queue,
		logger:       logger,
	}, nil
}

// Run starts the job workers and the periodic tick, then blocks until ctx ends.
// The caller adds to wg before starting Run.
func (m *Module) Run(ctx context.Context, wg *sync.WaitGroup) {
	if wg != nil {
		defer wg.Done()
	}
	m.logger.InfoContext(ctx, "Starting round module")

	ctx, cancel := context.WithCancel(ctx)
	m.cancelFunc = cancel
	defer cancel()

	if m.queue != nil {
		if err := m.queue.Start(ctx); err != nil {
			m.logger.ErrorContext(ctx, "Failed to start transition queue", attr.Error(err))
		}
	}
	m.ticker.Start()

	<-ctx.Done()
	m.logger.Info("Round module goroutine stopped")
}

// Close stops the tick, the job workers and the message handlers.
func (m *Module) Close() error {
	m.logger.Info("Stopping round module")

	if m.cancelFunc != nil {
		m.cancelFunc()
	}

	var firstErr error
	if err := m.ticker.Stop(); err != nil {
		firstErr = err
	}
	if m.queue != nil {
		if err := m.queue.Stop(context.Background()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := m.roundRouter.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	m.logger.Info("Round module stopped")
	return firstErr
}
