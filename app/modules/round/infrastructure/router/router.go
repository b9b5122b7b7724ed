package roundrouter

import (
	"context"
	"log/slog"

	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	roundhandlers "github.com/Black-And-White-Club/lastword/app/modules/round/infrastructure/handlers"
	"github.com/Black-And-White-Club/lastword/pkg/eventbus"
	"github.com/Black-And-White-Club/lastword/pkg/utils/handlerwrapper"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/trace"
)

// RoundRouter handles Watermill handler registration for round events.
type RoundRouter struct {
	logger     *slog.Logger
	router     *message.Router
	subscriber eventbus.EventBus
	publisher  eventbus.EventBus
	metrics    handlerwrapper.Metrics
	tracer     trace.Tracer
}

// NewRoundRouter creates a new RoundRouter.
func NewRoundRouter(
	logger *slog.Logger,
	router *message.Router,
	subscriber eventbus.EventBus,
	publisher eventbus.EventBus,
	metrics handlerwrapper.Metrics,
	tracer trace.Tracer,
) *RoundRouter {
	return &RoundRouter{
		logger:     logger,
		router:     router,
		subscriber: subscriber,
		publisher:  publisher,
		metrics:    metrics,
		tracer:     tracer,
	}
}

// Configure makes sure the round stream exists and registers the handlers.
func (r *RoundRouter) Configure(ctx context.Context, handlers roundhandlers.Handlers) error {
	if err := r.subscriber.CreateStream(ctx, roundevents.RoundStreamName, roundevents.RoundSubjects...); err != nil {
		return err
	}
	r.registerHandlers(handlers)
	return nil
}

// handlerDeps bundles dependencies for handler registration.
type handlerDeps struct {
	router     *message.Router
	subscriber eventbus.EventBus
	publisher  eventbus.EventBus
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    handlerwrapper.Metrics
}

// registerHandlers wires NATS topics to handler methods.
func (r *RoundRouter) registerHandlers(handlers roundhandlers.Handlers) {
	deps := handlerDeps{
		router:     r.router,
		subscriber: r.subscriber,
		publisher:  r.publisher,
		logger:     r.logger,
		tracer:     r.tracer,
		metrics:    r.metrics,
	}

	r.logger.Info("Registering round module handlers",
		slog.String("tick_subject", roundevents.TickRequestedV1),
		slog.String("advance_subject", roundevents.AdvanceRequestedV1),
		slog.String("force_subject", roundevents.ForceRequestedV1),
	)

	registerHandler(deps, roundevents.TickRequestedV1, handlers.HandleTickRequested)
	registerHandler(deps, roundevents.AdvanceRequestedV1, handlers.HandleAdvanceRequested)
	registerHandler(deps, roundevents.ForceRequestedV1, handlers.HandleForceRequested)

	r.logger.Info("Round module handlers registered successfully")
}

// registerHandler is a generic function for type-safe Watermill handler registration.
func registerHandler[T any](
	deps handlerDeps,
	topic string,
	handler func(context.Context, *T) ([]handlerwrapper.Result, error),
) {
	handlerName := "round." + topic

	deps.router.AddHandler(
		handlerName,
		topic,
		deps.subscriber,
		"",
		deps.publisher,
		handlerwrapper.WrapTransformingTyped(
			handlerName,
			deps.logger,
			deps.tracer,
			deps.metrics,
			handler,
		),
	)
}

// Close shuts down the router.
func (r *RoundRouter) Close() error {
	return r.router.Close()
}
