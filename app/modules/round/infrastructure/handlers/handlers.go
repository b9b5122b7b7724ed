package roundhandlers

import (
	"context"
	"errors"
	"log/slog"

	roundservice "github.com/Black-And-White-Club/lastword/app/modules/round/application"
	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/Black-And-White-Club/lastword/pkg/utils/handlerwrapper"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
)

// RoundHandlers implements the Handlers interface.
type RoundHandlers struct {
	service roundservice.Service
	logger  *slog.Logger
	tracer  trace.Tracer
	clock   clockwork.Clock
}

// NewRoundHandlers creates a new RoundHandlers instance.
func NewRoundHandlers(
	service roundservice.Service,
	logger *slog.Logger,
	tracer trace.Tracer,
	clock clockwork.Clock,
) Handlers {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RoundHandlers{
		service: service,
		logger:  logger,
		tracer:  tracer,
		clock:   clock,
	}
}

// HandleTickRequested runs the driver and reports what it did.
func (h *RoundHandlers) HandleTickRequested(ctx context.Context, payload *roundevents.TickRequestedPayloadV1) ([]handlerwrapper.Result, error) {
	ctx, span := h.tracer.Start(ctx, "RoundHandlers.HandleTickRequested")
	defer span.End()

	started := h.clock.Now()
	summary, err := h.service.Tick(ctx)
	if err != nil {
		return nil, err
	}

	if summary.Total() > 0 || summary.Failed > 0 {
		h.logger.InfoContext(ctx, "Tick applied transitions",
			attr.ExtractCorrelationID(ctx),
			attr.String("requested_by", payload.RequestedBy),
			attr.Any("summary", summary),
		)
	}

	return []handlerwrapper.Result{{
		Topic: roundevents.TickCompletedV1,
		Payload: &roundevents.TickCompletedPayloadV1{
			Summary:     summary,
			StartedAt:   started,
			CompletedAt: h.clock.Now(),
		},
	}}, nil
}

// HandleAdvanceRequested advances one round. Missing rounds and lost races
// are acknowledged: there is nothing left for this wake-up to do.
func (h *RoundHandlers) HandleAdvanceRequested(ctx context.Context, payload *roundevents.AdvanceRequestedPayloadV1) ([]handlerwrapper.Result, error) {
	ctx, span := h.tracer.Start(ctx, "RoundHandlers.HandleAdvanceRequested")
	defer span.End()

	res, err := h.service.AdvanceRound(ctx, payload.RoundID)
	switch {
	case errors.Is(err, roundservice.ErrRoundNotFound), errors.Is(err, roundservice.ErrRoundTerminal):
		h.logger.WarnContext(ctx, "Dropping advance request",
			attr.RoundID("round_id", payload.RoundID),
			attr.Error(err),
		)
		return nil, nil
	case errors.Is(err, roundservice.ErrConcurrentChange):
		h.logger.DebugContext(ctx, "Advance lost a race", attr.RoundID("round_id", payload.RoundID))
		return nil, nil
	case err != nil:
		return nil, err
	}

	h.logger.DebugContext(ctx, "Advance request handled",
		attr.RoundID("round_id", payload.RoundID),
		attr.String("step", res.Step.String()),
		attr.String("status", string(res.Round.Status)),
	)
	return nil, nil
}

// HandleForceRequested forces a step and replies with the outcome. Domain
// refusals are replies too, only infrastructure errors are retried.
func (h *RoundHandlers) HandleForceRequested(ctx context.Context, payload *roundevents.ForceRequestedPayloadV1) ([]handlerwrapper.Result, error) {
	ctx, span := h.tracer.Start(ctx, "RoundHandlers.HandleForceRequested")
	defer span.End()

	completed := &roundevents.ForceCompletedPayloadV1{RoundID: payload.RoundID}

	res, err := h.service.ForceTransition(ctx, payload.RoundID, payload.RequestedBy)
	switch {
	case err == nil:
		completed.Step = res.Step.String()
		completed.Status = string(res.Round.Status)
	case isRefusal(err):
		completed.Error = err.Error()
	default:
		return nil, err
	}

	return []handlerwrapper.Result{{
		Topic:   roundevents.ForceCompletedV1,
		Payload: completed,
	}}, nil
}

func isRefusal(err error) bool {
	for _, refusal := range []error{
		roundservice.ErrRoundNotFound,
		roundservice.ErrRoundTerminal,
		roundservice.ErrQuorumNotMet,
		roundservice.ErrConcurrentChange,
	} {
		if errors.Is(err, refusal) {
			return true
		}
	}
	return false
}
