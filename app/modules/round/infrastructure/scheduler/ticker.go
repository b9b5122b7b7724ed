// Package roundscheduler drives the lifecycle at a fixed cadence by
// publishing tick requests, so whichever instance consumes the command runs
// the pass.
package roundscheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/Black-And-White-Club/lastword/pkg/utils/handlerwrapper"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

const jobName = "round-lifecycle-tick"

// Ticker publishes round.tick.requested.v1 every interval.
type Ticker struct {
	scheduler gocron.Scheduler
	publisher message.Publisher
	logger    *slog.Logger
	clock     clockwork.Clock
	source    string
}

// NewTicker builds the gocron scheduler. source identifies this instance in
// the request payload.
func NewTicker(publisher message.Publisher, interval time.Duration, source string, clock clockwork.Clock, logger *slog.Logger) (*Ticker, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("tick interval must be positive, got %s", interval)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s, err := gocron.NewScheduler(gocron.WithClock(clock), gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	t := &Ticker{
		scheduler: s,
		publisher: publisher,
		logger:    logger,
		clock:     clock,
		source:    source,
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(t.RequestTick),
		gocron.WithName(jobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to schedule tick job: %w", err)
	}
	return t, nil
}

// RequestTick publishes one tick request.
func (t *Ticker) RequestTick(ctx context.Context) error {
	msg, err := handlerwrapper.NewMessage(ctx, handlerwrapper.Result{
		Topic: roundevents.TickRequestedV1,
		Payload: roundevents.TickRequestedPayloadV1{
			RequestedBy: t.source,
			RequestedAt: t.clock.Now().UTC(),
		},
	})
	if err != nil {
		return err
	}
	if err := t.publisher.Publish(roundevents.TickRequestedV1, msg); err != nil {
		t.logger.WarnContext(ctx, "Failed to request tick", attr.Error(err))
		return err
	}
	return nil
}

// Start begins the cadence.
func (t *Ticker) Start() {
	t.scheduler.Start()
	t.logger.Info("Lifecycle ticker started")
}

// Stop waits for a running job and stops the cadence.
func (t *Ticker) Stop() error {
	if err := t.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop ticker: %w", err)
	}
	t.logger.Info("Lifecycle ticker stopped")
	return nil
}
