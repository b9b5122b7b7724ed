package roundqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/Black-And-White-Club/lastword/pkg/utils/handlerwrapper"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// TransitionWorker turns a due timer into a round.advance.requested event.
// The round router performs the step; the worker never touches the store.
type TransitionWorker struct {
	river.WorkerDefaults[TransitionJob]
	logger    *slog.Logger
	publisher message.Publisher
}

// NewTransitionWorker creates the worker.
func NewTransitionWorker(logger *slog.Logger, publisher message.Publisher) *TransitionWorker {
	return &TransitionWorker{logger: logger, publisher: publisher}
}

// Timeout bounds a single publish.
func (w *TransitionWorker) Timeout(*river.Job[TransitionJob]) time.Duration {
	return 30 * time.Second
}

// Work publishes the advance request for the job's round.
func (w *TransitionWorker) Work(ctx context.Context, job *river.Job[TransitionJob]) error {
	roundID, err := uuid.Parse(job.Args.RoundID)
	if err != nil {
		w.logger.ErrorContext(ctx, "Transition job carries an invalid round id",
			attr.Int64("job_id", job.ID),
			attr.String("round_id", job.Args.RoundID),
		)
		return river.JobCancel(fmt.Errorf("invalid round id %q: %w", job.Args.RoundID, err))
	}

	msg, err := handlerwrapper.NewMessage(ctx, handlerwrapper.Result{
		Topic: roundevents.AdvanceRequestedV1,
		Payload: roundevents.AdvanceRequestedPayloadV1{
			RoundID: roundID,
			Status:  job.Args.Status,
			DueAt:   job.Args.DueAt,
		},
	})
	if err != nil {
		return river.JobCancel(err)
	}

	if err := w.publisher.Publish(roundevents.AdvanceRequestedV1, msg); err != nil {
		w.logger.WarnContext(ctx, "Failed to publish advance request, River will retry",
			attr.RoundID("round_id", roundID),
			attr.Int("attempt", job.Attempt),
			attr.Error(err),
		)
		return fmt.Errorf("failed to publish advance request: %w", err)
	}

	w.logger.DebugContext(ctx, "Advance request published",
		attr.RoundID("round_id", roundID),
		attr.String("status", job.Args.Status),
		attr.Time("due_at", job.Args.DueAt),
	)
	return nil
}
