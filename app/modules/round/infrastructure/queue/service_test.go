package roundqueue

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/Black-And-White-Club/lastword/pkg/utils/handlerwrapper"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var liveStart = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

func testRound(status rounddomain.Status) *rounddomain.Round {
	closeAt := liveStart.Add(-time.Minute)
	return &rounddomain.Round{
		ID:             uuid.New(),
		Status:         status,
		EntryOpenAt:    liveStart.Add(-10 * time.Minute),
		EntryCloseAt:   &closeAt,
		LiveStartAt:    liveStart,
		LiveEndAt:      liveStart.Add(30 * time.Minute),
		ActivityWindow: time.Minute,
	}
}

func TestNextJob(t *testing.T) {
	cfg := rounddomain.DefaultLifecycleConfig()

	tests := []struct {
		name   string
		status rounddomain.Status
		due    time.Time
		ok     bool
	}{
		{name: "scheduled", status: rounddomain.StatusScheduled, due: liveStart.Add(-10 * time.Minute), ok: true},
		{name: "waiting", status: rounddomain.StatusWaiting, due: liveStart.Add(-time.Minute), ok: true},
		{name: "opening", status: rounddomain.StatusOpening, due: liveStart, ok: true},
		{name: "live", status: rounddomain.StatusLive, due: liveStart.Add(time.Minute), ok: true},
		{name: "settled", status: rounddomain.StatusSettled},
		{name: "cancelled", status: rounddomain.StatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRound(tt.status)
			job, ok := NextJob(r, cfg)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, r.ID.String(), job.RoundID)
			assert.Equal(t, string(tt.status), job.Status)
			assert.True(t, tt.due.Equal(job.DueAt))
			assert.Equal(t, TransitionKind, job.Kind())
		})
	}
}

func TestNextJob_SameTimerSameArgs(t *testing.T) {
	cfg := rounddomain.DefaultLifecycleConfig()
	r := testRound(rounddomain.StatusWaiting)

	a, _ := NextJob(r, cfg)
	b, _ := NextJob(r, cfg)
	assert.Equal(t, a, b)

	extended := *r.EntryCloseAt
	extended = extended.Add(5 * time.Minute)
	r.EntryCloseAt = &extended
	r.LiveStartAt = r.LiveStartAt.Add(5 * time.Minute)
	c, _ := NextJob(r, cfg)
	assert.NotEqual(t, a, c)
}

func TestTransitionWorker_Work(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 4}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubsub.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	messages, err := pubsub.Subscribe(ctx, roundevents.AdvanceRequestedV1)
	require.NoError(t, err)

	roundID := uuid.New()
	worker := NewTransitionWorker(logger, pubsub)
	job := &river.Job[TransitionJob]{
		JobRow: &rivertype.JobRow{ID: 7, Attempt: 1},
		Args:   TransitionJob{RoundID: roundID.String(), Status: "live", DueAt: liveStart},
	}

	require.NoError(t, worker.Work(attr.WithCorrelationID(ctx, "cid-1"), job))

	select {
	case msg := <-messages:
		var payload roundevents.AdvanceRequestedPayloadV1
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		assert.Equal(t, roundID, payload.RoundID)
		assert.Equal(t, "live", payload.Status)
		assert.True(t, liveStart.Equal(payload.DueAt))
		assert.Equal(t, roundevents.AdvanceRequestedV1, msg.Metadata.Get(handlerwrapper.TopicMetadataKey))
		assert.Equal(t, "cid-1", msg.Metadata.Get(attr.CorrelationIDKey))
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("advance request was not published")
	}
}

func TestTransitionWorker_InvalidRoundID(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubsub.Close() })

	worker := NewTransitionWorker(slog.New(slog.DiscardHandler), pubsub)
	job := &river.Job[TransitionJob]{
		JobRow: &rivertype.JobRow{ID: 8},
		Args:   TransitionJob{RoundID: "not-a-uuid"},
	}

	err := worker.Work(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid round id")
}
