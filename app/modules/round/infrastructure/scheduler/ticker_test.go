package roundscheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTicker_RejectsNonPositiveInterval(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	_, err := NewTicker(pubsub, 0, "test", nil, slog.New(slog.DiscardHandler))
	require.Error(t, err)
}

func TestTicker_RequestTick(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 1}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubsub.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msgs, err := pubsub.Subscribe(ctx, roundevents.TickRequestedV1)
	require.NoError(t, err)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ticker, err := NewTicker(pubsub, 5*time.Second, "engine-1", clockwork.NewFakeClockAt(now), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ticker.Stop() })

	require.NoError(t, ticker.RequestTick(ctx))

	select {
	case msg := <-msgs:
		var payload roundevents.TickRequestedPayloadV1
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		assert.Equal(t, "engine-1", payload.RequestedBy)
		assert.True(t, now.Equal(payload.RequestedAt))
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("tick request not published")
	}
}
