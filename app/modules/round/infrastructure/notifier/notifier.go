// Package roundnotifier publishes round changes to observers and keeps the
// latest snapshot of every round in a JetStream key-value bucket.
package roundnotifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	roundservice "github.com/Black-And-White-Club/lastword/app/modules/round/application"
	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	"github.com/Black-And-White-Club/lastword/pkg/eventbus"
	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/Black-And-White-Club/lastword/pkg/utils/handlerwrapper"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// SnapshotBucket holds the latest RoundSnapshotV1 per round id.
const SnapshotBucket = "round_snapshots"

var _ roundservice.Notifier = (*Notifier)(nil)

// Notifier implements the round service's change port.
type Notifier struct {
	bus    eventbus.EventBus
	kv     jetstream.KeyValue
	logger *slog.Logger
}

// New opens the snapshot bucket when the bus supports one. Buses without
// JetStream still publish changes; subscriptions then follow the change topic.
func New(ctx context.Context, bus eventbus.EventBus, logger *slog.Logger) (*Notifier, error) {
	n := &Notifier{bus: bus, logger: logger}
	kv, err := bus.KeyValue(ctx, SnapshotBucket)
	switch {
	case errors.Is(err, eventbus.ErrKeyValueUnavailable):
		logger.InfoContext(ctx, "Snapshot bucket unavailable, subscriptions use the change topic")
	case err != nil:
		return nil, fmt.Errorf("failed to open snapshot bucket: %w", err)
	default:
		n.kv = kv
	}
	return n, nil
}

// Publish emits round.changed.v1.<id> and then stores the snapshot.
func (n *Notifier) Publish(ctx context.Context, change roundevents.RoundChangedPayloadV1) error {
	msg, err := handlerwrapper.NewMessage(ctx, handlerwrapper.Result{
		Topic:   eventbus.ScopedTopic(roundevents.RoundChangedV1, change.RoundID.String()),
		Payload: change,
		Metadata: map[string]string{
			"round_id": change.RoundID.String(),
			"cause":    change.Cause,
		},
	})
	if err != nil {
		return err
	}
	if err := eventbus.PublishScoped(n.bus, roundevents.RoundChangedV1, change.RoundID.String(), msg); err != nil {
		return fmt.Errorf("failed to publish round change: %w", err)
	}

	if n.kv == nil {
		return nil
	}
	body, err := json.Marshal(change.Round)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if _, err := n.kv.Put(ctx, change.RoundID.String(), body); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

// Latest returns the stored snapshot of a round.
func (n *Notifier) Latest(ctx context.Context, roundID uuid.UUID) (*roundevents.RoundSnapshotV1, error) {
	if n.kv == nil {
		return nil, eventbus.ErrKeyValueUnavailable
	}
	entry, err := n.kv.Get(ctx, roundID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap roundevents.RoundSnapshotV1
	if err := json.Unmarshal(entry.Value(), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// Subscribe streams snapshots of one round until ctx ends. With a snapshot
// bucket the current value is delivered first.
func (n *Notifier) Subscribe(ctx context.Context, roundID uuid.UUID) (<-chan roundevents.RoundSnapshotV1, error) {
	if n.kv != nil {
		return n.watch(ctx, roundID)
	}
	msgs, err := n.bus.Subscribe(ctx, eventbus.ScopedTopic(roundevents.RoundChangedV1, roundID.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to round changes: %w", err)
	}
	out := make(chan roundevents.RoundSnapshotV1, 8)
	go func() {
		defer close(out)
		for msg := range msgs {
			var change roundevents.RoundChangedPayloadV1
			err := json.Unmarshal(msg.Payload, &change)
			msg.Ack()
			if err != nil {
				n.logger.WarnContext(ctx, "Dropping undecodable round change", attr.String("message_id", msg.UUID), attr.Error(err))
				continue
			}
			if !send(ctx, out, change.Round) {
				return
			}
		}
	}()
	return out, nil
}

func (n *Notifier) watch(ctx context.Context, roundID uuid.UUID) (<-chan roundevents.RoundSnapshotV1, error) {
	watcher, err := n.kv.Watch(ctx, roundID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to watch snapshot: %w", err)
	}
	out := make(chan roundevents.RoundSnapshotV1, 8)
	go func() {
		defer close(out)
		defer func() { _ = watcher.Stop() }()
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				// nil marks the end of the initial values.
				if entry == nil || entry.Operation() != jetstream.KeyValuePut {
					continue
				}
				var snap roundevents.RoundSnapshotV1
				if err := json.Unmarshal(entry.Value(), &snap); err != nil {
					n.logger.WarnContext(ctx, "Dropping undecodable snapshot", attr.RoundID("round_id", roundID), attr.Error(err))
					continue
				}
				if !send(ctx, out, snap) {
					return
				}
			}
		}
	}()
	return out, nil
}

func send(ctx context.Context, out chan<- roundevents.RoundSnapshotV1, snap roundevents.RoundSnapshotV1) bool {
	select {
	case out <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}
