// Package gateway fans round changes out to websocket viewers: one global
// channel of every active round and one stream per round.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	"github.com/Black-And-White-Club/lastword/pkg/eventbus"
	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// CauseSnapshot marks the frame sent when a viewer first connects to a round.
const CauseSnapshot = "snapshot"

// Snapshots serves the latest stored view of a round.
type Snapshots interface {
	Latest(ctx context.Context, roundID uuid.UUID) (*roundevents.RoundSnapshotV1, error)
}

// Gateway consumes round.changed.v1 and broadcasts each change.
type Gateway struct {
	subscriber message.Subscriber
	snapshots  Snapshots
	hub        *Hub
	logger     *slog.Logger
}

// New creates a Gateway. snapshots may be nil.
func New(subscriber message.Subscriber, snapshots Snapshots, hub *Hub, logger *slog.Logger) *Gateway {
	return &Gateway{subscriber: subscriber, snapshots: snapshots, hub: hub, logger: logger}
}

// Run subscribes to every round's changes and broadcasts until ctx ends.
func (g *Gateway) Run(ctx context.Context) error {
	msgs, err := g.subscriber.Subscribe(ctx, eventbus.AllScopes(roundevents.RoundChangedV1))
	if err != nil {
		return err
	}
	g.logger.InfoContext(ctx, "Gateway consuming round changes")
	g.Consume(ctx, msgs)
	return nil
}

// Consume broadcasts every message on msgs until the channel closes or ctx ends.
func (g *Gateway) Consume(ctx context.Context, msgs <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			g.dispatch(ctx, msg)
			msg.Ack()
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, msg *message.Message) {
	var change roundevents.RoundChangedPayloadV1
	if err := json.Unmarshal(msg.Payload, &change); err != nil || change.RoundID == uuid.Nil {
		g.logger.WarnContext(ctx, "Dropping undecodable round change", attr.String("message_id", msg.UUID), attr.Error(err))
		return
	}
	perRound := g.hub.Broadcast(change.RoundID.String(), msg.Payload)
	global := g.hub.Broadcast(ActiveChannel, msg.Payload)
	g.logger.DebugContext(ctx, "Round change broadcast",
		attr.RoundID("round_id", change.RoundID),
		attr.String("cause", change.Cause),
		attr.Int("round_viewers", perRound),
		attr.Int("active_viewers", global),
	)
}

// Routes serves GET /ws/rounds (every round) and GET /ws/rounds/{id}.
func (g *Gateway) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/ws/rounds", g.handleActive)
	r.Get("/ws/rounds/{id}", g.handleRound)
	return r
}

func (g *Gateway) handleActive(w http.ResponseWriter, r *http.Request) {
	if err := g.hub.Attach(w, r, ActiveChannel, nil); err != nil {
		g.logger.DebugContext(r.Context(), "Websocket upgrade failed", attr.Error(err))
	}
}

func (g *Gateway) handleRound(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid round id", http.StatusBadRequest)
		return
	}
	if err := g.hub.Attach(w, r, id.String(), g.initialFrame(r.Context(), id)); err != nil {
		g.logger.DebugContext(r.Context(), "Websocket upgrade failed", attr.Error(err))
	}
}

// initialFrame wraps the stored snapshot so late joiners do not wait for the next change.
func (g *Gateway) initialFrame(ctx context.Context, id uuid.UUID) []byte {
	if g.snapshots == nil {
		return nil
	}
	snap, err := g.snapshots.Latest(ctx, id)
	if err != nil || snap == nil {
		return nil
	}
	data, err := json.Marshal(roundevents.RoundChangedPayloadV1{
		RoundID:          id,
		Cause:            CauseSnapshot,
		Status:           snap.Status,
		ParticipantCount: snap.ParticipantCount,
		PoolValue:        snap.PoolValue,
		Round:            *snap,
		ChangedAt:        snap.UpdatedAt,
	})
	if err != nil {
		return nil
	}
	return data
}
