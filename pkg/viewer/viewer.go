// Package viewer is the client-side round model. It keeps the last
// authoritative snapshot (confirmed state) apart from what the reconciled
// clock says the round should look like by now (predicted state). Predicted
// state is for display only; when it runs ahead of the confirmed state the
// viewer nudges the engine once and waits for the store to catch up.
package viewer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/Black-And-White-Club/lastword/pkg/utils/countdown"
	"github.com/jonboulle/clockwork"
)

// Clock is the corrected time source, normally a *clocksync.Reconciler.
type Clock interface {
	Now() time.Time
}

// Nudger asks the engine for a lifecycle pass.
type Nudger interface {
	Nudge(ctx context.Context) error
}

// Prediction is the derived view of a round at one instant.
type Prediction struct {
	Confirmed rounddomain.Status
	Predicted rounddomain.Status
	// Due is set when the engine owes the round a transition: the predicted
	// status differs from the confirmed one, or a timer has expired whose
	// outcome only the engine can decide (quorum, settlement).
	Due bool

	SecondsUntilOpening          int
	SecondsUntilLive             int
	SecondsRemaining             int
	SecondsUntilActivityDeadline int
	At                           time.Time
}

// Viewer tracks one round.
type Viewer struct {
	clock  Clock
	nudger Nudger
	logger *slog.Logger

	mu        sync.Mutex
	confirmed *roundevents.RoundSnapshotV1
	nudged    map[string]bool
}

// New creates a Viewer. nudger may be nil to disable nudging.
func New(clock Clock, nudger Nudger, logger *slog.Logger) *Viewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Viewer{
		clock:  clock,
		nudger: nudger,
		logger: logger,
		nudged: make(map[string]bool),
	}
}

// Confirm records an authoritative snapshot. Snapshots older than the one
// held are ignored so a late delivery cannot move the view backwards. Any
// newer snapshot re-arms nudging.
func (v *Viewer) Confirm(s roundevents.RoundSnapshotV1) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.confirmed != nil && s.ID == v.confirmed.ID {
		if s.UpdatedAt.Before(v.confirmed.UpdatedAt) {
			return false
		}
		if s.UpdatedAt.Equal(v.confirmed.UpdatedAt) && s.Status == v.confirmed.Status {
			return true
		}
	}
	snap := s
	v.confirmed = &snap
	v.nudged = make(map[string]bool)
	return true
}

// Confirmed returns the last authoritative snapshot.
func (v *Viewer) Confirmed() (roundevents.RoundSnapshotV1, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.confirmed == nil {
		return roundevents.RoundSnapshotV1{}, false
	}
	return *v.confirmed, true
}

// Predict derives the current view without side effects.
func (v *Viewer) Predict() (Prediction, bool) {
	s, ok := v.Confirmed()
	if !ok {
		return Prediction{}, false
	}
	return Predict(s, v.clock.Now()), true
}

// Step predicts and, when a transition is due, nudges the engine at most
// once per predicted transition of the current confirmed snapshot.
func (v *Viewer) Step(ctx context.Context) (Prediction, error) {
	p, ok := v.Predict()
	if !ok || !p.Due || v.nudger == nil {
		return p, nil
	}

	key := string(p.Confirmed) + ">" + string(p.Predicted)
	v.mu.Lock()
	if v.nudged[key] {
		v.mu.Unlock()
		return p, nil
	}
	v.nudged[key] = true
	v.mu.Unlock()

	v.logger.DebugContext(ctx, "Prediction ahead of store, nudging",
		attr.String("confirmed", string(p.Confirmed)),
		attr.String("predicted", string(p.Predicted)),
	)
	if err := v.nudger.Nudge(ctx); err != nil {
		// allow another attempt on the next step
		v.mu.Lock()
		delete(v.nudged, key)
		v.mu.Unlock()
		return p, err
	}
	return p, nil
}

// Run applies updates as they arrive and steps on every interval until ctx
// ends or updates closes. render, when set, receives every prediction.
func (v *Viewer) Run(ctx context.Context, updates <-chan roundevents.RoundSnapshotV1, clock clockwork.Clock, interval time.Duration, render func(Prediction)) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	step := func() {
		p, err := v.Step(ctx)
		if err != nil {
			v.logger.WarnContext(ctx, "Nudge failed", attr.Error(err))
		}
		if render != nil && !p.At.IsZero() {
			render(p)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-updates:
			if !ok {
				return
			}
			if v.Confirm(s) {
				step()
			}
		case <-ticker.Chan():
			step()
		}
	}
}

// Predict derives the view of s at now from its confirmed timestamps.
func Predict(s roundevents.RoundSnapshotV1, now time.Time) Prediction {
	p := Prediction{
		Confirmed:                    rounddomain.Status(s.Status),
		At:                           now,
		SecondsUntilOpening:          countdown.SecondsBetween(now, s.EntryOpenAt),
		SecondsUntilLive:             countdown.SecondsBetween(now, s.LiveStartAt),
		SecondsRemaining:             countdown.SecondsBetween(now, s.LiveEndAt),
		SecondsUntilActivityDeadline: countdown.SecondsBetween(now, s.ActivityDeadlineAt),
	}

	status, undecided := predictStatus(s, now)
	p.Predicted = status
	p.Due = status != p.Confirmed || undecided
	return p
}

// predictStatus walks the timers forward from the confirmed status. undecided
// reports an expired timer whose result depends on state the client cannot see.
func predictStatus(s roundevents.RoundSnapshotV1, now time.Time) (status rounddomain.Status, undecided bool) {
	status = rounddomain.Status(s.Status)
	for {
		switch status {
		case rounddomain.StatusScheduled:
			if now.Before(s.EntryOpenAt) {
				return status, false
			}
			status = rounddomain.StatusWaiting
		case rounddomain.StatusWaiting:
			if s.EntryCloseAt.Before(s.LiveStartAt) && !now.Before(s.EntryCloseAt) {
				status = rounddomain.StatusOpening
				continue
			}
			if now.Before(s.LiveStartAt) {
				return status, false
			}
			status = rounddomain.StatusOpening
		case rounddomain.StatusOpening:
			if now.Before(s.LiveStartAt) {
				return status, false
			}
			if s.ParticipantCount < s.MinParticipants && rounddomain.QuorumPolicy(s.QuorumPolicy) != rounddomain.QuorumStartAnyway {
				return status, true
			}
			status = rounddomain.StatusLive
		case rounddomain.StatusLive, rounddomain.StatusEnding:
			if now.Before(s.ActivityDeadlineAt) {
				return status, false
			}
			status = rounddomain.StatusEnded
		case rounddomain.StatusEnded:
			return status, true
		case rounddomain.StatusSettled, rounddomain.StatusCancelled:
			return status, false
		default:
			return status, false
		}
	}
}
