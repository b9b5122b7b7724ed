package roundservice

import (
	"context"

	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Wallet moves funds for a round. Every call carries an idempotency key and
// a replayed key is a no-op. Calls run on the caller's transaction.
type Wallet interface {
	Debit(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID string, amount int64, key string) error
	Credit(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID, kind string, amount int64, key string) error
}

// Identity records per-player statistics.
type Identity interface {
	RecordGamesPlayed(ctx context.Context, db bun.IDB, userIDs []string) error
	RecordWin(ctx context.Context, db bun.IDB, userID string, rankPoints int, prize int64) error
}

// AuditLog keeps the append-only transition history.
type AuditLog interface {
	RecordTransition(ctx context.Context, db bun.IDB, roundID uuid.UUID, step, from, to, actor string, detail map[string]any) error
}

// Notifier fans round changes out to observers.
type Notifier interface {
	Publish(ctx context.Context, change roundevents.RoundChangedPayloadV1) error
}

// TransitionScheduler arms a wake-up at the round's next timer so the driver
// does not have to wait for its next periodic pass.
type TransitionScheduler interface {
	ScheduleNext(ctx context.Context, r *rounddomain.Round) error
}

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, roundevents.RoundChangedPayloadV1) error { return nil }

type noopScheduler struct{}

func (noopScheduler) ScheduleNext(context.Context, *rounddomain.Round) error { return nil }

type noopAudit struct{}

func (noopAudit) RecordTransition(context.Context, bun.IDB, uuid.UUID, string, string, string, string, map[string]any) error {
	return nil
}
