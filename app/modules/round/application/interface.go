package roundservice

import (
	"context"
	"time"

	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	"github.com/google/uuid"
)

// Service defines the contract for round operations.
type Service interface {
	// Templates and rounds
	CreateTemplate(ctx context.Context, t rounddomain.Template) (*rounddomain.Template, error)
	GetTemplate(ctx context.Context, id uuid.UUID) (*rounddomain.Template, error)
	CreateRound(ctx context.Context, req CreateRoundRequest) (*rounddomain.Round, error)
	GetRound(ctx context.Context, id uuid.UUID) (*rounddomain.Round, error)

	// Observers
	ServerTime(ctx context.Context) (time.Time, error)
	ListActiveRounds(ctx context.Context) ([]rounddomain.ActiveRoundView, error)
	Leaderboard(ctx context.Context, roundID uuid.UUID) ([]rounddomain.RankedActor, error)
	ListParticipants(ctx context.Context, roundID uuid.UUID) ([]*rounddomain.Participant, error)
	ListWinners(ctx context.Context, roundID uuid.UUID) ([]rounddomain.Winner, error)

	// Participation
	Join(ctx context.Context, roundID uuid.UUID, userID string, spectator bool) (*rounddomain.Participant, error)
	Leave(ctx context.Context, roundID uuid.UUID, userID string) error
	UpgradeSpectator(ctx context.Context, roundID uuid.UUID, userID string) (*rounddomain.Participant, error)
	RecordAction(ctx context.Context, roundID uuid.UUID, userID, body string) (*rounddomain.Action, error)

	// Lifecycle
	Tick(ctx context.Context) (roundevents.TickSummaryV1, error)
	AdvanceRound(ctx context.Context, roundID uuid.UUID) (*AdvanceResult, error)
	ForceTransition(ctx context.Context, roundID uuid.UUID, actor string) (*AdvanceResult, error)
	CancelRound(ctx context.Context, roundID uuid.UUID, actor, reason string) (*rounddomain.Round, error)
	Settle(ctx context.Context, roundID uuid.UUID) (*rounddomain.Settlement, error)
	MaybeCreateNext(ctx context.Context, roundID uuid.UUID) (*rounddomain.Round, error)

	// Reporting
	ExportSettlement(ctx context.Context, roundID uuid.UUID) ([]byte, error)
}

var _ Service = (*RoundService)(nil)

// CreateRoundRequest spawns a round from a template. StartsAt accepts RFC 3339
// or phrases like "tomorrow at 6pm" read in Timezone.
type CreateRoundRequest struct {
	TemplateID uuid.UUID
	StartsAt   string
	Timezone   string
	CreatedBy  string
}

// AdvanceResult reports the one step applied to a round.
type AdvanceResult struct {
	Step      rounddomain.StepKind
	Previous  rounddomain.Status
	Round     *rounddomain.Round
	Successor *rounddomain.Round
}

// Applied reports whether the round changed.
func (r *AdvanceResult) Applied() bool {
	switch r.Step {
	case rounddomain.StepNone, rounddomain.StepQuorumNotMet:
		return false
	default:
		return true
	}
}
