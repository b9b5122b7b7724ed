package rounddb

import (
	"context"
	"time"

	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Repository defines the contract for round persistence.
// Every method takes the handle to run on; nil means the repository's own connection.
//
// Error semantics:
//   - ErrNotFound / ErrTemplateNotFound / ErrParticipantNotFound: record does not exist
//   - ErrTransitionConflict: the round was not in the expected status
//   - ErrNoRowsAffected: a guarded counter or participant update matched no rows
//   - ErrAlreadyJoined / ErrDuplicateSuccessor: unique constraint hit
//   - Other errors: infrastructure failures
type Repository interface {
	// Now reads the store clock. Action ordering and timer checks use this instant.
	Now(ctx context.Context, db bun.IDB) (time.Time, error)

	CreateTemplate(ctx context.Context, db bun.IDB, t *rounddomain.Template) error
	GetTemplate(ctx context.Context, db bun.IDB, id uuid.UUID) (*rounddomain.Template, error)

	CreateRound(ctx context.Context, db bun.IDB, r *rounddomain.Round) error
	GetRound(ctx context.Context, db bun.IDB, id uuid.UUID) (*rounddomain.Round, error)
	// GetRoundForUpdate reads the round and locks its row until the transaction ends.
	GetRoundForUpdate(ctx context.Context, db bun.IDB, id uuid.UUID) (*rounddomain.Round, error)

	// CompareAndTransition moves the round from expected to next and writes
	// fields in the same statement. It returns the updated round.
	CompareAndTransition(ctx context.Context, db bun.IDB, id uuid.UUID, expected, next rounddomain.Status, fields rounddomain.TransitionFields) (*rounddomain.Round, error)

	IncrementParticipant(ctx context.Context, db bun.IDB, id uuid.UUID, feeDelta int64) (*rounddomain.Round, error)
	DecrementParticipant(ctx context.Context, db bun.IDB, id uuid.UUID, feeDelta int64) (*rounddomain.Round, error)

	AddParticipant(ctx context.Context, db bun.IDB, p *rounddomain.Participant) error
	GetParticipant(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID string) (*rounddomain.Participant, error)
	RemoveParticipant(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID string) error
	UpgradeSpectator(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID string, paid int64) (*rounddomain.Participant, error)
	ListParticipants(ctx context.Context, db bun.IDB, roundID uuid.UUID) ([]*rounddomain.Participant, error)
	MarkRefunded(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID string, at time.Time) error

	AppendAction(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID, body string) (*rounddomain.Action, error)
	ListActions(ctx context.Context, db bun.IDB, roundID uuid.UUID) ([]rounddomain.Action, error)
	TouchActivity(ctx context.Context, db bun.IDB, roundID uuid.UUID, at time.Time) error

	// ListRoundsNeedingWork returns non-terminal rounds whose next timer is due at now.
	// endingWarning is the lead before live_end_at at which a live round is marked ending.
	ListRoundsNeedingWork(ctx context.Context, db bun.IDB, now time.Time, endingWarning time.Duration, limit int) ([]*rounddomain.Round, error)
	// ListUnscheduledSuccessors returns finished recurring rounds of active templates with no successor.
	ListUnscheduledSuccessors(ctx context.Context, db bun.IDB, limit int) ([]*rounddomain.Round, error)
	ListActiveRounds(ctx context.Context, db bun.IDB) ([]*rounddomain.Round, error)
	FindOpenSuccessor(ctx context.Context, db bun.IDB, templateID uuid.UUID) (*rounddomain.Round, error)

	InsertWinners(ctx context.Context, db bun.IDB, winners []rounddomain.Winner) error
	ListWinners(ctx context.Context, db bun.IDB, roundID uuid.UUID) ([]rounddomain.Winner, error)
}
