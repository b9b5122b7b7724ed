package roundservice

import (
	"context"
	"errors"
	"fmt"

	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	rounddb "github.com/Black-And-White-Club/lastword/app/modules/round/infrastructure/repositories"
	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/Black-And-White-Club/lastword/pkg/utils/results"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var errSuccessorExists = errors.New("successor already exists")

// MaybeCreateNext spawns the successor of a finished recurring round. It
// returns nil when nothing recurs, the template is inactive, or the chain
// already has an unfinished round.
func (s *RoundService) MaybeCreateNext(ctx context.Context, roundID uuid.UUID) (*rounddomain.Round, error) {
	return unwrap(withTelemetry(s, ctx, "MaybeCreateNext", roundID.String(), func(ctx context.Context) (roundResult, error) {
		next, err := s.createNext(ctx, roundID)
		if err != nil {
			if errors.Is(err, ErrRoundNotFound) {
				return results.FailureResult[*rounddomain.Round, error](err), nil
			}
			return roundResult{}, err
		}
		return results.SuccessResult[*rounddomain.Round, error](next), nil
	}))
}

func (s *RoundService) createNext(ctx context.Context, predecessorID uuid.UUID) (*rounddomain.Round, error) {
	next, err := unwrap(runInTx(s, ctx, func(ctx context.Context, db bun.IDB) (roundResult, error) {
		return s.createNextLogic(ctx, db, predecessorID)
	}))
	if errors.Is(err, errSuccessorExists) {
		return nil, nil
	}
	if err != nil || next == nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Successor round scheduled",
		attr.ExtractCorrelationID(ctx),
		attr.RoundID("predecessor_id", predecessorID),
		attr.RoundID("round_id", next.ID),
		attr.String("status", string(next.Status)),
		attr.Time("live_start_at", next.LiveStartAt),
	)
	s.announce(ctx, change{round: next, cause: roundevents.CauseCreated})
	return next, nil
}

func (s *RoundService) createNextLogic(ctx context.Context, db bun.IDB, predecessorID uuid.UUID) (roundResult, error) {
	none := results.SuccessResult[*rounddomain.Round, error](nil)

	pred, err := s.repo.GetRound(ctx, db, predecessorID)
	if err != nil {
		if errors.Is(err, rounddb.ErrNotFound) {
			return results.FailureResult[*rounddomain.Round, error](ErrRoundNotFound), nil
		}
		return roundResult{}, fmt.Errorf("failed to get predecessor: %w", err)
	}
	if !pred.RecurrenceType.Recurs() || !pred.Status.IsTerminal() {
		return none, nil
	}
	finished, ok := pred.FinishedAt()
	if !ok {
		return none, nil
	}

	tmpl, err := s.repo.GetTemplate(ctx, db, pred.TemplateID)
	if err != nil {
		if errors.Is(err, rounddb.ErrTemplateNotFound) {
			return none, nil
		}
		return roundResult{}, fmt.Errorf("failed to get template: %w", err)
	}
	if !tmpl.Active {
		return none, nil
	}

	open, err := s.repo.FindOpenSuccessor(ctx, db, tmpl.ID)
	if err != nil && !errors.Is(err, rounddb.ErrNotFound) {
		return roundResult{}, err
	}
	if open != nil {
		return none, nil
	}

	now, err := s.repo.Now(ctx, db)
	if err != nil {
		return roundResult{}, err
	}
	next, ok := rounddomain.NewSuccessor(*tmpl, pred, finished, now)
	if !ok {
		return none, nil
	}
	if err := rounddomain.ValidateRound(next); err != nil {
		return results.FailureResult[*rounddomain.Round, error](err), nil
	}
	if err := s.repo.CreateRound(ctx, db, next); err != nil {
		if errors.Is(err, rounddb.ErrDuplicateSuccessor) {
			return results.FailureResult[*rounddomain.Round, error](errSuccessorExists), nil
		}
		return roundResult{}, err
	}
	if err := s.audit.RecordTransition(ctx, db, next.ID, "create", "", string(next.Status), driverActor, map[string]any{
		"predecessor_id": pred.ID.String(),
		"live_start_at":  next.LiveStartAt,
	}); err != nil {
		return roundResult{}, err
	}
	return results.SuccessResult[*rounddomain.Round, error](next), nil
}
