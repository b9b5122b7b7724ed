package roundservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	rounddb "github.com/Black-And-White-Club/lastword/app/modules/round/infrastructure/repositories"
	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/Black-And-White-Club/lastword/pkg/utils/results"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type templateResult = results.OperationResult[*rounddomain.Template, error]
type roundResult = results.OperationResult[*rounddomain.Round, error]

// CreateTemplate validates and stores a round template.
func (s *RoundService) CreateTemplate(ctx context.Context, t rounddomain.Template) (*rounddomain.Template, error) {
	return unwrap(withTelemetry(s, ctx, "CreateTemplate", t.Name, func(ctx context.Context) (templateResult, error) {
		return runInTx(s, ctx, func(ctx context.Context, db bun.IDB) (templateResult, error) {
			if err := rounddomain.ValidateTemplate(t); err != nil {
				return results.FailureResult[*rounddomain.Template, error](err), nil
			}
			tmpl := t
			if err := s.repo.CreateTemplate(ctx, db, &tmpl); err != nil {
				return templateResult{}, fmt.Errorf("failed to create template: %w", err)
			}
			return results.SuccessResult[*rounddomain.Template, error](&tmpl), nil
		})
	}))
}

// GetTemplate retrieves a template by id.
func (s *RoundService) GetTemplate(ctx context.Context, id uuid.UUID) (*rounddomain.Template, error) {
	return unwrap(withTelemetry(s, ctx, "GetTemplate", id.String(), func(ctx context.Context) (templateResult, error) {
		return runInTx(s, ctx, func(ctx context.Context, db bun.IDB) (templateResult, error) {
			tmpl, err := s.repo.GetTemplate(ctx, db, id)
			if err != nil {
				if errors.Is(err, rounddb.ErrTemplateNotFound) {
					return results.FailureResult[*rounddomain.Template, error](ErrTemplateNotFound), nil
				}
				return templateResult{}, fmt.Errorf("failed to get template: %w", err)
			}
			return results.SuccessResult[*rounddomain.Template, error](tmpl), nil
		})
	}))
}

// CreateRound lays a template out around the requested start and stores the
// round as scheduled.
func (s *RoundService) CreateRound(ctx context.Context, req CreateRoundRequest) (*rounddomain.Round, error) {
	created, err := unwrap(withTelemetry(s, ctx, "CreateRound", req.TemplateID.String(), func(ctx context.Context) (roundResult, error) {
		return runInTx(s, ctx, func(ctx context.Context, db bun.IDB) (roundResult, error) {
			return s.createRoundLogic(ctx, db, req)
		})
	}))
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Round created",
		attr.ExtractCorrelationID(ctx),
		attr.RoundID("round_id", created.ID),
		attr.Time("live_start_at", created.LiveStartAt),
		attr.String("created_by", req.CreatedBy),
	)
	s.announce(ctx, change{round: created, cause: roundevents.CauseCreated})
	return created, nil
}

func (s *RoundService) createRoundLogic(ctx context.Context, db bun.IDB, req CreateRoundRequest) (roundResult, error) {
	tmpl, err := s.repo.GetTemplate(ctx, db, req.TemplateID)
	if err != nil {
		if errors.Is(err, rounddb.ErrTemplateNotFound) {
			return results.FailureResult[*rounddomain.Round, error](ErrTemplateNotFound), nil
		}
		return roundResult{}, fmt.Errorf("failed to get template: %w", err)
	}
	if !tmpl.Active {
		return results.FailureResult[*rounddomain.Round, error](ErrTemplateInactive), nil
	}

	now, err := s.repo.Now(ctx, db)
	if err != nil {
		return roundResult{}, err
	}
	start, err := s.parser.Parse(req.StartsAt, req.Timezone, now)
	if err != nil {
		return results.FailureResult[*rounddomain.Round, error](fmt.Errorf("%w: %w", ErrInvalidStartTime, err)), nil
	}

	round := rounddomain.NewRound(*tmpl, start)
	if err := rounddomain.ValidateRound(round); err != nil {
		return results.FailureResult[*rounddomain.Round, error](err), nil
	}
	if err := s.repo.CreateRound(ctx, db, round); err != nil {
		return roundResult{}, fmt.Errorf("failed to create round: %w", err)
	}
	if err := s.audit.RecordTransition(ctx, db, round.ID, "create", "", string(round.Status), req.CreatedBy, map[string]any{
		"template_id":   tmpl.ID.String(),
		"live_start_at": round.LiveStartAt,
	}); err != nil {
		return roundResult{}, err
	}
	return results.SuccessResult[*rounddomain.Round, error](round), nil
}

// GetRound retrieves a round by id.
func (s *RoundService) GetRound(ctx context.Context, id uuid.UUID) (*rounddomain.Round, error) {
	return unwrap(withTelemetry(s, ctx, "GetRound", id.String(), func(ctx context.Context) (roundResult, error) {
		return runInTx(s, ctx, func(ctx context.Context, db bun.IDB) (roundResult, error) {
			r, err := s.repo.GetRound(ctx, db, id)
			if err != nil {
				if errors.Is(err, rounddb.ErrNotFound) {
					return results.FailureResult[*rounddomain.Round, error](ErrRoundNotFound), nil
				}
				return roundResult{}, fmt.Errorf("failed to get round: %w", err)
			}
			return results.SuccessResult[*rounddomain.Round, error](r), nil
		})
	}))
}

// ServerTime is the authoritative clock clients reconcile against.
func (s *RoundService) ServerTime(ctx context.Context) (time.Time, error) {
	return s.repo.Now(ctx, nil)
}

// ListActiveRounds returns every unfinished round with countdowns computed
// against the store clock. Clients render these directly.
func (s *RoundService) ListActiveRounds(ctx context.Context) ([]rounddomain.ActiveRoundView, error) {
	type viewsResult = results.OperationResult[[]rounddomain.ActiveRoundView, error]
	return unwrap(withTelemetry(s, ctx, "ListActiveRounds", "", func(ctx context.Context) (viewsResult, error) {
		return runInTx(s, ctx, func(ctx context.Context, db bun.IDB) (viewsResult, error) {
			rounds, err := s.repo.ListActiveRounds(ctx, db)
			if err != nil {
				return viewsResult{}, fmt.Errorf("failed to list active rounds: %w", err)
			}
			now, err := s.repo.Now(ctx, db)
			if err != nil {
				return viewsResult{}, err
			}
			views := make([]rounddomain.ActiveRoundView, 0, len(rounds))
			for _, r := range rounds {
				views = append(views, rounddomain.BuildView(r, now))
			}
			return results.SuccessResult[[]rounddomain.ActiveRoundView, error](views), nil
		})
	}))
}

// Leaderboard ranks distinct actors by their most recent action.
func (s *RoundService) Leaderboard(ctx context.Context, roundID uuid.UUID) ([]rounddomain.RankedActor, error) {
	type boardResult = results.OperationResult[[]rounddomain.RankedActor, error]
	return unwrap(withTelemetry(s, ctx, "Leaderboard", roundID.String(), func(ctx context.Context) (boardResult, error) {
		return runInTx(s, ctx, func(ctx context.Context, db bun.IDB) (boardResult, error) {
			if _, err := s.repo.GetRound(ctx, db, roundID); err != nil {
				if errors.Is(err, rounddb.ErrNotFound) {
					return results.FailureResult[[]rounddomain.RankedActor, error](ErrRoundNotFound), nil
				}
				return boardResult{}, fmt.Errorf("failed to get round: %w", err)
			}
			actions, err := s.repo.ListActions(ctx, db, roundID)
			if err != nil {
				return boardResult{}, err
			}
			return results.SuccessResult[[]rounddomain.RankedActor, error](rounddomain.OrderedActors(actions)), nil
		})
	}))
}

// ListParticipants returns the round's memberships in join order.
func (s *RoundService) ListParticipants(ctx context.Context, roundID uuid.UUID) ([]*rounddomain.Participant, error) {
	return s.repo.ListParticipants(ctx, nil, roundID)
}

// ListWinners returns the settled winner set.
func (s *RoundService) ListWinners(ctx context.Context, roundID uuid.UUID) ([]rounddomain.Winner, error) {
	return s.repo.ListWinners(ctx, nil, roundID)
}
