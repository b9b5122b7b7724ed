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

const driverActor = "driver"

type advanceResult = results.OperationResult[*AdvanceResult, error]

// Tick is one driver pass: every due round gets at most one transition, each
// in its own transaction, so one failing round never blocks the rest. Missing
// successors of finished recurring rounds are repaired afterwards.
func (s *RoundService) Tick(ctx context.Context) (roundevents.TickSummaryV1, error) {
	type tickResult = results.OperationResult[roundevents.TickSummaryV1, error]
	start := time.Now()
	defer func() { s.metrics.RecordTickDuration(ctx, time.Since(start)) }()

	return unwrap(withTelemetry(s, ctx, "Tick", "", func(ctx context.Context) (tickResult, error) {
		summary, err := s.tickLogic(ctx)
		if err != nil {
			return tickResult{}, err
		}
		return results.SuccessResult[roundevents.TickSummaryV1, error](summary), nil
	}))
}

func (s *RoundService) tickLogic(ctx context.Context) (roundevents.TickSummaryV1, error) {
	var summary roundevents.TickSummaryV1

	now, err := s.repo.Now(ctx, nil)
	if err != nil {
		return summary, err
	}
	due, err := s.repo.ListRoundsNeedingWork(ctx, nil, now, s.cfg.Lifecycle.EndingWarning, s.cfg.TickBatchSize)
	if err != nil {
		return summary, fmt.Errorf("failed to list due rounds: %w", err)
	}

	for _, r := range due {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		res, err := s.advance(ctx, r.ID, false, driverActor)
		switch {
		case errors.Is(err, ErrConcurrentChange):
			summary.Conflicts++
		case err != nil:
			summary.Failed++
			s.logger.ErrorContext(ctx, "Round transition failed",
				attr.ExtractCorrelationID(ctx),
				attr.RoundID("round_id", r.ID),
				attr.String("status", string(r.Status)),
				attr.Error(err),
			)
		default:
			countStep(&summary, res)
		}
	}

	orphans, err := s.repo.ListUnscheduledSuccessors(ctx, nil, s.cfg.SuccessorBatchSize)
	if err != nil {
		return summary, fmt.Errorf("failed to list unscheduled successors: %w", err)
	}
	for _, pred := range orphans {
		next, err := s.createNext(ctx, pred.ID)
		if err != nil {
			summary.Failed++
			s.logger.ErrorContext(ctx, "Successor creation failed",
				attr.ExtractCorrelationID(ctx),
				attr.RoundID("predecessor_id", pred.ID),
				attr.Error(err),
			)
			continue
		}
		if next != nil {
			summary.Rescheduled++
		}
	}

	if summary.Total() > 0 || summary.Failed > 0 {
		s.logger.InfoContext(ctx, "Driver pass complete",
			attr.ExtractCorrelationID(ctx),
			attr.Int("due", len(due)),
			attr.Any("summary", summary),
		)
	}
	return summary, nil
}

func countStep(summary *roundevents.TickSummaryV1, res *AdvanceResult) {
	switch res.Step {
	case rounddomain.StepOpen:
		summary.Opened++
	case rounddomain.StepCloseEntries:
		summary.EntriesClosed++
	case rounddomain.StepStart:
		summary.Started++
	case rounddomain.StepExtend:
		summary.Extended++
	case rounddomain.StepCancelQuorum, rounddomain.StepCancel:
		summary.Cancelled++
	case rounddomain.StepMarkEnding:
		summary.MarkedEnding++
	case rounddomain.StepEnd:
		summary.Ended++
	case rounddomain.StepSettle:
		summary.Settled++
	case rounddomain.StepNone, rounddomain.StepQuorumNotMet:
	}
	if res.Successor != nil {
		summary.Rescheduled++
	}
}

// AdvanceRound applies whatever single transition is due for one round now.
// Transition jobs call this at the instant a timer fires.
func (s *RoundService) AdvanceRound(ctx context.Context, roundID uuid.UUID) (*AdvanceResult, error) {
	return unwrap(withTelemetry(s, ctx, "AdvanceRound", roundID.String(), func(ctx context.Context) (advanceResult, error) {
		return wrapAdvance(s.advance(ctx, roundID, false, driverActor))
	}))
}

// ForceTransition moves a round one step forward ignoring its timers. Quorum
// policy still applies, so a reset-policy round short of quorum stays put.
func (s *RoundService) ForceTransition(ctx context.Context, roundID uuid.UUID, actor string) (*AdvanceResult, error) {
	return unwrap(withTelemetry(s, ctx, "ForceTransition", roundID.String(), func(ctx context.Context) (advanceResult, error) {
		return wrapAdvance(s.advance(ctx, roundID, true, actor))
	}))
}

// wrapAdvance turns advance's domain errors back into failure results.
func wrapAdvance(res *AdvanceResult, err error) (advanceResult, error) {
	if err == nil {
		return results.SuccessResult[*AdvanceResult, error](res), nil
	}
	for _, domainErr := range []error{ErrRoundNotFound, ErrRoundTerminal, ErrQuorumNotMet, ErrConcurrentChange} {
		if errors.Is(err, domainErr) {
			return results.FailureResult[*AdvanceResult, error](err), nil
		}
	}
	return advanceResult{}, err
}

// advance plans and applies one step under the round's row lock, then
// announces it and rolls a recurring chain forward once committed.
func (s *RoundService) advance(ctx context.Context, roundID uuid.UUID, force bool, actor string) (*AdvanceResult, error) {
	res, err := unwrap(runInTx(s, ctx, func(ctx context.Context, db bun.IDB) (advanceResult, error) {
		return s.advanceLogic(ctx, db, roundID, force, actor)
	}))
	if err != nil {
		return nil, err
	}
	if !res.Applied() {
		return res, nil
	}

	s.metrics.RecordTransition(ctx, string(res.Previous), string(res.Round.Status))
	if res.Step == rounddomain.StepSettle && res.Round.Settlement != nil {
		s.metrics.RecordSettlement(ctx, string(res.Round.Settlement.Outcome), res.Round.Settlement.Distributed)
	}
	s.logger.InfoContext(ctx, "Round transitioned",
		attr.ExtractCorrelationID(ctx),
		attr.RoundID("round_id", res.Round.ID),
		attr.String("step", res.Step.String()),
		attr.String("from", string(res.Previous)),
		attr.String("to", string(res.Round.Status)),
		attr.String("actor", actor),
	)
	s.announce(ctx, change{round: res.Round, previous: res.Previous, cause: roundevents.CauseTransition})

	if res.Round.Status.IsTerminal() {
		next, err := s.createNext(ctx, res.Round.ID)
		if err != nil {
			// The driver's successor scan retries this.
			s.logger.WarnContext(ctx, "Successor creation deferred",
				attr.ExtractCorrelationID(ctx),
				attr.RoundID("round_id", res.Round.ID),
				attr.Error(err),
			)
		}
		res.Successor = next
	}
	return res, nil
}

func (s *RoundService) advanceLogic(ctx context.Context, db bun.IDB, roundID uuid.UUID, force bool, actor string) (advanceResult, error) {
	r, fail, err := s.lockRound(ctx, db, roundID)
	if fail != nil {
		return results.FailureResult[*AdvanceResult, error](fail), nil
	}
	if err != nil {
		return advanceResult{}, err
	}
	now, err := s.repo.Now(ctx, db)
	if err != nil {
		return advanceResult{}, err
	}

	step := rounddomain.PlanStep(r, now, s.cfg.Lifecycle, force)
	res := &AdvanceResult{Step: step.Kind, Previous: r.Status, Round: r}

	var updated *rounddomain.Round
	switch step.Kind {
	case rounddomain.StepNone:
		if force && r.Status.IsTerminal() {
			return results.FailureResult[*AdvanceResult, error](ErrRoundTerminal), nil
		}
		return results.SuccessResult[*AdvanceResult, error](res), nil
	case rounddomain.StepQuorumNotMet:
		return results.FailureResult[*AdvanceResult, error](ErrQuorumNotMet), nil
	case rounddomain.StepSettle:
		updated, err = s.settleLocked(ctx, db, r, now, actor)
	case rounddomain.StepCancelQuorum:
		updated, err = s.cancelLocked(ctx, db, r, step, actor, "minimum participants not met")
	default:
		updated, err = s.transition(ctx, db, r, step, actor, nil)
	}
	if err != nil {
		if errors.Is(err, rounddb.ErrTransitionConflict) {
			s.metrics.RecordTransitionConflict(ctx, string(step.From))
			return results.FailureResult[*AdvanceResult, error](ErrConcurrentChange), nil
		}
		return advanceResult{}, err
	}
	res.Round = updated
	return results.SuccessResult[*AdvanceResult, error](res), nil
}

// transition applies a planned step through the store's compare-and-set and
// audits it in the same transaction.
func (s *RoundService) transition(ctx context.Context, db bun.IDB, r *rounddomain.Round, step rounddomain.Step, actor string, detail map[string]any) (*rounddomain.Round, error) {
	updated, err := s.repo.CompareAndTransition(ctx, db, r.ID, step.From, step.To, step.Fields)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		detail = map[string]any{}
	}
	if step.Kind == rounddomain.StepExtend {
		detail["reset_count"] = updated.ResetCount
		detail["live_start_at"] = updated.LiveStartAt
		detail["participant_count"] = updated.ParticipantCount
	}
	if step.Fields.EndReason != nil {
		detail["end_reason"] = string(*step.Fields.EndReason)
	}
	if err := s.audit.RecordTransition(ctx, db, r.ID, step.Kind.String(), string(step.From), string(step.To), actor, detail); err != nil {
		return nil, fmt.Errorf("failed to audit transition: %w", err)
	}
	return updated, nil
}

// CancelRound cancels a round that has not gone live and refunds every paid
// entry. Cancelling an already cancelled round is a no-op.
func (s *RoundService) CancelRound(ctx context.Context, roundID uuid.UUID, actor, reason string) (*rounddomain.Round, error) {
	type cancelResult = results.OperationResult[*AdvanceResult, error]
	res, err := unwrap(withTelemetry(s, ctx, "CancelRound", roundID.String(), func(ctx context.Context) (cancelResult, error) {
		return runInTx(s, ctx, func(ctx context.Context, db bun.IDB) (cancelResult, error) {
			r, fail, err := s.lockRound(ctx, db, roundID)
			if fail != nil {
				return results.FailureResult[*AdvanceResult, error](fail), nil
			}
			if err != nil {
				return cancelResult{}, err
			}
			res := &AdvanceResult{Step: rounddomain.StepNone, Previous: r.Status, Round: r}
			if r.Status == rounddomain.StatusCancelled {
				return results.SuccessResult[*AdvanceResult, error](res), nil
			}
			if !r.Status.IsPreLive() {
				if r.Status.IsTerminal() {
					return results.FailureResult[*AdvanceResult, error](ErrRoundTerminal), nil
				}
				return results.FailureResult[*AdvanceResult, error](ErrRoundAlreadyLive), nil
			}
			now, err := s.repo.Now(ctx, db)
			if err != nil {
				return cancelResult{}, err
			}
			if reason == "" {
				reason = "cancelled by operator"
			}
			step := rounddomain.Step{
				Kind:   rounddomain.StepCancel,
				From:   r.Status,
				To:     rounddomain.StatusCancelled,
				Fields: rounddomain.TransitionFields{CancelledAt: &now},
			}
			updated, err := s.cancelLocked(ctx, db, r, step, actor, reason)
			if err != nil {
				if errors.Is(err, rounddb.ErrTransitionConflict) {
					return results.FailureResult[*AdvanceResult, error](ErrConcurrentChange), nil
				}
				return cancelResult{}, err
			}
			res.Step = rounddomain.StepCancel
			res.Round = updated
			return results.SuccessResult[*AdvanceResult, error](res), nil
		})
	}))
	if err != nil {
		return nil, err
	}
	if res.Applied() {
		s.metrics.RecordTransition(ctx, string(res.Previous), string(res.Round.Status))
		s.announce(ctx, change{round: res.Round, previous: res.Previous, cause: roundevents.CauseTransition})
		if _, err := s.createNext(ctx, res.Round.ID); err != nil {
			s.logger.WarnContext(ctx, "Successor creation deferred",
				attr.ExtractCorrelationID(ctx),
				attr.RoundID("round_id", res.Round.ID),
				attr.Error(err),
			)
		}
	}
	return res.Round, nil
}
