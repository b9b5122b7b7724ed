package roundservice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	ledgerservice "github.com/Black-And-White-Club/lastword/app/modules/ledger/application"
	ledgerdb "github.com/Black-And-White-Club/lastword/app/modules/ledger/infrastructure/repositories"
	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	rounddb "github.com/Black-And-White-Club/lastword/app/modules/round/infrastructure/repositories"
	"github.com/Black-And-White-Club/lastword/pkg/utils/results"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const settlementActor = "settlement"

// Settle pays out an ended round. It is safe to call any number of times from
// any number of workers: the ended to settled compare-and-set admits exactly
// one, and everyone gets the settlement that was written.
func (s *RoundService) Settle(ctx context.Context, roundID uuid.UUID) (*rounddomain.Settlement, error) {
	type settleResult = results.OperationResult[*rounddomain.Settlement, error]
	return unwrap(withTelemetry(s, ctx, "Settle", roundID.String(), func(ctx context.Context) (settleResult, error) {
		r, err := s.repo.GetRound(ctx, nil, roundID)
		if err != nil {
			if errors.Is(err, rounddb.ErrNotFound) {
				return results.FailureResult[*rounddomain.Settlement, error](ErrRoundNotFound), nil
			}
			return settleResult{}, fmt.Errorf("failed to get round: %w", err)
		}
		if r.Status == rounddomain.StatusEnded {
			if _, err := s.advance(ctx, roundID, false, settlementActor); err != nil && !errors.Is(err, ErrConcurrentChange) {
				return settleResult{}, err
			}
			if r, err = s.repo.GetRound(ctx, nil, roundID); err != nil {
				return settleResult{}, fmt.Errorf("failed to reload round: %w", err)
			}
		}
		if !r.Status.IsTerminal() || r.Settlement == nil {
			return results.FailureResult[*rounddomain.Settlement, error](ErrRoundNotFinished), nil
		}
		return results.SuccessResult[*rounddomain.Settlement, error](r.Settlement), nil
	}))
}

// settleLocked ranks the action log, writes the settlement through the
// compare-and-set, then pays out. Any failure after the compare-and-set rolls
// the whole transaction back, status included, so a retry starts clean.
func (s *RoundService) settleLocked(ctx context.Context, db bun.IDB, r *rounddomain.Round, now time.Time, actor string) (*rounddomain.Round, error) {
	actions, err := s.repo.ListActions(ctx, db, r.ID)
	if err != nil {
		return nil, err
	}
	participants, err := s.repo.ListParticipants(ctx, db, r.ID)
	if err != nil {
		return nil, err
	}

	counted := actions[:0:0]
	for _, a := range actions {
		if r.EndedAt != nil && !a.ActedAt.Before(*r.EndedAt) {
			continue
		}
		counted = append(counted, a)
	}
	ranked := rounddomain.OrderedActors(counted)

	settlement := &rounddomain.Settlement{
		Pool:      r.PoolValue,
		Sponsored: r.SponsoredAmount,
		Winners:   []rounddomain.WinnerShare{},
		SettledAt: now,
	}
	var winners []rounddomain.Winner
	if len(ranked) == 0 {
		settlement.Outcome = rounddomain.OutcomeNoWinner
		settlement.Reason = "no qualifying actions"
		fillRefund(settlement, r, participants)
	} else {
		payout := rounddomain.ComputePayout(r.PoolValue, r.SponsoredAmount, r.CommissionRate, r.PrizeDistribution, min(len(ranked), r.WinnerCount))
		settlement.Outcome = rounddomain.OutcomeWinners
		settlement.Commission = payout.Commission
		settlement.Net = payout.Net
		settlement.Distributed = payout.Distributed
		settlement.Remainder = payout.Remainder
		for i, prize := range payout.Prizes {
			settlement.Winners = append(settlement.Winners, rounddomain.WinnerShare{
				UserID:       ranked[i].UserID,
				Position:     i + 1,
				Percent:      r.PrizeDistribution[i],
				PrizeAmount:  prize,
				LastActionAt: ranked[i].LastActionTime,
			})
			winners = append(winners, rounddomain.Winner{
				RoundID:     r.ID,
				UserID:      ranked[i].UserID,
				Position:    i + 1,
				PrizeAmount: prize,
			})
		}
	}

	settledAt := now
	step := rounddomain.Step{
		Kind:   rounddomain.StepSettle,
		From:   rounddomain.StatusEnded,
		To:     rounddomain.StatusSettled,
		Fields: rounddomain.TransitionFields{SettledAt: &settledAt, Settlement: settlement},
	}
	updated, err := s.transition(ctx, db, r, step, actor, map[string]any{
		"outcome":     string(settlement.Outcome),
		"pool":        settlement.Pool,
		"distributed": settlement.Distributed,
		"winners":     len(winners),
	})
	if err != nil {
		return nil, err
	}

	if settlement.Outcome == rounddomain.OutcomeNoWinner {
		if err := s.refundAll(ctx, db, r, participants, now); err != nil {
			return nil, err
		}
	} else {
		if err := s.repo.InsertWinners(ctx, db, winners); err != nil {
			return nil, err
		}
		for i, w := range winners {
			if w.PrizeAmount > 0 {
				key := ledgerservice.EntryKey(r.ID, w.UserID, ledgerdb.KindPrize, strconv.Itoa(w.Position))
				if err := s.wallet.Credit(ctx, db, r.ID, w.UserID, ledgerdb.KindPrize, w.PrizeAmount, key); err != nil {
					return nil, fmt.Errorf("failed to credit prize for position %d: %w", w.Position, err)
				}
			}
			if s.identity != nil {
				if err := s.identity.RecordWin(ctx, db, w.UserID, r.PrizeDistribution[i], w.PrizeAmount); err != nil {
					return nil, fmt.Errorf("failed to record win: %w", err)
				}
			}
		}
	}

	if s.identity != nil {
		var played []string
		for _, p := range participants {
			if !p.Spectator {
				played = append(played, p.UserID)
			}
		}
		if len(played) > 0 {
			if err := s.identity.RecordGamesPlayed(ctx, db, played); err != nil {
				return nil, fmt.Errorf("failed to record games played: %w", err)
			}
		}
	}
	return updated, nil
}

// cancelLocked cancels a pre-live round and refunds every paid entry.
func (s *RoundService) cancelLocked(ctx context.Context, db bun.IDB, r *rounddomain.Round, step rounddomain.Step, actor, reason string) (*rounddomain.Round, error) {
	participants, err := s.repo.ListParticipants(ctx, db, r.ID)
	if err != nil {
		return nil, err
	}
	cancelledAt := *step.Fields.CancelledAt
	settlement := &rounddomain.Settlement{
		Outcome:   rounddomain.OutcomeCancelled,
		Reason:    reason,
		Pool:      r.PoolValue,
		Winners:   []rounddomain.WinnerShare{},
		SettledAt: cancelledAt,
	}
	fillRefund(settlement, r, participants)
	step.Fields.Settlement = settlement

	updated, err := s.transition(ctx, db, r, step, actor, map[string]any{
		"reason":            reason,
		"participant_count": r.ParticipantCount,
		"refund_total":      settlement.RefundTotal,
	})
	if err != nil {
		return nil, err
	}
	if err := s.refundAll(ctx, db, r, participants, cancelledAt); err != nil {
		return nil, err
	}
	return updated, nil
}

func refundable(p *rounddomain.Participant) bool {
	return !p.Spectator && p.PaidAmount > 0 && p.RefundedAt == nil
}

func fillRefund(settlement *rounddomain.Settlement, r *rounddomain.Round, participants []*rounddomain.Participant) {
	for _, p := range participants {
		if refundable(p) {
			settlement.RefundCount++
			settlement.RefundTotal += p.PaidAmount
		}
	}
	settlement.Refunded = settlement.RefundCount > 0
	if settlement.Refunded {
		settlement.RefundAmount = r.EntryFee
	}
}

// refundAll returns each paid entry once. The ledger key makes a replay a no-op.
func (s *RoundService) refundAll(ctx context.Context, db bun.IDB, r *rounddomain.Round, participants []*rounddomain.Participant, at time.Time) error {
	for _, p := range participants {
		if !refundable(p) {
			continue
		}
		key := ledgerservice.EntryKey(r.ID, p.UserID, ledgerdb.KindRefund, p.ID.String())
		if err := s.wallet.Credit(ctx, db, r.ID, p.UserID, ledgerdb.KindRefund, p.PaidAmount, key); err != nil {
			return fmt.Errorf("failed to refund %s: %w", p.UserID, err)
		}
		if err := s.repo.MarkRefunded(ctx, db, r.ID, p.UserID, at); err != nil {
			return err
		}
	}
	return nil
}
