package roundservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ledgerservice "github.com/Black-And-White-Club/lastword/app/modules/ledger/application"
	ledgerdb "github.com/Black-And-White-Club/lastword/app/modules/ledger/infrastructure/repositories"
	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	rounddb "github.com/Black-And-White-Club/lastword/app/modules/round/infrastructure/repositories"
	"github.com/Black-And-White-Club/lastword/pkg/utils/results"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// membership is a participant change together with the round it changed.
type membership struct {
	participant *rounddomain.Participant
	round       *rounddomain.Round
}

type membershipResult = results.OperationResult[membership, error]

// Join enters a user into a round that is taking entries. Paying participants
// are debited the entry fee in the same transaction that bumps the pool.
func (s *RoundService) Join(ctx context.Context, roundID uuid.UUID, userID string, spectator bool) (*rounddomain.Participant, error) {
	m, err := unwrap(withTelemetry(s, ctx, "Join", roundID.String(), func(ctx context.Context) (membershipResult, error) {
		return runInTx(s, ctx, func(ctx context.Context, db bun.IDB) (membershipResult, error) {
			return s.joinLogic(ctx, db, roundID, userID, spectator)
		})
	}))
	if err != nil {
		return nil, err
	}
	s.announce(ctx, change{round: m.round, cause: roundevents.CauseParticipants})
	return m.participant, nil
}

func (s *RoundService) joinLogic(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID string, spectator bool) (membershipResult, error) {
	r, fail, err := s.lockRound(ctx, db, roundID)
	if fail != nil || err != nil {
		return membershipFailure(fail), err
	}
	now, err := s.repo.Now(ctx, db)
	if err != nil {
		return membershipResult{}, err
	}
	if !r.AcceptsEntries(now) {
		return membershipFailure(ErrEntriesClosed), nil
	}
	if spectator && !r.AllowSpectators {
		return membershipFailure(ErrSpectatorsNotAllowed), nil
	}

	p := &rounddomain.Participant{
		ID:        uuid.New(),
		RoundID:   r.ID,
		UserID:    userID,
		Spectator: spectator,
		JoinedAt:  now,
	}
	if !spectator {
		p.PaidAmount = r.EntryFee
		p.RefundEligible = r.EntryFee > 0
	}
	if err := s.repo.AddParticipant(ctx, db, p); err != nil {
		if errors.Is(err, rounddb.ErrAlreadyJoined) {
			return membershipFailure(ErrAlreadyJoined), nil
		}
		return membershipResult{}, err
	}
	if spectator {
		return results.SuccessResult[membership, error](membership{participant: p, round: r}), nil
	}

	fail, err = s.chargeEntry(ctx, db, r, p)
	if fail != nil || err != nil {
		return membershipFailure(fail), err
	}
	updated, err := s.repo.IncrementParticipant(ctx, db, r.ID, p.PaidAmount)
	if err != nil {
		return membershipResult{}, fmt.Errorf("failed to count participant: %w", err)
	}
	return results.SuccessResult[membership, error](membership{participant: p, round: updated}), nil
}

// Leave removes a user before the round goes live. A paid entry is refunded.
func (s *RoundService) Leave(ctx context.Context, roundID uuid.UUID, userID string) error {
	m, err := unwrap(withTelemetry(s, ctx, "Leave", roundID.String(), func(ctx context.Context) (membershipResult, error) {
		return runInTx(s, ctx, func(ctx context.Context, db bun.IDB) (membershipResult, error) {
			return s.leaveLogic(ctx, db, roundID, userID)
		})
	}))
	if err != nil {
		return err
	}
	s.announce(ctx, change{round: m.round, cause: roundevents.CauseParticipants})
	return nil
}

func (s *RoundService) leaveLogic(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID string) (membershipResult, error) {
	r, fail, err := s.lockRound(ctx, db, roundID)
	if fail != nil || err != nil {
		return membershipFailure(fail), err
	}
	if !r.Status.IsPreLive() {
		return membershipFailure(ErrRoundAlreadyLive), nil
	}
	p, err := s.repo.GetParticipant(ctx, db, roundID, userID)
	if err != nil {
		if errors.Is(err, rounddb.ErrParticipantNotFound) {
			return membershipFailure(ErrNotParticipant), nil
		}
		return membershipResult{}, err
	}
	if err := s.repo.RemoveParticipant(ctx, db, roundID, userID); err != nil {
		return membershipResult{}, fmt.Errorf("failed to remove participant: %w", err)
	}
	if p.Spectator {
		return results.SuccessResult[membership, error](membership{participant: p, round: r}), nil
	}

	updated, err := s.repo.DecrementParticipant(ctx, db, r.ID, p.PaidAmount)
	if err != nil {
		return membershipResult{}, fmt.Errorf("failed to uncount participant: %w", err)
	}
	if p.PaidAmount > 0 && p.RefundedAt == nil {
		key := ledgerservice.EntryKey(r.ID, p.UserID, ledgerdb.KindRefund, p.ID.String())
		if err := s.wallet.Credit(ctx, db, r.ID, p.UserID, ledgerdb.KindRefund, p.PaidAmount, key); err != nil {
			return membershipResult{}, fmt.Errorf("failed to refund entry fee: %w", err)
		}
	}
	return results.SuccessResult[membership, error](membership{participant: p, round: updated}), nil
}

// UpgradeSpectator turns a spectator into a paying participant while entries are open.
func (s *RoundService) UpgradeSpectator(ctx context.Context, roundID uuid.UUID, userID string) (*rounddomain.Participant, error) {
	m, err := unwrap(withTelemetry(s, ctx, "UpgradeSpectator", roundID.String(), func(ctx context.Context) (membershipResult, error) {
		return runInTx(s, ctx, func(ctx context.Context, db bun.IDB) (membershipResult, error) {
			return s.upgradeLogic(ctx, db, roundID, userID)
		})
	}))
	if err != nil {
		return nil, err
	}
	s.announce(ctx, change{round: m.round, cause: roundevents.CauseParticipants})
	return m.participant, nil
}

func (s *RoundService) upgradeLogic(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID string) (membershipResult, error) {
	r, fail, err := s.lockRound(ctx, db, roundID)
	if fail != nil || err != nil {
		return membershipFailure(fail), err
	}
	now, err := s.repo.Now(ctx, db)
	if err != nil {
		return membershipResult{}, err
	}
	if !r.AcceptsEntries(now) {
		return membershipFailure(ErrEntriesClosed), nil
	}
	existing, err := s.repo.GetParticipant(ctx, db, roundID, userID)
	if err != nil {
		if errors.Is(err, rounddb.ErrParticipantNotFound) {
			return membershipFailure(ErrNotParticipant), nil
		}
		return membershipResult{}, err
	}
	if !existing.Spectator {
		return membershipFailure(ErrNotSpectator), nil
	}

	p, err := s.repo.UpgradeSpectator(ctx, db, roundID, userID, r.EntryFee)
	if err != nil {
		if errors.Is(err, rounddb.ErrNoRowsAffected) {
			return membershipFailure(ErrNotSpectator), nil
		}
		return membershipResult{}, err
	}
	fail, err = s.chargeEntry(ctx, db, r, p)
	if fail != nil || err != nil {
		return membershipFailure(fail), err
	}
	updated, err := s.repo.IncrementParticipant(ctx, db, r.ID, p.PaidAmount)
	if err != nil {
		return membershipResult{}, fmt.Errorf("failed to count participant: %w", err)
	}
	return results.SuccessResult[membership, error](membership{participant: p, round: updated}), nil
}

// chargeEntry debits the entry fee. The key includes the participant id so a
// user who leaves and rejoins pays again.
func (s *RoundService) chargeEntry(ctx context.Context, db bun.IDB, r *rounddomain.Round, p *rounddomain.Participant) (fail error, err error) {
	if p.PaidAmount <= 0 {
		return nil, nil
	}
	key := ledgerservice.EntryKey(r.ID, p.UserID, ledgerdb.KindEntryFee, p.ID.String())
	if err := s.wallet.Debit(ctx, db, r.ID, p.UserID, p.PaidAmount, key); err != nil {
		if errors.Is(err, ledgerservice.ErrInsufficientFunds) {
			return ErrInsufficientFunds, nil
		}
		return nil, fmt.Errorf("failed to debit entry fee: %w", err)
	}
	return nil, nil
}

type actionOutcome struct {
	action *rounddomain.Action
	round  *rounddomain.Round
}

type actionResult = results.OperationResult[actionOutcome, error]

// RecordAction appends a qualifying action and resets the activity timer.
// The store stamps the action; one stamped at or past the deadline is rejected.
func (s *RoundService) RecordAction(ctx context.Context, roundID uuid.UUID, userID, body string) (*rounddomain.Action, error) {
	out, err := unwrap(withTelemetry(s, ctx, "RecordAction", roundID.String(), func(ctx context.Context) (actionResult, error) {
		return runInTx(s, ctx, func(ctx context.Context, db bun.IDB) (actionResult, error) {
			return s.recordActionLogic(ctx, db, roundID, userID, body)
		})
	}))
	if err != nil {
		return nil, err
	}
	s.announce(ctx, change{round: out.round, cause: roundevents.CauseActivity})
	return out.action, nil
}

func (s *RoundService) recordActionLogic(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID, body string) (actionResult, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return results.FailureResult[actionOutcome, error](ErrEmptyAction), nil
	}
	r, fail, err := s.lockRound(ctx, db, roundID)
	if fail != nil || err != nil {
		if fail != nil {
			return results.FailureResult[actionOutcome, error](fail), nil
		}
		return actionResult{}, err
	}
	if !r.Status.IsLive() {
		return results.FailureResult[actionOutcome, error](ErrRoundNotLive), nil
	}
	p, err := s.repo.GetParticipant(ctx, db, roundID, userID)
	if err != nil {
		if errors.Is(err, rounddb.ErrParticipantNotFound) {
			return results.FailureResult[actionOutcome, error](ErrNotParticipant), nil
		}
		return actionResult{}, err
	}
	if p.Spectator {
		return results.FailureResult[actionOutcome, error](ErrSpectatorCannotAct), nil
	}

	a, err := s.repo.AppendAction(ctx, db, roundID, userID, body)
	if err != nil {
		return actionResult{}, err
	}
	if !r.AcceptsActions(a.ActedAt) {
		return results.FailureResult[actionOutcome, error](ErrRoundNotLive), nil
	}
	if err := s.repo.TouchActivity(ctx, db, roundID, a.ActedAt); err != nil {
		return actionResult{}, fmt.Errorf("failed to reset activity timer: %w", err)
	}
	anchor := a.ActedAt
	r.ActivityAnchorAt = &anchor
	return results.SuccessResult[actionOutcome, error](actionOutcome{action: a, round: r}), nil
}

// lockRound loads the round under a row lock. A missing round is a failure.
func (s *RoundService) lockRound(ctx context.Context, db bun.IDB, roundID uuid.UUID) (r *rounddomain.Round, fail error, err error) {
	r, err = s.repo.GetRoundForUpdate(ctx, db, roundID)
	if err != nil {
		if errors.Is(err, rounddb.ErrNotFound) {
			return nil, ErrRoundNotFound, nil
		}
		return nil, nil, fmt.Errorf("failed to load round: %w", err)
	}
	return r, nil, nil
}

func membershipFailure(err error) membershipResult {
	if err == nil {
		return membershipResult{}
	}
	return results.FailureResult[membership, error](err)
}
