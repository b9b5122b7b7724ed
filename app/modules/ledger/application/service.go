package ledgerservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	ledgerdb "github.com/Black-And-White-Club/lastword/app/modules/ledger/infrastructure/repositories"
	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Service is the wallet collaborator. Every call runs on the caller's
// transaction when one is given, so credits roll back with it.
type Service struct {
	repo   ledgerdb.Repository
	db     *bun.DB
	logger *slog.Logger

	allowOverdraft bool
}

// NewService creates a ledger service.
func NewService(repo ledgerdb.Repository, db *bun.DB, logger *slog.Logger, allowOverdraft bool) *Service {
	return &Service{repo: repo, db: db, logger: logger, allowOverdraft: allowOverdraft}
}

func (s *Service) runInTx(ctx context.Context, db bun.IDB, fn func(ctx context.Context, db bun.IDB) error) error {
	if db != nil || s.db == nil {
		return fn(ctx, db)
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, tx)
	})
}

// Debit charges an entry fee. Replaying the same key is a no-op.
func (s *Service) Debit(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID string, amount int64, key string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return s.runInTx(ctx, db, func(ctx context.Context, db bun.IDB) error {
		if !s.allowOverdraft {
			if err := s.repo.LockAccount(ctx, db, userID); err != nil {
				return err
			}
			balance, err := s.repo.Balance(ctx, db, userID)
			if err != nil {
				return err
			}
			if balance < amount {
				return fmt.Errorf("%w: balance %d, need %d", ErrInsufficientFunds, balance, amount)
			}
		}
		return s.insert(ctx, db, &roundID, userID, ledgerdb.KindEntryFee, -amount, key)
	})
}

// Credit pays a prize or refund. Replaying the same key is a no-op.
func (s *Service) Credit(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID, kind string, amount int64, key string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return s.runInTx(ctx, db, func(ctx context.Context, db bun.IDB) error {
		return s.insert(ctx, db, &roundID, userID, kind, amount, key)
	})
}

// Deposit tops up a user's balance outside any round.
func (s *Service) Deposit(ctx context.Context, userID string, amount int64, key string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return s.insert(ctx, nil, nil, userID, ledgerdb.KindDeposit, amount, key)
}

// Balance returns the user's current balance.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	return s.repo.Balance(ctx, nil, userID)
}

// RoundEntries lists the ledger lines booked against a round.
func (s *Service) RoundEntries(ctx context.Context, db bun.IDB, roundID uuid.UUID) ([]ledgerdb.Entry, error) {
	return s.repo.ListByRound(ctx, db, roundID)
}

func (s *Service) insert(ctx context.Context, db bun.IDB, roundID *uuid.UUID, userID, kind string, amount int64, key string) error {
	applied, err := s.repo.Insert(ctx, db, &ledgerdb.Entry{
		UserID:         userID,
		RoundID:        roundID,
		Kind:           kind,
		Amount:         amount,
		IdempotencyKey: key,
	})
	if err != nil {
		return err
	}
	if !applied {
		s.logger.InfoContext(ctx, "Ledger entry already applied",
			attr.String("idempotency_key", key),
			attr.String("kind", kind),
		)
		return nil
	}
	s.logger.DebugContext(ctx, "Ledger entry applied",
		attr.String("user_id", userID),
		attr.String("kind", kind),
		attr.Int64("amount", amount),
	)
	return nil
}

// EntryKey builds the idempotency key for a round-scoped ledger line.
func EntryKey(roundID uuid.UUID, userID, kind, discriminator string) string {
	return fmt.Sprintf("round:%s:user:%s:%s:%s", roundID, userID, kind, discriminator)
}
