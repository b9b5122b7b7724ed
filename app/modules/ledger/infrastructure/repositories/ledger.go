package ledgerdb

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Impl implements the Repository interface using Bun ORM.
type Impl struct {
	db bun.IDB
}

// NewRepository creates a new ledger repository.
func NewRepository(db bun.IDB) Repository {
	return &Impl{db: db}
}

func (r *Impl) resolveDB(db bun.IDB) bun.IDB {
	if db == nil {
		return r.db
	}
	return db
}

func (r *Impl) Insert(ctx context.Context, db bun.IDB, e *Entry) (bool, error) {
	db = r.resolveDB(db)
	result, err := db.NewInsert().
		Model(e).
		On("CONFLICT (idempotency_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *Impl) Balance(ctx context.Context, db bun.IDB, userID string) (int64, error) {
	db = r.resolveDB(db)
	var balance int64
	err := db.NewSelect().
		Model((*Entry)(nil)).
		ColumnExpr("COALESCE(SUM(amount), 0)").
		Where("user_id = ?", userID).
		Scan(ctx, &balance)
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}

func (r *Impl) LockAccount(ctx context.Context, db bun.IDB, userID string) error {
	db = r.resolveDB(db)
	if _, err := db.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", "ledger:"+userID); err != nil {
		return fmt.Errorf("failed to lock ledger account: %w", err)
	}
	return nil
}

func (r *Impl) ListByRound(ctx context.Context, db bun.IDB, roundID uuid.UUID) ([]Entry, error) {
	db = r.resolveDB(db)
	var entries []Entry
	err := db.NewSelect().
		Model(&entries).
		Where("round_id = ?", roundID).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}
