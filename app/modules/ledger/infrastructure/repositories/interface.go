package ledgerdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Repository defines the contract for ledger persistence.
type Repository interface {
	// Insert appends e unless an entry with the same idempotency key exists.
	// applied is false for the duplicate case.
	Insert(ctx context.Context, db bun.IDB, e *Entry) (applied bool, err error)

	// Balance sums every entry for the user.
	Balance(ctx context.Context, db bun.IDB, userID string) (int64, error)

	// LockAccount serializes balance checks for one user until the transaction ends.
	LockAccount(ctx context.Context, db bun.IDB, userID string) error

	// ListByRound returns the round's ledger lines in insertion order.
	ListByRound(ctx context.Context, db bun.IDB, roundID uuid.UUID) ([]Entry, error)
}
