package ledgerdb

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Entry kinds.
const (
	KindDeposit  = "deposit"
	KindEntryFee = "entry_fee"
	KindPrize    = "prize"
	KindRefund   = "refund"
)

// Entry is one append-only ledger line. Debits carry a negative amount.
type Entry struct {
	bun.BaseModel  `bun:"table:ledger_entries,alias:le"`
	ID             int64      `bun:"id,pk,autoincrement"`
	UserID         string     `bun:"user_id,notnull"`
	RoundID        *uuid.UUID `bun:"round_id,type:uuid,nullzero"`
	Kind           string     `bun:"kind,notnull"`
	Amount         int64      `bun:"amount,notnull"`
	IdempotencyKey string     `bun:"idempotency_key,notnull,unique"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
