package auditdb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Entry is one lifecycle transition of a round.
type Entry struct {
	bun.BaseModel `bun:"table:round_audit_log,alias:al"`
	ID            int64          `bun:"id,pk,autoincrement" json:"id"`
	RoundID       uuid.UUID      `bun:"round_id,type:uuid,notnull" json:"round_id"`
	Step          string         `bun:"step,notnull" json:"step"`
	FromStatus    string         `bun:"from_status,notnull" json:"from_status"`
	ToStatus      string         `bun:"to_status,notnull" json:"to_status"`
	Actor         string         `bun:"actor,notnull" json:"actor"`
	Detail        map[string]any `bun:"detail,type:jsonb" json:"detail,omitempty"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:clock_timestamp()" json:"created_at"`
}

// Repository defines the contract for audit persistence.
type Repository interface {
	Append(ctx context.Context, db bun.IDB, e *Entry) error
	ListForRound(ctx context.Context, db bun.IDB, roundID uuid.UUID) ([]Entry, error)
}

// Impl implements the Repository interface using Bun ORM.
type Impl struct {
	db bun.IDB
}

// NewRepository creates a new audit repository.
func NewRepository(db bun.IDB) Repository {
	return &Impl{db: db}
}

func (r *Impl) resolveDB(db bun.IDB) bun.IDB {
	if db == nil {
		return r.db
	}
	return db
}

func (r *Impl) Append(ctx context.Context, db bun.IDB, e *Entry) error {
	db = r.resolveDB(db)
	if _, err := db.NewInsert().Model(e).Returning("id, created_at").Exec(ctx); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *Impl) ListForRound(ctx context.Context, db bun.IDB, roundID uuid.UUID) ([]Entry, error) {
	db = r.resolveDB(db)
	var entries []Entry
	err := db.NewSelect().
		Model(&entries).
		Where("round_id = ?", roundID).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}
