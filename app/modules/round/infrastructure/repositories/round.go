package rounddb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Impl implements the Repository interface using Bun ORM.
type Impl struct {
	db bun.IDB
}

// NewRepository creates a new round repository.
func NewRepository(db bun.IDB) Repository {
	return &Impl{db: db}
}

func (r *Impl) resolveDB(db bun.IDB) bun.IDB {
	if db == nil {
		return r.db
	}
	return db
}

// Now reads clock_timestamp() rather than now() so the value advances inside a transaction.
func (r *Impl) Now(ctx context.Context, db bun.IDB) (time.Time, error) {
	db = r.resolveDB(db)
	var now time.Time
	if err := db.NewRaw("SELECT clock_timestamp()").Scan(ctx, &now); err != nil {
		return time.Time{}, fmt.Errorf("failed to read store clock: %w", err)
	}
	return now.UTC(), nil
}

// CreateTemplate inserts a new template, assigning an id when missing.
func (r *Impl) CreateTemplate(ctx context.Context, db bun.IDB, t *rounddomain.Template) error {
	db = r.resolveDB(db)
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	model := templateFromDomain(t)
	if _, err := db.NewInsert().Model(model).Returning("created_at").Exec(ctx); err != nil {
		return fmt.Errorf("failed to create round template: %w", err)
	}
	t.CreatedAt = model.CreatedAt
	return nil
}

// GetTemplate retrieves a template by id.
func (r *Impl) GetTemplate(ctx context.Context, db bun.IDB, id uuid.UUID) (*rounddomain.Template, error) {
	db = r.resolveDB(db)
	model := new(Template)
	err := db.NewSelect().Model(model).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get round template: %w", err)
	}
	return model.toDomain(), nil
}

// CreateRound inserts a round. A second successor for the same predecessor
// hits the unique index and returns ErrDuplicateSuccessor.
func (r *Impl) CreateRound(ctx context.Context, db bun.IDB, round *rounddomain.Round) error {
	db = r.resolveDB(db)
	if round.ID == uuid.Nil {
		round.ID = uuid.New()
	}
	model := roundFromDomain(round)
	_, err := db.NewInsert().Model(model).Returning("created_at, updated_at").Exec(ctx)
	if err != nil {
		if round.PredecessorID != nil && isUniqueViolation(err) {
			return ErrDuplicateSuccessor
		}
		return fmt.Errorf("failed to create round: %w", err)
	}
	round.CreatedAt = model.CreatedAt
	round.UpdatedAt = model.UpdatedAt
	return nil
}

// GetRound retrieves a round by id.
func (r *Impl) GetRound(ctx context.Context, db bun.IDB, id uuid.UUID) (*rounddomain.Round, error) {
	return r.getRound(ctx, r.resolveDB(db), id, false)
}

// GetRoundForUpdate retrieves a round and holds a row lock for the rest of the transaction.
func (r *Impl) GetRoundForUpdate(ctx context.Context, db bun.IDB, id uuid.UUID) (*rounddomain.Round, error) {
	return r.getRound(ctx, r.resolveDB(db), id, true)
}

func (r *Impl) getRound(ctx context.Context, db bun.IDB, id uuid.UUID, lock bool) (*rounddomain.Round, error) {
	model := new(Round)
	q := db.NewSelect().Model(model).Where("id = ?", id)
	if lock {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return model.toDomain()
}

// CompareAndTransition is the only path that changes a round's status.
func (r *Impl) CompareAndTransition(
	ctx context.Context,
	db bun.IDB,
	id uuid.UUID,
	expected, next rounddomain.Status,
	fields rounddomain.TransitionFields,
) (*rounddomain.Round, error) {
	db = r.resolveDB(db)
	if !rounddomain.CanTransition(expected, next) {
		return nil, fmt.Errorf("illegal transition %s -> %s: %w", expected, next, ErrTransitionConflict)
	}

	model := new(Round)
	q := db.NewUpdate().
		Model(model).
		Set("status = ?", string(next)).
		Set("updated_at = clock_timestamp()").
		Where("id = ?", id).
		Where("status = ?", string(expected))

	if fields.EntryCloseAt != nil {
		q = q.Set("entry_close_at = ?", *fields.EntryCloseAt)
	}
	if fields.LiveStartAt != nil {
		q = q.Set("live_start_at = ?", *fields.LiveStartAt)
	}
	if fields.LiveEndAt != nil {
		q = q.Set("live_end_at = ?", *fields.LiveEndAt)
	}
	if fields.ActivityAnchorAt != nil {
		q = q.Set("activity_anchor_at = ?", *fields.ActivityAnchorAt)
	}
	if fields.ResetCount != nil {
		q = q.Set("reset_count = ?", *fields.ResetCount).
			Where("reset_count = ?", *fields.ResetCount-1)
	}
	if fields.EndedAt != nil {
		q = q.Set("ended_at = ?", *fields.EndedAt)
	}
	if fields.EndReason != nil {
		q = q.Set("end_reason = ?", string(*fields.EndReason))
	}
	if fields.CancelledAt != nil {
		q = q.Set("cancelled_at = ?", *fields.CancelledAt)
	}
	if fields.SettledAt != nil {
		q = q.Set("settled_at = ?", *fields.SettledAt)
	}
	if fields.Settlement != nil {
		raw, err := json.Marshal(fields.Settlement)
		if err != nil {
			return nil, fmt.Errorf("failed to encode settlement: %w", err)
		}
		q = q.Set("settlement = ?::jsonb", string(raw))
	}

	result, err := q.Returning("*").Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransitionConflict
		}
		return nil, fmt.Errorf("failed to transition round: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, ErrTransitionConflict
	}
	return model.toDomain()
}

// IncrementParticipant atomically bumps the participant count and pool. Only
// rounds still taking entries are touched.
func (r *Impl) IncrementParticipant(ctx context.Context, db bun.IDB, id uuid.UUID, feeDelta int64) (*rounddomain.Round, error) {
	return r.adjustParticipants(ctx, r.resolveDB(db), id, 1, feeDelta)
}

// DecrementParticipant reverses IncrementParticipant for a participant who left.
func (r *Impl) DecrementParticipant(ctx context.Context, db bun.IDB, id uuid.UUID, feeDelta int64) (*rounddomain.Round, error) {
	return r.adjustParticipants(ctx, r.resolveDB(db), id, -1, -feeDelta)
}

func (r *Impl) adjustParticipants(ctx context.Context, db bun.IDB, id uuid.UUID, count int, fee int64) (*rounddomain.Round, error) {
	model := new(Round)
	result, err := db.NewUpdate().
		Model(model).
		Set("participant_count = participant_count + ?", count).
		Set("pool_value = pool_value + ?", fee).
		Set("updated_at = clock_timestamp()").
		Where("id = ?", id).
		Where("status IN (?)", bun.In([]string{string(rounddomain.StatusWaiting), string(rounddomain.StatusOpening)})).
		Where("participant_count + ? >= 0", count).
		Where("pool_value + ? >= 0", fee).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRowsAffected
		}
		return nil, fmt.Errorf("failed to adjust participant count: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, ErrNoRowsAffected
	}
	return model.toDomain()
}

// activityDeadlineExpr mirrors Round.ActivityDeadline: the anchor plus the window,
// capped at live_end_at. A zero window means only live_end_at counts.
const activityDeadlineExpr = `CASE WHEN activity_window_ms <= 0 THEN live_end_at
	ELSE LEAST(COALESCE(activity_anchor_at, live_start_at) + activity_window_ms * INTERVAL '1 millisecond', live_end_at) END`

// ListRoundsNeedingWork returns rounds whose next timer is due at now. Live and
// ending rows are filtered by their activity deadline and, for live, the
// ending warning, so long-running rounds that are not due never fill a batch.
func (r *Impl) ListRoundsNeedingWork(ctx context.Context, db bun.IDB, now time.Time, endingWarning time.Duration, limit int) ([]*rounddomain.Round, error) {
	db = r.resolveDB(db)
	var models []Round
	err := db.NewSelect().
		Model(&models).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				WhereOr("status = ? AND entry_open_at <= ?", string(rounddomain.StatusScheduled), now).
				WhereOr("status = ? AND LEAST(COALESCE(entry_close_at, live_start_at), live_start_at) <= ?", string(rounddomain.StatusWaiting), now).
				WhereOr("status = ? AND live_start_at <= ?", string(rounddomain.StatusOpening), now).
				WhereOr("status = ? AND (("+activityDeadlineExpr+") <= ? OR live_end_at - ? * INTERVAL '1 millisecond' <= ?)",
					string(rounddomain.StatusLive), now, endingWarning.Milliseconds(), now).
				WhereOr("status = ? AND ("+activityDeadlineExpr+") <= ?", string(rounddomain.StatusEnding), now).
				WhereOr("status = ?", string(rounddomain.StatusEnded))
		}).
		OrderExpr("updated_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds needing work: %w", err)
	}
	return roundsToDomain(models)
}

// ListUnscheduledSuccessors finds finished recurring rounds whose successor was never
// created, skipping templates that already have an unfinished round.
func (r *Impl) ListUnscheduledSuccessors(ctx context.Context, db bun.IDB, limit int) ([]*rounddomain.Round, error) {
	db = r.resolveDB(db)
	var models []Round
	err := db.NewSelect().
		Model(&models).
		Join("JOIN round_templates AS rt ON rt.id = r.template_id").
		Where("r.status IN (?)", bun.In([]string{string(rounddomain.StatusSettled), string(rounddomain.StatusCancelled)})).
		Where("r.recurrence_type <> ?", string(rounddomain.RecurrenceNone)).
		Where("rt.active").
		Where("NOT EXISTS (SELECT 1 FROM rounds AS s WHERE s.predecessor_id = r.id)").
		Where("NOT EXISTS (SELECT 1 FROM rounds AS o WHERE o.template_id = r.template_id AND o.status NOT IN (?))",
			bun.In([]string{string(rounddomain.StatusSettled), string(rounddomain.StatusCancelled)})).
		OrderExpr("r.updated_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list unscheduled successors: %w", err)
	}
	return roundsToDomain(models)
}

// ListActiveRounds returns every round that has not settled or been cancelled.
func (r *Impl) ListActiveRounds(ctx context.Context, db bun.IDB) ([]*rounddomain.Round, error) {
	db = r.resolveDB(db)
	var models []Round
	err := db.NewSelect().
		Model(&models).
		Where("status NOT IN (?)", bun.In([]string{string(rounddomain.StatusSettled), string(rounddomain.StatusCancelled)})).
		OrderExpr("live_start_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rounds: %w", err)
	}
	return roundsToDomain(models)
}

// FindOpenSuccessor returns a non-terminal round spawned from the template, if any.
func (r *Impl) FindOpenSuccessor(ctx context.Context, db bun.IDB, templateID uuid.UUID) (*rounddomain.Round, error) {
	db = r.resolveDB(db)
	model := new(Round)
	err := db.NewSelect().
		Model(model).
		Where("template_id = ?", templateID).
		Where("status NOT IN (?)", bun.In([]string{string(rounddomain.StatusSettled), string(rounddomain.StatusCancelled)})).
		OrderExpr("live_start_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find open successor: %w", err)
	}
	return model.toDomain()
}
