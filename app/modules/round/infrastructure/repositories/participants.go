package rounddb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AddParticipant inserts a membership row. The (round_id, user_id) index rejects duplicates.
func (r *Impl) AddParticipant(ctx context.Context, db bun.IDB, p *rounddomain.Participant) error {
	db = r.resolveDB(db)
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	model := &Participant{
		ID:             p.ID,
		RoundID:        p.RoundID,
		UserID:         p.UserID,
		Spectator:      p.Spectator,
		JoinedAt:       p.JoinedAt,
		PaidAmount:     p.PaidAmount,
		RefundEligible: p.RefundEligible,
	}
	if _, err := db.NewInsert().Model(model).Returning("joined_at").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyJoined
		}
		return fmt.Errorf("failed to add participant: %w", err)
	}
	p.JoinedAt = model.JoinedAt
	return nil
}

// GetParticipant retrieves one membership.
func (r *Impl) GetParticipant(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID string) (*rounddomain.Participant, error) {
	db = r.resolveDB(db)
	model := new(Participant)
	err := db.NewSelect().
		Model(model).
		Where("round_id = ?", roundID).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return model.toDomain(), nil
}

// RemoveParticipant deletes a membership.
func (r *Impl) RemoveParticipant(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID string) error {
	db = r.resolveDB(db)
	result, err := db.NewDelete().
		Model((*Participant)(nil)).
		Where("round_id = ?", roundID).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

// UpgradeSpectator flips a spectator to a paying participant. The upgrade is one-way.
func (r *Impl) UpgradeSpectator(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID string, paid int64) (*rounddomain.Participant, error) {
	db = r.resolveDB(db)
	model := new(Participant)
	result, err := db.NewUpdate().
		Model(model).
		Set("spectator = FALSE").
		Set("paid_amount = ?", paid).
		Set("refund_eligible = ?", paid > 0).
		Where("round_id = ?", roundID).
		Where("user_id = ?", userID).
		Where("spectator").
		Returning("*").
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRowsAffected
		}
		return nil, fmt.Errorf("failed to upgrade spectator: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, ErrNoRowsAffected
	}
	return model.toDomain(), nil
}

// ListParticipants returns memberships in join order.
func (r *Impl) ListParticipants(ctx context.Context, db bun.IDB, roundID uuid.UUID) ([]*rounddomain.Participant, error) {
	db = r.resolveDB(db)
	var models []Participant
	err := db.NewSelect().
		Model(&models).
		Where("round_id = ?", roundID).
		OrderExpr("joined_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	out := make([]*rounddomain.Participant, 0, len(models))
	for i := range models {
		out = append(out, models[i].toDomain())
	}
	return out, nil
}

// MarkRefunded stamps a refund once; a second call affects nothing.
func (r *Impl) MarkRefunded(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID string, at time.Time) error {
	db = r.resolveDB(db)
	_, err := db.NewUpdate().
		Model((*Participant)(nil)).
		Set("refunded_at = ?", at).
		Where("round_id = ?", roundID).
		Where("user_id = ?", userID).
		Where("refunded_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark refund: %w", err)
	}
	return nil
}

// AppendAction writes one action. The store assigns both the sequence and the timestamp,
// so the log order is the store's order.
func (r *Impl) AppendAction(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID, body string) (*rounddomain.Action, error) {
	db = r.resolveDB(db)
	model := &Action{RoundID: roundID, UserID: userID, Body: body}
	if _, err := db.NewInsert().Model(model).Returning("seq, acted_at").Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to append action: %w", err)
	}
	a := model.toDomain()
	return &a, nil
}

// ListActions returns the round's action log in append order.
func (r *Impl) ListActions(ctx context.Context, db bun.IDB, roundID uuid.UUID) ([]rounddomain.Action, error) {
	db = r.resolveDB(db)
	var models []Action
	err := db.NewSelect().
		Model(&models).
		Where("round_id = ?", roundID).
		OrderExpr("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	out := make([]rounddomain.Action, 0, len(models))
	for i := range models {
		out = append(out, models[i].toDomain())
	}
	return out, nil
}

// TouchActivity moves the activity anchor forward. It never moves it back.
func (r *Impl) TouchActivity(ctx context.Context, db bun.IDB, roundID uuid.UUID, at time.Time) error {
	db = r.resolveDB(db)
	result, err := db.NewUpdate().
		Model((*Round)(nil)).
		Set("activity_anchor_at = GREATEST(COALESCE(activity_anchor_at, live_start_at), ?)", at).
		Set("updated_at = clock_timestamp()").
		Where("id = ?", roundID).
		Where("status IN (?)", bun.In([]string{string(rounddomain.StatusLive), string(rounddomain.StatusEnding)})).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to touch activity: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// InsertWinners writes the winner set. The (round_id, position) key makes a second set fail.
func (r *Impl) InsertWinners(ctx context.Context, db bun.IDB, winners []rounddomain.Winner) error {
	if len(winners) == 0 {
		return nil
	}
	db = r.resolveDB(db)
	models := make([]Winner, 0, len(winners))
	for _, w := range winners {
		models = append(models, Winner{
			RoundID:     w.RoundID,
			Position:    w.Position,
			UserID:      w.UserID,
			PrizeAmount: w.PrizeAmount,
		})
	}
	if _, err := db.NewInsert().Model(&models).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert winners: %w", err)
	}
	return nil
}

// ListWinners returns winners by position.
func (r *Impl) ListWinners(ctx context.Context, db bun.IDB, roundID uuid.UUID) ([]rounddomain.Winner, error) {
	db = r.resolveDB(db)
	var models []Winner
	err := db.NewSelect().
		Model(&models).
		Where("round_id = ?", roundID).
		OrderExpr("position ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list winners: %w", err)
	}
	out := make([]rounddomain.Winner, 0, len(models))
	for i := range models {
		out = append(out, models[i].toDomain())
	}
	return out, nil
}
