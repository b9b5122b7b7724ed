package userdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
)

// Impl implements the Repository interface using Bun ORM.
type Impl struct {
	db bun.IDB
}

// NewRepository creates a new player stats repository.
func NewRepository(db bun.IDB) Repository {
	return &Impl{db: db}
}

func (r *Impl) resolveDB(db bun.IDB) bun.IDB {
	if db == nil {
		return r.db
	}
	return db
}

// IncrementGamesPlayed bumps games_played for every user, creating rows as needed.
func (r *Impl) IncrementGamesPlayed(ctx context.Context, db bun.IDB, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	db = r.resolveDB(db)
	rows := make([]PlayerStats, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, PlayerStats{UserID: id, GamesPlayed: 1})
	}
	_, err := db.NewInsert().
		Model(&rows).
		On("CONFLICT (user_id) DO UPDATE").
		Set("games_played = ps.games_played + 1").
		Set("updated_at = current_timestamp").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to increment games played: %w", err)
	}
	return nil
}

// IncrementWin records one win with its rank points and prize.
func (r *Impl) IncrementWin(ctx context.Context, db bun.IDB, userID string, rankPoints int64, prize int64) error {
	db = r.resolveDB(db)
	row := &PlayerStats{UserID: userID, Wins: 1, RankPoints: rankPoints, PrizeTotal: prize}
	_, err := db.NewInsert().
		Model(row).
		On("CONFLICT (user_id) DO UPDATE").
		Set("wins = ps.wins + 1").
		Set("rank_points = ps.rank_points + EXCLUDED.rank_points").
		Set("prize_total = ps.prize_total + EXCLUDED.prize_total").
		Set("updated_at = current_timestamp").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record win: %w", err)
	}
	return nil
}

// GetStats returns the user's aggregates.
func (r *Impl) GetStats(ctx context.Context, db bun.IDB, userID string) (*PlayerStats, error) {
	db = r.resolveDB(db)
	stats := new(PlayerStats)
	err := db.NewSelect().Model(stats).Where("user_id = ?", userID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get player stats: %w", err)
	}
	return stats, nil
}

// TopByRankPoints returns the highest ranked players.
func (r *Impl) TopByRankPoints(ctx context.Context, db bun.IDB, limit int) ([]PlayerStats, error) {
	db = r.resolveDB(db)
	var stats []PlayerStats
	err := db.NewSelect().
		Model(&stats).
		OrderExpr("rank_points DESC, wins DESC, user_id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list top players: %w", err)
	}
	return stats, nil
}
