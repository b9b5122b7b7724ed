package userdb

import (
	"context"

	"github.com/uptrace/bun"
)

// Repository defines the contract for player stats persistence.
// Increments are applied in SQL so concurrent settlements never lose an update.
type Repository interface {
	IncrementGamesPlayed(ctx context.Context, db bun.IDB, userIDs []string) error
	IncrementWin(ctx context.Context, db bun.IDB, userID string, rankPoints int64, prize int64) error
	GetStats(ctx context.Context, db bun.IDB, userID string) (*PlayerStats, error)
	TopByRankPoints(ctx context.Context, db bun.IDB, limit int) ([]PlayerStats, error)
}
