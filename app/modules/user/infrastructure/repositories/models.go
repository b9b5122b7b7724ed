package userdb

import (
	"time"

	"github.com/uptrace/bun"
)

// PlayerStats holds a user's lifetime contest aggregates.
type PlayerStats struct {
	bun.BaseModel `bun:"table:player_stats,alias:ps"`
	UserID        string    `bun:"user_id,pk" json:"user_id"`
	Wins          int       `bun:"wins,notnull" json:"wins"`
	RankPoints    int64     `bun:"rank_points,notnull" json:"rank_points"`
	GamesPlayed   int       `bun:"games_played,notnull" json:"games_played"`
	PrizeTotal    int64     `bun:"prize_total,notnull" json:"prize_total"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}
