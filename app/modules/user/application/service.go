package userservice

import (
	"context"
	"errors"
	"log/slog"

	userdb "github.com/Black-And-White-Club/lastword/app/modules/user/infrastructure/repositories"
	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/uptrace/bun"
)

// StatsService is the identity collaborator: it owns player aggregates.
type StatsService struct {
	repo   userdb.Repository
	logger *slog.Logger
}

// NewStatsService creates a StatsService.
func NewStatsService(repo userdb.Repository, logger *slog.Logger) *StatsService {
	return &StatsService{repo: repo, logger: logger}
}

// RecordGamesPlayed counts one game for every paid participant of a settled round.
func (s *StatsService) RecordGamesPlayed(ctx context.Context, db bun.IDB, userIDs []string) error {
	if err := s.repo.IncrementGamesPlayed(ctx, db, userIDs); err != nil {
		s.logger.ErrorContext(ctx, "Failed to record games played",
			attr.Int("users", len(userIDs)),
			attr.Error(err),
		)
		return err
	}
	return nil
}

// RecordWin adds a win, its rank points and the prize to the user's totals.
func (s *StatsService) RecordWin(ctx context.Context, db bun.IDB, userID string, rankPoints int, prize int64) error {
	if err := s.repo.IncrementWin(ctx, db, userID, int64(rankPoints), prize); err != nil {
		s.logger.ErrorContext(ctx, "Failed to record win",
			attr.String("user_id", userID),
			attr.Error(err),
		)
		return err
	}
	return nil
}

// GetStats returns a user's totals; users who never played get zeroes.
func (s *StatsService) GetStats(ctx context.Context, userID string) (*userdb.PlayerStats, error) {
	stats, err := s.repo.GetStats(ctx, nil, userID)
	if errors.Is(err, userdb.ErrNotFound) {
		return &userdb.PlayerStats{UserID: userID}, nil
	}
	return stats, err
}

// TopPlayers returns the rank points table.
func (s *StatsService) TopPlayers(ctx context.Context, limit int) ([]userdb.PlayerStats, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.TopByRankPoints(ctx, nil, limit)
}
