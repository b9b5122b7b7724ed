package userservice

import (
	"context"

	userdb "github.com/Black-And-White-Club/lastword/app/modules/user/infrastructure/repositories"
	"github.com/uptrace/bun"
)

// FakeStatsRepository provides a programmable stub for userdb.Repository.
type FakeStatsRepository struct {
	trace []string
	stats map[string]*userdb.PlayerStats

	IncrementGamesPlayedFunc func(ctx context.Context, db bun.IDB, userIDs []string) error
	IncrementWinFunc         func(ctx context.Context, db bun.IDB, userID string, rankPoints, prize int64) error
}

func NewFakeStatsRepository() *FakeStatsRepository {
	return &FakeStatsRepository{stats: map[string]*userdb.PlayerStats{}}
}

var _ userdb.Repository = (*FakeStatsRepository)(nil)

func (f *FakeStatsRepository) record(step string) { f.trace = append(f.trace, step) }

func (f *FakeStatsRepository) Trace() []string {
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

func (f *FakeStatsRepository) row(userID string) *userdb.PlayerStats {
	s, ok := f.stats[userID]
	if !ok {
		s = &userdb.PlayerStats{UserID: userID}
		f.stats[userID] = s
	}
	return s
}

func (f *FakeStatsRepository) IncrementGamesPlayed(ctx context.Context, db bun.IDB, userIDs []string) error {
	f.record("IncrementGamesPlayed")
	if f.IncrementGamesPlayedFunc != nil {
		return f.IncrementGamesPlayedFunc(ctx, db, userIDs)
	}
	for _, id := range userIDs {
		f.row(id).GamesPlayed++
	}
	return nil
}

func (f *FakeStatsRepository) IncrementWin(ctx context.Context, db bun.IDB, userID string, rankPoints, prize int64) error {
	f.record("IncrementWin")
	if f.IncrementWinFunc != nil {
		return f.IncrementWinFunc(ctx, db, userID, rankPoints, prize)
	}
	s := f.row(userID)
	s.Wins++
	s.RankPoints += rankPoints
	s.PrizeTotal += prize
	return nil
}

func (f *FakeStatsRepository) GetStats(ctx context.Context, db bun.IDB, userID string) (*userdb.PlayerStats, error) {
	f.record("GetStats")
	s, ok := f.stats[userID]
	if !ok {
		return nil, userdb.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *FakeStatsRepository) TopByRankPoints(ctx context.Context, db bun.IDB, limit int) ([]userdb.PlayerStats, error) {
	f.record("TopByRankPoints")
	var out []userdb.PlayerStats
	for _, s := range f.stats {
		out = append(out, *s)
	}
	return out, nil
}
