package userservice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func TestStatsService(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name      string
		setupRepo func(*FakeStatsRepository)
		run       func(*StatsService) error
		wantErr   bool
		check     func(*testing.T, *StatsService)
	}{
		{
			name: "win and games accumulate",
			run: func(s *StatsService) error {
				if err := s.RecordGamesPlayed(ctx, nil, []string{"ana", "ben"}); err != nil {
					return err
				}
				return s.RecordWin(ctx, nil, "ana", 50, 4500)
			},
			check: func(t *testing.T, s *StatsService) {
				ana, err := s.GetStats(ctx, "ana")
				require.NoError(t, err)
				assert.Equal(t, 1, ana.Wins)
				assert.Equal(t, int64(50), ana.RankPoints)
				assert.Equal(t, 1, ana.GamesPlayed)
				assert.Equal(t, int64(4500), ana.PrizeTotal)

				ben, err := s.GetStats(ctx, "ben")
				require.NoError(t, err)
				assert.Zero(t, ben.Wins)
				assert.Equal(t, 1, ben.GamesPlayed)
			},
		},
		{
			name: "unknown user reads as zero",
			run:  func(*StatsService) error { return nil },
			check: func(t *testing.T, s *StatsService) {
				st, err := s.GetStats(ctx, "nobody")
				require.NoError(t, err)
				assert.Equal(t, "nobody", st.UserID)
				assert.Zero(t, st.GamesPlayed)
			},
		},
		{
			name: "store failure surfaces",
			setupRepo: func(f *FakeStatsRepository) {
				f.IncrementWinFunc = func(context.Context, bun.IDB, string, int64, int64) error {
					return errors.New("deadlock detected")
				}
			},
			run:     func(s *StatsService) error { return s.RecordWin(ctx, nil, "ana", 10, 100) },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewFakeStatsRepository()
			if tt.setupRepo != nil {
				tt.setupRepo(repo)
			}
			s := NewStatsService(repo, logger)

			err := tt.run(s)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, s)
			}
		})
	}
}
