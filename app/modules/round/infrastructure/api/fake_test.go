package roundapi

import (
	"context"
	"sync"
	"time"

	auditdb "github.com/Black-And-White-Club/lastword/app/modules/audit/infrastructure/repositories"
	roundservice "github.com/Black-And-White-Club/lastword/app/modules/round/application"
	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	userdb "github.com/Black-And-White-Club/lastword/app/modules/user/infrastructure/repositories"
	"github.com/google/uuid"
)

// ------------------------
// Fake Round Service
// ------------------------

type FakeRoundService struct {
	mu    sync.Mutex
	trace []string

	CreateTemplateFunc  func(ctx context.Context, t rounddomain.Template) (*rounddomain.Template, error)
	CreateRoundFunc     func(ctx context.Context, req roundservice.CreateRoundRequest) (*rounddomain.Round, error)
	GetRoundFunc        func(ctx context.Context, id uuid.UUID) (*rounddomain.Round, error)
	ServerTimeFunc      func(ctx context.Context) (time.Time, error)
	ListActiveFunc      func(ctx context.Context) ([]rounddomain.ActiveRoundView, error)
	LeaderboardFunc     func(ctx context.Context, roundID uuid.UUID) ([]rounddomain.RankedActor, error)
	JoinFunc            func(ctx context.Context, roundID uuid.UUID, userID string, spectator bool) (*rounddomain.Participant, error)
	RecordActionFunc    func(ctx context.Context, roundID uuid.UUID, userID, body string) (*rounddomain.Action, error)
	TickFunc            func(ctx context.Context) (roundevents.TickSummaryV1, error)
	ForceTransitionFunc func(ctx context.Context, roundID uuid.UUID, actor string) (*roundservice.AdvanceResult, error)
	AdvanceRoundFunc    func(ctx context.Context, roundID uuid.UUID) (*roundservice.AdvanceResult, error)
	ExportFunc          func(ctx context.Context, roundID uuid.UUID) ([]byte, error)
}

var _ roundservice.Service = (*FakeRoundService)(nil)

func NewFakeRoundService() *FakeRoundService {
	return &FakeRoundService{trace: []string{}}
}

func (f *FakeRoundService) record(step string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trace = append(f.trace, step)
}

func (f *FakeRoundService) Trace() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

func (f *FakeRoundService) CreateTemplate(ctx context.Context, t rounddomain.Template) (*rounddomain.Template, error) {
	f.record("CreateTemplate")
	if f.CreateTemplateFunc != nil {
		return f.CreateTemplateFunc(ctx, t)
	}
	t.ID = uuid.New()
	return &t, nil
}

func (f *FakeRoundService) GetTemplate(ctx context.Context, id uuid.UUID) (*rounddomain.Template, error) {
	f.record("GetTemplate")
	return &rounddomain.Template{ID: id}, nil
}

func (f *FakeRoundService) CreateRound(ctx context.Context, req roundservice.CreateRoundRequest) (*rounddomain.Round, error) {
	f.record("CreateRound")
	if f.CreateRoundFunc != nil {
		return f.CreateRoundFunc(ctx, req)
	}
	return &rounddomain.Round{ID: uuid.New(), TemplateID: req.TemplateID, Status: rounddomain.StatusScheduled}, nil
}

func (f *FakeRoundService) GetRound(ctx context.Context, id uuid.UUID) (*rounddomain.Round, error) {
	f.record("GetRound")
	if f.GetRoundFunc != nil {
		return f.GetRoundFunc(ctx, id)
	}
	return &rounddomain.Round{ID: id, Status: rounddomain.StatusWaiting}, nil
}

func (f *FakeRoundService) ServerTime(ctx context.Context) (time.Time, error) {
	f.record("ServerTime")
	if f.ServerTimeFunc != nil {
		return f.ServerTimeFunc(ctx)
	}
	return time.Time{}, nil
}

func (f *FakeRoundService) ListActiveRounds(ctx context.Context) ([]rounddomain.ActiveRoundView, error) {
	f.record("ListActiveRounds")
	if f.ListActiveFunc != nil {
		return f.ListActiveFunc(ctx)
	}
	return nil, nil
}

func (f *FakeRoundService) Leaderboard(ctx context.Context, roundID uuid.UUID) ([]rounddomain.RankedActor, error) {
	f.record("Leaderboard")
	if f.LeaderboardFunc != nil {
		return f.LeaderboardFunc(ctx, roundID)
	}
	return nil, nil
}

func (f *FakeRoundService) ListParticipants(ctx context.Context, roundID uuid.UUID) ([]*rounddomain.Participant, error) {
	f.record("ListParticipants")
	return nil, nil
}

func (f *FakeRoundService) ListWinners(ctx context.Context, roundID uuid.UUID) ([]rounddomain.Winner, error) {
	f.record("ListWinners")
	return nil, nil
}

func (f *FakeRoundService) Join(ctx context.Context, roundID uuid.UUID, userID string, spectator bool) (*rounddomain.Participant, error) {
	f.record("Join")
	if f.JoinFunc != nil {
		return f.JoinFunc(ctx, roundID, userID, spectator)
	}
	return &rounddomain.Participant{RoundID: roundID, UserID: userID, Spectator: spectator}, nil
}

func (f *FakeRoundService) Leave(ctx context.Context, roundID uuid.UUID, userID string) error {
	f.record("Leave")
	return nil
}

func (f *FakeRoundService) UpgradeSpectator(ctx context.Context, roundID uuid.UUID, userID string) (*rounddomain.Participant, error) {
	f.record("UpgradeSpectator")
	return &rounddomain.Participant{RoundID: roundID, UserID: userID}, nil
}

func (f *FakeRoundService) RecordAction(ctx context.Context, roundID uuid.UUID, userID, body string) (*rounddomain.Action, error) {
	f.record("RecordAction")
	if f.RecordActionFunc != nil {
		return f.RecordActionFunc(ctx, roundID, userID, body)
	}
	return &rounddomain.Action{Seq: 1, RoundID: roundID, UserID: userID, Body: body}, nil
}

func (f *FakeRoundService) Tick(ctx context.Context) (roundevents.TickSummaryV1, error) {
	f.record("Tick")
	if f.TickFunc != nil {
		return f.TickFunc(ctx)
	}
	return roundevents.TickSummaryV1{}, nil
}

func (f *FakeRoundService) AdvanceRound(ctx context.Context, roundID uuid.UUID) (*roundservice.AdvanceResult, error) {
	f.record("AdvanceRound")
	if f.AdvanceRoundFunc != nil {
		return f.AdvanceRoundFunc(ctx, roundID)
	}
	return &roundservice.AdvanceResult{Round: &rounddomain.Round{ID: roundID}}, nil
}

func (f *FakeRoundService) ForceTransition(ctx context.Context, roundID uuid.UUID, actor string) (*roundservice.AdvanceResult, error) {
	f.record("ForceTransition")
	if f.ForceTransitionFunc != nil {
		return f.ForceTransitionFunc(ctx, roundID, actor)
	}
	return &roundservice.AdvanceResult{Round: &rounddomain.Round{ID: roundID}}, nil
}

func (f *FakeRoundService) CancelRound(ctx context.Context, roundID uuid.UUID, actor, reason string) (*rounddomain.Round, error) {
	f.record("CancelRound")
	return &rounddomain.Round{ID: roundID, Status: rounddomain.StatusCancelled}, nil
}

func (f *FakeRoundService) Settle(ctx context.Context, roundID uuid.UUID) (*rounddomain.Settlement, error) {
	f.record("Settle")
	return &rounddomain.Settlement{}, nil
}

func (f *FakeRoundService) MaybeCreateNext(ctx context.Context, roundID uuid.UUID) (*rounddomain.Round, error) {
	f.record("MaybeCreateNext")
	return nil, nil
}

func (f *FakeRoundService) ExportSettlement(ctx context.Context, roundID uuid.UUID) ([]byte, error) {
	f.record("ExportSettlement")
	if f.ExportFunc != nil {
		return f.ExportFunc(ctx, roundID)
	}
	return []byte("xlsx"), nil
}

// ------------------------
// Fake collaborators
// ------------------------

type fakeWallet struct {
	balances map[string]int64
	keys     map[string]bool
}

var _ Wallet = (*fakeWallet)(nil)

func newFakeWallet() *fakeWallet {
	return &fakeWallet{balances: map[string]int64{}, keys: map[string]bool{}}
}

func (w *fakeWallet) Balance(_ context.Context, userID string) (int64, error) {
	return w.balances[userID], nil
}

func (w *fakeWallet) Deposit(_ context.Context, userID string, amount int64, key string) error {
	if w.keys[key] {
		return nil
	}
	w.keys[key] = true
	w.balances[userID] += amount
	return nil
}

type fakeStats struct{}

var _ Stats = fakeStats{}

func (fakeStats) GetStats(_ context.Context, userID string) (*userdb.PlayerStats, error) {
	return &userdb.PlayerStats{UserID: userID}, nil
}

func (fakeStats) TopPlayers(_ context.Context, limit int) ([]userdb.PlayerStats, error) {
	return []userdb.PlayerStats{{UserID: "u1", Wins: 3}}, nil
}

type fakeHistory struct{}

var _ History = fakeHistory{}

func (fakeHistory) History(_ context.Context, roundID uuid.UUID) ([]auditdb.Entry, error) {
	return []auditdb.Entry{{RoundID: roundID, Step: "open", FromStatus: "scheduled", ToStatus: "waiting", Actor: "system"}}, nil
}
