package roundhandlers

import (
	"context"
	"time"

	roundservice "github.com/Black-And-White-Club/lastword/app/modules/round/application"
	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	"github.com/google/uuid"
)

// ------------------------
// Fake Round Service
// ------------------------

type FakeRoundService struct {
	trace []string

	TickFunc            func(ctx context.Context) (roundevents.TickSummaryV1, error)
	AdvanceRoundFunc    func(ctx context.Context, roundID uuid.UUID) (*roundservice.AdvanceResult, error)
	ForceTransitionFunc func(ctx context.Context, roundID uuid.UUID, actor string) (*roundservice.AdvanceResult, error)
}

func NewFakeRoundService() *FakeRoundService {
	return &FakeRoundService{trace: []string{}}
}

func (f *FakeRoundService) record(step string) {
	f.trace = append(f.trace, step)
}

func (f *FakeRoundService) Trace() []string {
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
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

// --- unused by the handlers ---

func (f *FakeRoundService) CreateTemplate(context.Context, rounddomain.Template) (*rounddomain.Template, error) {
	return nil, nil
}
func (f *FakeRoundService) GetTemplate(context.Context, uuid.UUID) (*rounddomain.Template, error) {
	return nil, nil
}
func (f *FakeRoundService) CreateRound(context.Context, roundservice.CreateRoundRequest) (*rounddomain.Round, error) {
	return nil, nil
}
func (f *FakeRoundService) GetRound(context.Context, uuid.UUID) (*rounddomain.Round, error) {
	return nil, nil
}
func (f *FakeRoundService) ServerTime(context.Context) (time.Time, error) { return time.Time{}, nil }
func (f *FakeRoundService) ListActiveRounds(context.Context) ([]rounddomain.ActiveRoundView, error) {
	return nil, nil
}
func (f *FakeRoundService) Leaderboard(context.Context, uuid.UUID) ([]rounddomain.RankedActor, error) {
	return nil, nil
}
func (f *FakeRoundService) ListParticipants(context.Context, uuid.UUID) ([]*rounddomain.Participant, error) {
	return nil, nil
}
func (f *FakeRoundService) ListWinners(context.Context, uuid.UUID) ([]rounddomain.Winner, error) {
	return nil, nil
}
func (f *FakeRoundService) Join(context.Context, uuid.UUID, string, bool) (*rounddomain.Participant, error) {
	return nil, nil
}
func (f *FakeRoundService) Leave(context.Context, uuid.UUID, string) error { return nil }
func (f *FakeRoundService) UpgradeSpectator(context.Context, uuid.UUID, string) (*rounddomain.Participant, error) {
	return nil, nil
}
func (f *FakeRoundService) RecordAction(context.Context, uuid.UUID, string, string) (*rounddomain.Action, error) {
	return nil, nil
}
func (f *FakeRoundService) CancelRound(context.Context, uuid.UUID, string, string) (*rounddomain.Round, error) {
	return nil, nil
}
func (f *FakeRoundService) Settle(context.Context, uuid.UUID) (*rounddomain.Settlement, error) {
	return nil, nil
}
func (f *FakeRoundService) MaybeCreateNext(context.Context, uuid.UUID) (*rounddomain.Round, error) {
	return nil, nil
}
func (f *FakeRoundService) ExportSettlement(context.Context, uuid.UUID) ([]byte, error) {
	return nil, nil
}

var _ roundservice.Service = (*FakeRoundService)(nil)
