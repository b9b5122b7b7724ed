//go:build integration

package roundintegrationtests

import (
	"context"
	"sync"
	"testing"
	"time"

	auditservice "github.com/Black-And-White-Club/lastword/app/modules/audit/application"
	auditdb "github.com/Black-And-White-Club/lastword/app/modules/audit/infrastructure/repositories"
	ledgerservice "github.com/Black-And-White-Club/lastword/app/modules/ledger/application"
	ledgerdb "github.com/Black-And-White-Club/lastword/app/modules/ledger/infrastructure/repositories"
	roundservice "github.com/Black-And-White-Club/lastword/app/modules/round/application"
	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	rounddb "github.com/Black-And-White-Club/lastword/app/modules/round/infrastructure/repositories"
	userservice "github.com/Black-And-White-Club/lastword/app/modules/user/application"
	userdb "github.com/Black-And-White-Club/lastword/app/modules/user/infrastructure/repositories"
	"github.com/Black-And-White-Club/lastword/integration_tests/testutils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/trace/noop"
)

var gen = testutils.NewTestDataGenerator()

// RoundTestDeps is a service wired to the real store.
type RoundTestDeps struct {
	Ctx     context.Context
	Env     *testutils.TestEnvironment
	Repo    rounddb.Repository
	Ledger  *ledgerservice.Service
	Service *roundservice.RoundService
}

// SetupTestRoundService builds the service over the shared database. wallet
// overrides the ledger as the service's wallet when set.
func SetupTestRoundService(t *testing.T, wallet roundservice.Wallet) RoundTestDeps {
	t.Helper()
	env := GetTestEnv(t)

	repo := rounddb.NewRepository(env.DB)
	ledger := ledgerservice.NewService(ledgerdb.NewRepository(env.DB), env.DB, env.Logger, false)
	if wallet == nil {
		wallet = ledger
	}
	svc := roundservice.NewRoundService(
		repo,
		roundservice.Ports{
			Wallet:   wallet,
			Identity: userservice.NewStatsService(userdb.NewRepository(env.DB), env.Logger),
			Audit:    auditservice.NewService(auditdb.NewRepository(env.DB), env.Logger),
		},
		roundservice.DefaultConfig(),
		env.Logger,
		nil,
		noop.NewTracerProvider().Tracer("test"),
		env.DB,
	)
	return RoundTestDeps{Ctx: env.Ctx, Env: env, Repo: repo, Ledger: ledger, Service: svc}
}

func testTemplate() rounddomain.Template {
	return rounddomain.Template{
		Name:              gen.RoundName(),
		EntryFee:          100,
		CommissionRate:    decimal.RequireFromString("0.10"),
		WinnerCount:       1,
		PrizeDistribution: []int{100},
		MinParticipants:   2,
		QuorumPolicy:      rounddomain.QuorumCancel,
		EntryLead:         30 * time.Minute,
		LiveDuration:      time.Hour,
		ActivityWindow:    10 * time.Minute,
		RecurrenceType:    rounddomain.RecurrenceNone,
		Active:            true,
	}
}

// createRound stores a template and a round starting an hour from now.
func createRound(t *testing.T, deps RoundTestDeps, tmpl rounddomain.Template) *rounddomain.Round {
	t.Helper()
	created, err := deps.Service.CreateTemplate(deps.Ctx, tmpl)
	require.NoError(t, err)

	r, err := deps.Service.CreateRound(deps.Ctx, roundservice.CreateRoundRequest{
		TemplateID: created.ID,
		StartsAt:   time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		CreatedBy:  "operator",
	})
	require.NoError(t, err)
	require.Equal(t, rounddomain.StatusScheduled, r.Status)
	return r
}

func fund(t *testing.T, deps RoundTestDeps, userID string, amount int64) {
	t.Helper()
	require.NoError(t, deps.Ledger.Deposit(deps.Ctx, userID, amount, "seed:"+userID+":"+uuid.NewString()))
}

// forceUntil drives the round forward until it reaches want.
func forceUntil(t *testing.T, deps RoundTestDeps, roundID uuid.UUID, want rounddomain.Status) *rounddomain.Round {
	t.Helper()
	for range 6 {
		r, err := deps.Service.GetRound(deps.Ctx, roundID)
		require.NoError(t, err)
		if r.Status == want {
			return r
		}
		_, err = deps.Service.ForceTransition(deps.Ctx, roundID, "operator")
		require.NoError(t, err)
	}
	t.Fatalf("round %s never reached %s", roundID, want)
	return nil
}

// flakyWallet fails credits while failing is set.
type flakyWallet struct {
	roundservice.Wallet

	mu      sync.Mutex
	failing bool
	credits int
}

func (w *flakyWallet) setFailing(v bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failing = v
}

func (w *flakyWallet) Credit(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID, kind string, amount int64, key string) error {
	w.mu.Lock()
	failing := w.failing
	w.credits++
	w.mu.Unlock()
	if failing {
		return errWalletDown
	}
	return w.Wallet.Credit(ctx, db, roundID, userID, kind, amount, key)
}
