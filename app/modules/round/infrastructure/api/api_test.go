package roundapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	roundservice "github.com/Black-And-White-Club/lastword/app/modules/round/application"
	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	"github.com/Black-And-White-Club/lastword/pkg/clocksync"
	"github.com/Black-And-White-Club/lastword/pkg/jwt"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	svc    *FakeRoundService
	wallet *fakeWallet
	tokens jwt.Service
	clock  *clockwork.FakeClock
	server http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC))
	env := &testEnv{
		svc:    NewFakeRoundService(),
		wallet: newFakeWallet(),
		tokens: jwt.NewService("test-secret", time.Hour, nil),
		clock:  clock,
	}
	api := NewAPI(env.svc, env.wallet, fakeStats{}, fakeHistory{}, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		Options{
			Tokens:            env.tokens,
			AllowedOrigins:    []string{"https://play.example.com"},
			NudgeRate:         1,
			NudgeBurst:        2,
			DefaultCommission: decimal.RequireFromString("0.10"),
			Clock:             clock,
		})
	env.server = api.Routes()
	return env
}

func (e *testEnv) token(t *testing.T, user string, role jwt.Role) string {
	t.Helper()
	tok, err := e.tokens.GenerateToken(user, role, 0)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func TestAPI_Time(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2026, 5, 1, 18, 0, 1, 500_000_000, time.UTC)
	env.svc.ServerTimeFunc = func(context.Context) (time.Time, error) { return now, nil }

	rec := env.do(t, http.MethodGet, "/api/time", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got clocksync.TimeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, now.Equal(got.ServerTime))
	assert.Equal(t, now.UnixMilli(), got.EpochMS)
}

func TestAPI_ActiveRounds(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()
	env.svc.ListActiveFunc = func(context.Context) ([]rounddomain.ActiveRoundView, error) {
		return []rounddomain.ActiveRoundView{{
			Round:            &rounddomain.Round{ID: id, Status: rounddomain.StatusLive},
			SecondsRemaining: 42,
		}}, nil
	}

	rec := env.do(t, http.MethodGet, "/api/rounds/active", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []roundevents.ActiveRoundV1
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].Round.ID)
	assert.Equal(t, 42, got[0].SecondsRemaining)
}

func TestAPI_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "not found", err: roundservice.ErrRoundNotFound, want: http.StatusNotFound},
		{name: "entries closed", err: roundservice.ErrEntriesClosed, want: http.StatusConflict},
		{name: "already joined", err: roundservice.ErrAlreadyJoined, want: http.StatusConflict},
		{name: "spectators not allowed", err: roundservice.ErrSpectatorsNotAllowed, want: http.StatusConflict},
		{name: "insufficient funds", err: roundservice.ErrInsufficientFunds, want: http.StatusPaymentRequired},
		{name: "wrapped concurrent change", err: fmt.Errorf("join: %w", roundservice.ErrConcurrentChange), want: http.StatusConflict},
		{name: "infrastructure", err: errors.New("connection refused"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.svc.JoinFunc = func(context.Context, uuid.UUID, string, bool) (*rounddomain.Participant, error) {
				return nil, tt.err
			}
			rec := env.do(t, http.MethodPost, "/api/rounds/"+uuid.NewString()+"/join",
				env.token(t, "u1", jwt.RolePlayer), joinRequest{})
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusInternalServerError {
				assert.NotContains(t, rec.Body.String(), "connection refused")
			}
		})
	}
}

func TestAPI_JoinUsesTokenSubject(t *testing.T) {
	env := newTestEnv(t)
	roundID := uuid.New()
	var gotUser string
	var gotSpectator bool
	env.svc.JoinFunc = func(_ context.Context, id uuid.UUID, userID string, spectator bool) (*rounddomain.Participant, error) {
		gotUser, gotSpectator = userID, spectator
		return &rounddomain.Participant{RoundID: id, UserID: userID, Spectator: spectator}, nil
	}

	rec := env.do(t, http.MethodPost, "/api/rounds/"+roundID.String()+"/join",
		env.token(t, "alice", jwt.RolePlayer), joinRequest{Spectator: true})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "alice", gotUser)
	assert.True(t, gotSpectator)
}

func TestAPI_Auth(t *testing.T) {
	env := newTestEnv(t)
	roundID := uuid.NewString()

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{name: "missing token", method: http.MethodPost, path: "/api/rounds/" + roundID + "/leave", want: http.StatusUnauthorized},
		{name: "garbage token", method: http.MethodPost, path: "/api/rounds/" + roundID + "/leave", token: "nope", want: http.StatusUnauthorized},
		{name: "player leaves", method: http.MethodPost, path: "/api/rounds/" + roundID + "/leave", token: env.token(t, "u1", jwt.RolePlayer), want: http.StatusNoContent},
		{name: "player cannot force", method: http.MethodPost, path: "/api/admin/rounds/" + roundID + "/force", token: env.token(t, "u1", jwt.RolePlayer), want: http.StatusForbidden},
		{name: "operator forces", method: http.MethodPost, path: "/api/admin/rounds/" + roundID + "/force", token: env.token(t, "op", jwt.RoleOperator), want: http.StatusOK},
		{name: "bad round id", method: http.MethodPost, path: "/api/admin/rounds/xyz/force", token: env.token(t, "op", jwt.RoleOperator), want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.token, nil)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAPI_RecordActionRejectsUnknownFields(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/rounds/"+uuid.NewString()+"/actions",
		env.token(t, "u1", jwt.RolePlayer), map[string]any{"body": "mine", "acted_at": "2020-01-01T00:00:00Z"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, env.svc.Trace(), "RecordAction")
}

func TestAPI_TickNudgeIsRateLimited(t *testing.T) {
	env := newTestEnv(t)

	codes := make([]int, 0, 3)
	for range 3 {
		codes = append(codes, env.do(t, http.MethodPost, "/api/tick", "", nil).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	env.clock.Advance(time.Second)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/tick", "", nil).Code)
}

func TestAPI_TickForRoundAdvancesOnlyThatRound(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()
	env.svc.AdvanceRoundFunc = func(_ context.Context, roundID uuid.UUID) (*roundservice.AdvanceResult, error) {
		assert.Equal(t, id, roundID)
		return &roundservice.AdvanceResult{
			Step:     rounddomain.StepStart,
			Previous: rounddomain.StatusOpening,
			Round:    &rounddomain.Round{ID: roundID, Status: rounddomain.StatusLive},
		}, nil
	}

	rec := env.do(t, http.MethodPost, "/api/tick?round_id="+id.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got advanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "start", got.Step)
	assert.Equal(t, "live", got.Status)
	assert.Equal(t, []string{"AdvanceRound"}, env.svc.Trace())

	rec = env.do(t, http.MethodPost, "/api/tick?round_id=nope", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ConcurrentTicksShareOnePass(t *testing.T) {
	env := newTestEnv(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	env.svc.TickFunc = func(context.Context) (roundevents.TickSummaryV1, error) {
		if calls.Add(1) == 1 {
			close(entered)
		}
		<-release
		return roundevents.TickSummaryV1{Opened: 1}, nil
	}

	codes := make(chan int, 2)
	go func() { codes <- env.do(t, http.MethodPost, "/api/tick", "", nil).Code }()
	<-entered
	go func() { codes <- env.do(t, http.MethodPost, "/api/tick", "", nil).Code }()

	// Let the second request join the pass in flight.
	time.Sleep(50 * time.Millisecond)
	close(release)

	assert.Equal(t, http.StatusOK, <-codes)
	assert.Equal(t, http.StatusOK, <-codes)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAPI_CreateTemplateAppliesDefaultCommission(t *testing.T) {
	env := newTestEnv(t)
	var got rounddomain.Template
	env.svc.CreateTemplateFunc = func(_ context.Context, tmpl rounddomain.Template) (*rounddomain.Template, error) {
		got = tmpl
		tmpl.ID = uuid.New()
		return &tmpl, nil
	}

	rec := env.do(t, http.MethodPost, "/api/admin/templates", env.token(t, "op", jwt.RoleOperator), templateRequest{
		Name:                  "hourly",
		EntryFee:              100,
		WinnerCount:           1,
		PrizeDistribution:     []int{100},
		MinParticipants:       2,
		LiveDurationSeconds:   3600,
		ActivityWindowSeconds: 300,
		RecurrenceType:        "hours",
		RecurrenceInterval:    1,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, decimal.RequireFromString("0.10").Equal(got.CommissionRate))
	assert.Equal(t, rounddomain.QuorumCancel, got.QuorumPolicy)
	assert.Equal(t, time.Hour, got.LiveDuration)
	assert.Equal(t, 5*time.Minute, got.ActivityWindow)
}

func TestAPI_InvalidConfigIsBadRequest(t *testing.T) {
	env := newTestEnv(t)
	env.svc.CreateTemplateFunc = func(context.Context, rounddomain.Template) (*rounddomain.Template, error) {
		return nil, fmt.Errorf("%w: winner_count", rounddomain.ErrInvalidConfig)
	}
	rec := env.do(t, http.MethodPost, "/api/admin/templates", env.token(t, "op", jwt.RoleOperator), templateRequest{Name: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_DepositAndWallet(t *testing.T) {
	env := newTestEnv(t)
	op := env.token(t, "op", jwt.RoleOperator)

	for range 2 {
		rec := env.do(t, http.MethodPost, "/api/admin/wallet/deposit", op, depositRequest{UserID: "bob", Amount: 500, Key: "seed-1"})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/wallet", env.token(t, "bob", jwt.RolePlayer), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got walletResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(500), got.Balance)
}

func TestAPI_ExportSettlement(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/admin/rounds/"+uuid.NewString()+"/settlement.xlsx", env.token(t, "op", jwt.RoleOperator), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
	assert.Equal(t, "xlsx", rec.Body.String())

	env.svc.ExportFunc = func(context.Context, uuid.UUID) ([]byte, error) { return nil, roundservice.ErrRoundNotFinished }
	rec = env.do(t, http.MethodGet, "/api/admin/rounds/"+uuid.NewString()+"/settlement.xlsx", env.token(t, "op", jwt.RoleOperator), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_JobsWithoutQueue(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/admin/rounds/"+uuid.NewString()+"/jobs", env.token(t, "op", jwt.RoleOperator), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestCORSMiddleware(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/time", nil)
	req.Header.Set("Origin", "https://play.example.com")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://play.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/time", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
