package roundapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	auditdb "github.com/Black-And-White-Club/lastword/app/modules/audit/infrastructure/repositories"
	ledgerservice "github.com/Black-And-White-Club/lastword/app/modules/ledger/application"
	roundservice "github.com/Black-And-White-Club/lastword/app/modules/round/application"
	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	roundqueue "github.com/Black-And-White-Club/lastword/app/modules/round/infrastructure/queue"
	userdb "github.com/Black-And-White-Club/lastword/app/modules/user/infrastructure/repositories"
	"github.com/Black-And-White-Club/lastword/pkg/clocksync"
	"github.com/Black-And-White-Club/lastword/pkg/jwt"
	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 64 << 10

// Wallet is the read and top-up side of the ledger.
type Wallet interface {
	Balance(ctx context.Context, userID string) (int64, error)
	Deposit(ctx context.Context, userID string, amount int64, key string) error
}

// Stats serves player aggregates.
type Stats interface {
	GetStats(ctx context.Context, userID string) (*userdb.PlayerStats, error)
	TopPlayers(ctx context.Context, limit int) ([]userdb.PlayerStats, error)
}

// History serves the transition audit log.
type History interface {
	History(ctx context.Context, roundID uuid.UUID) ([]auditdb.Entry, error)
}

// Jobs lists pending timer wake-ups. Nil when transition jobs are disabled.
type Jobs interface {
	GetScheduledJobs(ctx context.Context, roundID uuid.UUID) ([]roundqueue.JobInfo, error)
}

// Options configures the HTTP surface.
type Options struct {
	Tokens            jwt.Service
	AllowedOrigins    []string
	NudgeRate         float64
	NudgeBurst        int
	DefaultCommission decimal.Decimal
	Clock             clockwork.Clock
}

// API serves the round engine over HTTP.
type API struct {
	service roundservice.Service
	wallet  Wallet
	stats   Stats
	history History
	jobs    Jobs
	logger  *slog.Logger
	opts    Options

	// ticks coalesces concurrent nudges into one driver pass.
	ticks singleflight.Group
}

// NewAPI creates the HTTP API.
func NewAPI(service roundservice.Service, wallet Wallet, stats Stats, history History, jobs Jobs, logger *slog.Logger, opts Options) *API {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.NudgeRate <= 0 {
		opts.NudgeRate = 1
	}
	if opts.NudgeBurst <= 0 {
		opts.NudgeBurst = 5
	}
	return &API{
		service: service,
		wallet:  wallet,
		stats:   stats,
		history: history,
		jobs:    jobs,
		logger:  logger,
		opts:    opts,
	}
}

// Routes builds the router. Tick and action endpoints share one per-IP limiter.
func (a *API) Routes() chi.Router {
	nudge := RateLimitMiddleware(NewIPRateLimiter(rate.Limit(a.opts.NudgeRate), a.opts.NudgeBurst, a.opts.Clock))

	r := chi.NewRouter()
	r.Use(CORSMiddleware(a.opts.AllowedOrigins))

	r.Route("/api", func(r chi.Router) {
		r.Get("/time", a.handleTime)
		r.Get("/rounds/active", a.handleActiveRounds)
		r.Get("/rounds/{id}", a.handleGetRound)
		r.Get("/rounds/{id}/leaderboard", a.handleLeaderboard)
		r.Get("/rounds/{id}/participants", a.handleParticipants)
		r.Get("/rounds/{id}/winners", a.handleWinners)
		r.With(nudge).Post("/tick", a.handleTick)
		r.Get("/players/top", a.handleTopPlayers)
		r.Get("/players/{userID}/stats", a.handlePlayerStats)

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(a.opts.Tokens))
			r.Post("/rounds/{id}/join", a.handleJoin)
			r.Post("/rounds/{id}/leave", a.handleLeave)
			r.Post("/rounds/{id}/upgrade", a.handleUpgrade)
			r.With(nudge).Post("/rounds/{id}/actions", a.handleAction)
			r.Get("/wallet", a.handleWallet)

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireOperator)
				r.Post("/templates", a.handleCreateTemplate)
				r.Post("/rounds", a.handleCreateRound)
				r.Post("/rounds/{id}/force", a.handleForce)
				r.Post("/rounds/{id}/cancel", a.handleCancel)
				r.Post("/rounds/{id}/settle", a.handleSettle)
				r.Post("/rounds/{id}/next", a.handleNext)
				r.Get("/rounds/{id}/settlement.xlsx", a.handleExport)
				r.Get("/rounds/{id}/history", a.handleHistory)
				r.Get("/rounds/{id}/jobs", a.handleJobs)
				r.Post("/wallet/deposit", a.handleDeposit)
			})
		})
	})
	return r
}

func (a *API) handleTime(w http.ResponseWriter, r *http.Request) {
	now, err := a.service.ServerTime(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clocksync.TimeResponse{ServerTime: now, EpochMS: now.UnixMilli()})
}

func (a *API) handleActiveRounds(w http.ResponseWriter, r *http.Request) {
	views, err := a.service.ListActiveRounds(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]roundevents.ActiveRoundV1, 0, len(views))
	for _, v := range views {
		out = append(out, roundevents.NewActiveRoundV1(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleGetRound(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(w, r)
	if !ok {
		return
	}
	round, err := a.service.GetRound(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roundevents.NewRoundSnapshotV1(round))
}

func (a *API) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(w, r)
	if !ok {
		return
	}
	board, err := a.service.Leaderboard(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if board == nil {
		board = []rounddomain.RankedActor{}
	}
	writeJSON(w, http.StatusOK, board)
}

func (a *API) handleParticipants(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(w, r)
	if !ok {
		return
	}
	participants, err := a.service.ListParticipants(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]participantResponse, 0, len(participants))
	for _, p := range participants {
		out = append(out, newParticipantResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleWinners(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(w, r)
	if !ok {
		return
	}
	winners, err := a.service.ListWinners(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]winnerResponse, 0, len(winners))
	for _, wn := range winners {
		out = append(out, winnerResponse{UserID: wn.UserID, Position: wn.Position, PrizeAmount: wn.PrizeAmount})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleTick is the client nudge: an observer whose countdown reached zero
// asks the engine to catch up instead of waiting for the next scheduled pass.
// With round_id only that round is advanced. Without it, concurrent requests
// share a single driver pass.
func (a *API) handleTick(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("round_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid round id")
			return
		}
		res, err := a.service.AdvanceRound(r.Context(), id)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAdvanceResponse(res))
		return
	}

	ctx := context.WithoutCancel(r.Context())
	v, err, _ := a.ticks.Do("tick", func() (any, error) {
		return a.service.Tick(ctx)
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v.(roundevents.TickSummaryV1))
}

func (a *API) handleTopPlayers(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	top, err := a.stats.TopPlayers(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, top)
}

func (a *API) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.stats.GetStats(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleJoin(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(w, r)
	if !ok {
		return
	}
	var req joinRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	claims, _ := ClaimsFromContext(r.Context())
	p, err := a.service.Join(r.Context(), id, claims.Subject, req.Spectator)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newParticipantResponse(p))
}

func (a *API) handleLeave(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(w, r)
	if !ok {
		return
	}
	claims, _ := ClaimsFromContext(r.Context())
	if err := a.service.Leave(r.Context(), id, claims.Subject); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(w, r)
	if !ok {
		return
	}
	claims, _ := ClaimsFromContext(r.Context())
	p, err := a.service.UpgradeSpectator(r.Context(), id, claims.Subject)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newParticipantResponse(p))
}

func (a *API) handleAction(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(w, r)
	if !ok {
		return
	}
	var req actionRequest
	if !decode(w, r, &req) {
		return
	}
	claims, _ := ClaimsFromContext(r.Context())
	action, err := a.service.RecordAction(r.Context(), id, claims.Subject, req.Body)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, actionResponse{Seq: action.Seq, UserID: action.UserID, ActedAt: action.ActedAt})
}

func (a *API) handleWallet(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	balance, err := a.wallet.Balance(r.Context(), claims.Subject)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, walletResponse{UserID: claims.Subject, Balance: balance})
}

func (a *API) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !decode(w, r, &req) {
		return
	}
	tmpl, err := req.toDomain(a.opts.DefaultCommission)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid commission_rate: %v", err))
		return
	}
	created, err := a.service.CreateTemplate(r.Context(), tmpl)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTemplateResponse(created))
}

func (a *API) handleCreateRound(w http.ResponseWriter, r *http.Request) {
	var req createRoundRequest
	if !decode(w, r, &req) {
		return
	}
	claims, _ := ClaimsFromContext(r.Context())
	round, err := a.service.CreateRound(r.Context(), roundservice.CreateRoundRequest{
		TemplateID: req.TemplateID,
		StartsAt:   req.StartsAt,
		Timezone:   req.Timezone,
		CreatedBy:  claims.Subject,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, roundevents.NewRoundSnapshotV1(round))
}

func (a *API) handleForce(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(w, r)
	if !ok {
		return
	}
	claims, _ := ClaimsFromContext(r.Context())
	res, err := a.service.ForceTransition(r.Context(), id, claims.Subject)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAdvanceResponse(res))
}

func (a *API) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	claims, _ := ClaimsFromContext(r.Context())
	round, err := a.service.CancelRound(r.Context(), id, claims.Subject, req.Reason)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roundevents.NewRoundSnapshotV1(round))
}

func (a *API) handleSettle(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(w, r)
	if !ok {
		return
	}
	st, err := a.service.Settle(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) handleNext(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(w, r)
	if !ok {
		return
	}
	next, err := a.service.MaybeCreateNext(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if next == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, roundevents.NewRoundSnapshotV1(next))
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(w, r)
	if !ok {
		return
	}
	data, err := a.service.ExportSettlement(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "settlement-"+id.String()+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(w, r)
	if !ok {
		return
	}
	entries, err := a.history.History(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []auditdb.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) handleJobs(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(w, r)
	if !ok {
		return
	}
	if a.jobs == nil {
		writeJSON(w, http.StatusOK, []roundqueue.JobInfo{})
		return
	}
	jobs, err := a.jobs.GetScheduledJobs(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (a *API) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Key == "" {
		req.Key = "deposit:" + uuid.NewString()
	}
	if err := a.wallet.Deposit(r.Context(), req.UserID, req.Amount, req.Key); err != nil {
		a.fail(w, r, err)
		return
	}
	balance, err := a.wallet.Balance(r.Context(), req.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, walletResponse{UserID: req.UserID, Balance: balance})
}

// fail maps service errors onto statuses. Anything unmapped is a 500 and is logged.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.ErrorContext(r.Context(), "request failed",
			attr.String("method", r.Method),
			attr.String("path", r.URL.Path),
			attr.Error(err),
		)
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, roundservice.ErrRoundNotFound),
		errors.Is(err, roundservice.ErrTemplateNotFound):
		return http.StatusNotFound
	case errors.Is(err, roundservice.ErrNotParticipant),
		errors.Is(err, roundservice.ErrSpectatorCannotAct):
		return http.StatusForbidden
	case errors.Is(err, roundservice.ErrEntriesClosed),
		errors.Is(err, roundservice.ErrAlreadyJoined),
		errors.Is(err, roundservice.ErrRoundNotLive),
		errors.Is(err, roundservice.ErrRoundAlreadyLive),
		errors.Is(err, roundservice.ErrRoundTerminal),
		errors.Is(err, roundservice.ErrRoundNotFinished),
		errors.Is(err, roundservice.ErrQuorumNotMet),
		errors.Is(err, roundservice.ErrConcurrentChange),
		errors.Is(err, roundservice.ErrTemplateInactive),
		errors.Is(err, roundservice.ErrSpectatorsNotAllowed),
		errors.Is(err, roundservice.ErrNotSpectator):
		return http.StatusConflict
	case errors.Is(err, roundservice.ErrInsufficientFunds),
		errors.Is(err, ledgerservice.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, roundservice.ErrInvalidStartTime),
		errors.Is(err, roundservice.ErrEmptyAction),
		errors.Is(err, rounddomain.ErrInvalidConfig),
		errors.Is(err, ledgerservice.ErrInvalidAmount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func roundID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return uuid.Nil, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
