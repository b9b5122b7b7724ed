package roundapi

import (
	"time"

	roundservice "github.com/Black-And-White-Club/lastword/app/modules/round/application"
	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// templateRequest carries durations in seconds.
type templateRequest struct {
	Name                  string `json:"name"`
	EntryFee              int64  `json:"entry_fee"`
	SponsoredAmount       int64  `json:"sponsored_amount"`
	CommissionRate        string `json:"commission_rate"`
	WinnerCount           int    `json:"winner_count"`
	PrizeDistribution     []int  `json:"prize_distribution"`
	MinParticipants       int    `json:"min_participants"`
	QuorumPolicy          string `json:"min_participants_action"`
	AllowSpectators       bool   `json:"allow_spectators"`
	EntryLeadSeconds      int64  `json:"entry_lead_seconds"`
	EntryCloseLeadSeconds int64  `json:"entry_close_lead_seconds"`
	LiveDurationSeconds   int64  `json:"live_duration_seconds"`
	ActivityWindowSeconds int64  `json:"activity_window_seconds"`
	ResetExtensionSeconds int64  `json:"reset_extension_seconds"`
	RecurrenceType        string `json:"recurrence_type"`
	RecurrenceInterval    int    `json:"recurrence_interval"`
}

func (r templateRequest) toDomain(defaultRate decimal.Decimal) (rounddomain.Template, error) {
	rate := defaultRate
	if r.CommissionRate != "" {
		parsed, err := decimal.NewFromString(r.CommissionRate)
		if err != nil {
			return rounddomain.Template{}, err
		}
		rate = parsed
	}
	recurrence := rounddomain.RecurrenceType(r.RecurrenceType)
	if recurrence == "" {
		recurrence = rounddomain.RecurrenceNone
	}
	policy := rounddomain.QuorumPolicy(r.QuorumPolicy)
	if policy == "" {
		policy = rounddomain.QuorumCancel
	}
	return rounddomain.Template{
		Name:               r.Name,
		EntryFee:           r.EntryFee,
		SponsoredAmount:    r.SponsoredAmount,
		CommissionRate:     rate,
		WinnerCount:        r.WinnerCount,
		PrizeDistribution:  r.PrizeDistribution,
		MinParticipants:    r.MinParticipants,
		QuorumPolicy:       policy,
		AllowSpectators:    r.AllowSpectators,
		EntryLead:          seconds(r.EntryLeadSeconds),
		EntryCloseLead:     seconds(r.EntryCloseLeadSeconds),
		LiveDuration:       seconds(r.LiveDurationSeconds),
		ActivityWindow:     seconds(r.ActivityWindowSeconds),
		ResetExtension:     seconds(r.ResetExtensionSeconds),
		RecurrenceType:     recurrence,
		RecurrenceInterval: r.RecurrenceInterval,
		Active:             true,
	}, nil
}

func seconds(n int64) time.Duration { return time.Duration(n) * time.Second }

type templateResponse struct {
	ID                    uuid.UUID `json:"id"`
	Name                  string    `json:"name"`
	EntryFee              int64     `json:"entry_fee"`
	SponsoredAmount       int64     `json:"sponsored_amount"`
	CommissionRate        string    `json:"commission_rate"`
	WinnerCount           int       `json:"winner_count"`
	PrizeDistribution     []int     `json:"prize_distribution"`
	MinParticipants       int       `json:"min_participants"`
	QuorumPolicy          string    `json:"min_participants_action"`
	AllowSpectators       bool      `json:"allow_spectators"`
	LiveDurationSeconds   int64     `json:"live_duration_seconds"`
	ActivityWindowSeconds int64     `json:"activity_window_seconds"`
	RecurrenceType        string    `json:"recurrence_type"`
	RecurrenceInterval    int       `json:"recurrence_interval"`
	Active                bool      `json:"active"`
	CreatedAt             time.Time `json:"created_at"`
}

func newTemplateResponse(t *rounddomain.Template) templateResponse {
	return templateResponse{
		ID:                    t.ID,
		Name:                  t.Name,
		EntryFee:              t.EntryFee,
		SponsoredAmount:       t.SponsoredAmount,
		CommissionRate:        t.CommissionRate.String(),
		WinnerCount:           t.WinnerCount,
		PrizeDistribution:     t.PrizeDistribution,
		MinParticipants:       t.MinParticipants,
		QuorumPolicy:          string(t.QuorumPolicy),
		AllowSpectators:       t.AllowSpectators,
		LiveDurationSeconds:   int64(t.LiveDuration / time.Second),
		ActivityWindowSeconds: int64(t.ActivityWindow / time.Second),
		RecurrenceType:        string(t.RecurrenceType),
		RecurrenceInterval:    t.RecurrenceInterval,
		Active:                t.Active,
		CreatedAt:             t.CreatedAt,
	}
}

type createRoundRequest struct {
	TemplateID uuid.UUID `json:"template_id"`
	StartsAt   string    `json:"starts_at"`
	Timezone   string    `json:"timezone"`
}

type joinRequest struct {
	Spectator bool `json:"spectator"`
}

type actionRequest struct {
	Body string `json:"body"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type depositRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
	Key    string `json:"idempotency_key"`
}

type participantResponse struct {
	UserID     string     `json:"user_id"`
	Spectator  bool       `json:"spectator"`
	JoinedAt   time.Time  `json:"joined_at"`
	PaidAmount int64      `json:"paid_amount"`
	RefundedAt *time.Time `json:"refunded_at,omitempty"`
}

func newParticipantResponse(p *rounddomain.Participant) participantResponse {
	return participantResponse{
		UserID:     p.UserID,
		Spectator:  p.Spectator,
		JoinedAt:   p.JoinedAt,
		PaidAmount: p.PaidAmount,
		RefundedAt: p.RefundedAt,
	}
}

type actionResponse struct {
	Seq     int64     `json:"seq"`
	UserID  string    `json:"user_id"`
	ActedAt time.Time `json:"acted_at"`
}

type winnerResponse struct {
	UserID      string `json:"user_id"`
	Position    int    `json:"position"`
	PrizeAmount int64  `json:"prize_amount"`
}

type advanceResponse struct {
	Step        string     `json:"step"`
	Previous    string     `json:"previous_status"`
	Status      string     `json:"status"`
	SuccessorID *uuid.UUID `json:"successor_id,omitempty"`
}

func newAdvanceResponse(res *roundservice.AdvanceResult) advanceResponse {
	out := advanceResponse{
		Step:     res.Step.String(),
		Previous: string(res.Previous),
	}
	if res.Round != nil {
		out.Status = string(res.Round.Status)
	}
	if res.Successor != nil {
		out.SuccessorID = &res.Successor.ID
	}
	return out
}

type walletResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}
