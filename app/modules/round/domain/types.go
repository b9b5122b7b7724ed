package rounddomain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Template is the reusable definition a round is spawned from.
type Template struct {
	ID                 uuid.UUID
	Name               string
	EntryFee           int64
	SponsoredAmount    int64
	CommissionRate     decimal.Decimal
	WinnerCount        int
	PrizeDistribution  []int
	MinParticipants    int
	QuorumPolicy       QuorumPolicy
	AllowSpectators    bool
	EntryLead          time.Duration // entry_open_at precedes live_start_at by this much
	EntryCloseLead     time.Duration // entries close this long before live start; zero closes at live start
	LiveDuration       time.Duration
	ActivityWindow     time.Duration // zero disables the activity timer
	ResetExtension     time.Duration // zero falls back to EntryLead
	RecurrenceType     RecurrenceType
	RecurrenceInterval int
	Active             bool
	CreatedAt          time.Time
}

// EffectiveResetExtension is how far a reset pushes the live window. The
// driver still applies its minimum on top.
func (t Template) EffectiveResetExtension() time.Duration {
	if t.ResetExtension > 0 {
		return t.ResetExtension
	}
	return t.EntryLead
}

// Round is one timed instance of a contest.
type Round struct {
	ID            uuid.UUID
	TemplateID    uuid.UUID
	PredecessorID *uuid.UUID
	Name          string
	Status        Status

	EntryOpenAt      time.Time
	EntryCloseAt     *time.Time
	LiveStartAt      time.Time
	LiveEndAt        time.Time
	ActivityWindow   time.Duration
	ActivityAnchorAt *time.Time

	EntryFee          int64
	PoolValue         int64
	SponsoredAmount   int64
	CommissionRate    decimal.Decimal
	WinnerCount       int
	PrizeDistribution []int

	ParticipantCount int
	MinParticipants  int
	AllowSpectators  bool
	QuorumPolicy     QuorumPolicy
	ResetExtension   time.Duration
	ResetCount       int

	RecurrenceType     RecurrenceType
	RecurrenceInterval int

	EndedAt     *time.Time
	EndReason   EndReason
	CancelledAt *time.Time
	SettledAt   *time.Time
	Settlement  *Settlement

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ActivityDeadline is when the reset timer next expires, never later than
// LiveEndAt. Without an activity window the absolute end is the deadline.
func (r *Round) ActivityDeadline() time.Time {
	if r.ActivityWindow <= 0 {
		return r.LiveEndAt
	}
	anchor := r.LiveStartAt
	if r.ActivityAnchorAt != nil {
		anchor = *r.ActivityAnchorAt
	}
	deadline := anchor.Add(r.ActivityWindow)
	if deadline.After(r.LiveEndAt) {
		return r.LiveEndAt
	}
	return deadline
}

// EffectiveEntryClose is when entries close; unset means at live start.
func (r *Round) EffectiveEntryClose() time.Time {
	if r.EntryCloseAt != nil && r.EntryCloseAt.Before(r.LiveStartAt) {
		return *r.EntryCloseAt
	}
	return r.LiveStartAt
}

// AcceptsEntries reports whether a join is allowed at now.
func (r *Round) AcceptsEntries(now time.Time) bool {
	if r.Status != StatusWaiting && r.Status != StatusOpening {
		return false
	}
	return now.Before(r.EffectiveEntryClose())
}

// AcceptsActions reports whether a qualifying action at now still counts.
func (r *Round) AcceptsActions(now time.Time) bool {
	return r.Status.IsLive() && now.Before(r.ActivityDeadline())
}

// Participant is a user's relationship to one round.
type Participant struct {
	ID             uuid.UUID
	RoundID        uuid.UUID
	UserID         string
	Spectator      bool
	JoinedAt       time.Time
	PaidAmount     int64
	RefundEligible bool
	RefundedAt     *time.Time
}

// Action is one qualifying comment/claim. Seq is the store-assigned total order.
type Action struct {
	Seq     int64
	RoundID uuid.UUID
	UserID  string
	Body    string
	ActedAt time.Time
}

// Winner is one rewarded position.
type Winner struct {
	RoundID     uuid.UUID
	UserID      string
	Position    int
	PrizeAmount int64
	CreatedAt   time.Time
}

// WinnerShare is a winner line inside the settlement breakdown.
type WinnerShare struct {
	UserID       string    `json:"user_id"`
	Position     int       `json:"position"`
	Percent      int       `json:"percent"`
	PrizeAmount  int64     `json:"prize_amount"`
	LastActionAt time.Time `json:"last_action_at"`
}

// Settlement is the immutable outcome written once when a round finishes.
type Settlement struct {
	Outcome      Outcome       `json:"outcome"`
	Reason       string        `json:"reason,omitempty"`
	Pool         int64         `json:"pool"`
	Commission   int64         `json:"commission"`
	Sponsored    int64         `json:"sponsored"`
	Net          int64         `json:"net"`
	Distributed  int64         `json:"distributed"`
	Remainder    int64         `json:"remainder"`
	Winners      []WinnerShare `json:"winners"`
	Refunded     bool          `json:"refunded"`
	RefundCount  int           `json:"refund_count"`
	RefundAmount int64         `json:"refund_amount"`
	RefundTotal  int64         `json:"refund_total"`
	SettledAt    time.Time     `json:"settled_at"`
}

// RankedActor is one entry of the live leaderboard.
type RankedActor struct {
	UserID         string    `json:"user_id"`
	LastActionTime time.Time `json:"last_action_time"`
	FirstSeenSeq   int64     `json:"-"`
}

// ActiveRoundView is a round plus server-computed countdowns.
type ActiveRoundView struct {
	Round                        *Round
	ServerTime                   time.Time
	SecondsUntilOpening          int
	SecondsUntilLive             int
	SecondsRemaining             int
	SecondsUntilActivityDeadline int
}
