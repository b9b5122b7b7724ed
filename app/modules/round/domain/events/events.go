package roundevents

import (
	"time"

	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	"github.com/google/uuid"
)

// Stream names
const (
	RoundStreamName = "round"
)

// Round topics
const (
	// TickRequestedV1 asks the lifecycle driver for one pass over due rounds.
	TickRequestedV1 = "round.tick.requested.v1"
	// TickCompletedV1 carries the per-phase summary of a driver pass.
	TickCompletedV1 = "round.tick.completed.v1"

	// AdvanceRequestedV1 is a timer wake-up for one round. The step still
	// obeys the timing guards.
	AdvanceRequestedV1 = "round.advance.requested.v1"

	// ForceRequestedV1 is the administrative override for a single round.
	ForceRequestedV1 = "round.force.requested.v1"
	ForceCompletedV1 = "round.force.completed.v1"

	// RoundChangedV1 is published per round, scoped by round id.
	RoundChangedV1 = "round.changed.v1"
)

// RoundSubjects lists every subject the round stream must capture.
var RoundSubjects = []string{
	TickRequestedV1,
	TickCompletedV1,
	AdvanceRequestedV1,
	ForceRequestedV1,
	ForceCompletedV1,
	RoundChangedV1 + ".>",
}

// Change causes carried on RoundChangedV1.
const (
	CauseTransition   = "transition"
	CauseParticipants = "participants"
	CauseActivity     = "activity"
	CauseCreated      = "created"
)

type TickRequestedPayloadV1 struct {
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// TickSummaryV1 counts the transitions one driver pass applied, per phase.
type TickSummaryV1 struct {
	Opened        int `json:"opened"`
	EntriesClosed int `json:"entries_closed"`
	Started       int `json:"started"`
	Extended      int `json:"extended"`
	Cancelled     int `json:"cancelled"`
	MarkedEnding  int `json:"marked_ending"`
	Ended         int `json:"ended"`
	Settled       int `json:"settled"`
	Rescheduled   int `json:"rescheduled"`
	Conflicts     int `json:"conflicts"`
	Failed        int `json:"failed"`
}

// Total is the number of transitions applied.
func (s TickSummaryV1) Total() int {
	return s.Opened + s.EntriesClosed + s.Started + s.Extended + s.Cancelled +
		s.MarkedEnding + s.Ended + s.Settled + s.Rescheduled
}

type TickCompletedPayloadV1 struct {
	Summary     TickSummaryV1 `json:"summary"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
}

type AdvanceRequestedPayloadV1 struct {
	RoundID uuid.UUID `json:"round_id"`
	Status  string    `json:"status"`
	DueAt   time.Time `json:"due_at"`
}

type ForceRequestedPayloadV1 struct {
	RoundID     uuid.UUID `json:"round_id"`
	RequestedBy string    `json:"requested_by,omitempty"`
}

type ForceCompletedPayloadV1 struct {
	RoundID uuid.UUID `json:"round_id"`
	Step    string    `json:"step"`
	Status  string    `json:"status"`
	Error   string    `json:"error,omitempty"`
}

// RoundSnapshotV1 is the wire form of a round shown to observers.
type RoundSnapshotV1 struct {
	ID                 uuid.UUID               `json:"id"`
	TemplateID         uuid.UUID               `json:"template_id"`
	Name               string                  `json:"name"`
	Status             string                  `json:"status"`
	EntryOpenAt        time.Time               `json:"entry_open_at"`
	EntryCloseAt       time.Time               `json:"entry_close_at"`
	LiveStartAt        time.Time               `json:"live_start_at"`
	LiveEndAt          time.Time               `json:"live_end_at"`
	ActivityDeadlineAt time.Time               `json:"activity_deadline_at"`
	ActivityWindowMS   int64                   `json:"activity_window_ms"`
	EntryFee           int64                   `json:"entry_fee"`
	PoolValue          int64                   `json:"pool_value"`
	SponsoredAmount    int64                   `json:"sponsored_amount"`
	CommissionRate     string                  `json:"commission_rate"`
	WinnerCount        int                     `json:"winner_count"`
	PrizeDistribution  []int                   `json:"prize_distribution"`
	ParticipantCount   int                     `json:"participant_count"`
	MinParticipants    int                     `json:"min_participants"`
	AllowSpectators    bool                    `json:"allow_spectators"`
	QuorumPolicy       string                  `json:"min_participants_action"`
	ResetCount         int                     `json:"reset_count"`
	RecurrenceType     string                  `json:"recurrence_type"`
	RecurrenceInterval int                     `json:"recurrence_interval"`
	EndReason          string                  `json:"end_reason,omitempty"`
	Outcome            string                  `json:"outcome,omitempty"`
	Settlement         *rounddomain.Settlement `json:"settlement,omitempty"`
	UpdatedAt          time.Time               `json:"updated_at"`
}

// NewRoundSnapshotV1 converts a stored round for the wire.
func NewRoundSnapshotV1(r *rounddomain.Round) RoundSnapshotV1 {
	s := RoundSnapshotV1{
		ID:                 r.ID,
		TemplateID:         r.TemplateID,
		Name:               r.Name,
		Status:             string(r.Status),
		EntryOpenAt:        r.EntryOpenAt,
		EntryCloseAt:       r.EffectiveEntryClose(),
		LiveStartAt:        r.LiveStartAt,
		LiveEndAt:          r.LiveEndAt,
		ActivityDeadlineAt: r.ActivityDeadline(),
		ActivityWindowMS:   r.ActivityWindow.Milliseconds(),
		EntryFee:           r.EntryFee,
		PoolValue:          r.PoolValue,
		SponsoredAmount:    r.SponsoredAmount,
		CommissionRate:     r.CommissionRate.String(),
		WinnerCount:        r.WinnerCount,
		PrizeDistribution:  r.PrizeDistribution,
		ParticipantCount:   r.ParticipantCount,
		MinParticipants:    r.MinParticipants,
		AllowSpectators:    r.AllowSpectators,
		QuorumPolicy:       string(r.QuorumPolicy),
		ResetCount:         r.ResetCount,
		RecurrenceType:     string(r.RecurrenceType),
		RecurrenceInterval: r.RecurrenceInterval,
		EndReason:          string(r.EndReason),
		Settlement:         r.Settlement,
		UpdatedAt:          r.UpdatedAt,
	}
	switch {
	case r.Settlement != nil:
		s.Outcome = string(r.Settlement.Outcome)
	case r.Status == rounddomain.StatusCancelled:
		s.Outcome = string(rounddomain.OutcomeCancelled)
	}
	return s
}

// RoundChangedPayloadV1 is emitted on status, participant count and pool changes.
type RoundChangedPayloadV1 struct {
	RoundID          uuid.UUID       `json:"round_id"`
	Cause            string          `json:"cause"`
	PreviousStatus   string          `json:"previous_status,omitempty"`
	Status           string          `json:"status"`
	ParticipantCount int             `json:"participant_count"`
	PoolValue        int64           `json:"pool_value"`
	Round            RoundSnapshotV1 `json:"round"`
	ChangedAt        time.Time       `json:"changed_at"`
}

// ActiveRoundV1 is one entry of the active-rounds listing, with countdowns
// computed on the server.
type ActiveRoundV1 struct {
	Round                        RoundSnapshotV1 `json:"round"`
	ServerTime                   time.Time       `json:"server_time"`
	SecondsUntilOpening          int             `json:"seconds_until_opening"`
	SecondsUntilLive             int             `json:"seconds_until_live"`
	SecondsRemaining             int             `json:"seconds_remaining"`
	SecondsUntilActivityDeadline int             `json:"seconds_until_activity_deadline"`
}

// NewActiveRoundV1 converts a computed view for the wire.
func NewActiveRoundV1(v rounddomain.ActiveRoundView) ActiveRoundV1 {
	return ActiveRoundV1{
		Round:                        NewRoundSnapshotV1(v.Round),
		ServerTime:                   v.ServerTime,
		SecondsUntilOpening:          v.SecondsUntilOpening,
		SecondsUntilLive:             v.SecondsUntilLive,
		SecondsRemaining:             v.SecondsRemaining,
		SecondsUntilActivityDeadline: v.SecondsUntilActivityDeadline,
	}
}
