package rounddb

import (
	"slices"
	"time"

	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Template is the stored form of a round template. Durations are kept in milliseconds.
type Template struct {
	bun.BaseModel      `bun:"table:round_templates,alias:rt"`
	ID                 uuid.UUID       `bun:"id,pk,type:uuid"`
	Name               string          `bun:"name,notnull"`
	EntryFee           int64           `bun:"entry_fee,notnull"`
	SponsoredAmount    int64           `bun:"sponsored_amount,notnull"`
	CommissionRate     decimal.Decimal `bun:"commission_rate,type:numeric(6,5),notnull"`
	WinnerCount        int             `bun:"winner_count,notnull"`
	PrizeDistribution  []int           `bun:"prize_distribution,type:jsonb,notnull"`
	MinParticipants    int             `bun:"min_participants,notnull"`
	QuorumPolicy       string          `bun:"min_participants_action,notnull"`
	AllowSpectators    bool            `bun:"allow_spectators,notnull"`
	EntryLeadMS        int64           `bun:"entry_lead_ms,notnull"`
	EntryCloseLeadMS   int64           `bun:"entry_close_lead_ms,notnull"`
	LiveDurationMS     int64           `bun:"live_duration_ms,notnull"`
	ActivityWindowMS   int64           `bun:"activity_window_ms,notnull"`
	ResetExtensionMS   int64           `bun:"reset_extension_ms,notnull"`
	RecurrenceType     string          `bun:"recurrence_type,notnull"`
	RecurrenceInterval int             `bun:"recurrence_interval,notnull"`
	Active             bool            `bun:"active,notnull"`
	CreatedAt          time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// Round is the persisted round row.
type Round struct {
	bun.BaseModel `bun:"table:rounds,alias:r"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid"`
	TemplateID    uuid.UUID  `bun:"template_id,type:uuid,notnull"`
	PredecessorID *uuid.UUID `bun:"predecessor_id,type:uuid,nullzero"`
	Name          string     `bun:"name,notnull"`
	Status        string     `bun:"status,notnull"`

	EntryOpenAt      time.Time  `bun:"entry_open_at,notnull"`
	EntryCloseAt     *time.Time `bun:"entry_close_at,nullzero"`
	LiveStartAt      time.Time  `bun:"live_start_at,notnull"`
	LiveEndAt        time.Time  `bun:"live_end_at,notnull"`
	ActivityWindowMS int64      `bun:"activity_window_ms,notnull"`
	ActivityAnchorAt *time.Time `bun:"activity_anchor_at,nullzero"`

	EntryFee          int64           `bun:"entry_fee,notnull"`
	PoolValue         int64           `bun:"pool_value,notnull"`
	SponsoredAmount   int64           `bun:"sponsored_amount,notnull"`
	CommissionRate    decimal.Decimal `bun:"commission_rate,type:numeric(6,5),notnull"`
	WinnerCount       int             `bun:"winner_count,notnull"`
	PrizeDistribution []int           `bun:"prize_distribution,type:jsonb,notnull"`

	ParticipantCount int    `bun:"participant_count,notnull"`
	MinParticipants  int    `bun:"min_participants,notnull"`
	AllowSpectators  bool   `bun:"allow_spectators,notnull"`
	QuorumPolicy     string `bun:"min_participants_action,notnull"`
	ResetExtensionMS int64  `bun:"reset_extension_ms,notnull"`
	ResetCount       int    `bun:"reset_count,notnull"`

	RecurrenceType     string `bun:"recurrence_type,notnull"`
	RecurrenceInterval int    `bun:"recurrence_interval,notnull"`

	EndedAt     *time.Time              `bun:"ended_at,nullzero"`
	EndReason   string                  `bun:"end_reason,nullzero"`
	CancelledAt *time.Time              `bun:"cancelled_at,nullzero"`
	SettledAt   *time.Time              `bun:"settled_at,nullzero"`
	Settlement  *rounddomain.Settlement `bun:"settlement,type:jsonb,nullzero"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// Participant is a user's membership in a round.
type Participant struct {
	bun.BaseModel  `bun:"table:round_participants,alias:rp"`
	ID             uuid.UUID  `bun:"id,pk,type:uuid"`
	RoundID        uuid.UUID  `bun:"round_id,type:uuid,notnull"`
	UserID         string     `bun:"user_id,notnull"`
	Spectator      bool       `bun:"spectator,notnull"`
	JoinedAt       time.Time  `bun:"joined_at,nullzero,notnull,default:clock_timestamp()"`
	PaidAmount     int64      `bun:"paid_amount,notnull"`
	RefundEligible bool       `bun:"refund_eligible,notnull"`
	RefundedAt     *time.Time `bun:"refunded_at,nullzero"`
}

// Action is one row of the append-only action log. Seq and ActedAt are assigned by the store.
type Action struct {
	bun.BaseModel `bun:"table:round_actions,alias:ra"`
	Seq           int64     `bun:"seq,pk,autoincrement"`
	RoundID       uuid.UUID `bun:"round_id,type:uuid,notnull"`
	UserID        string    `bun:"user_id,notnull"`
	Body          string    `bun:"body"`
	ActedAt       time.Time `bun:"acted_at,nullzero,notnull,default:clock_timestamp()"`
}

// Winner is one paid position of a settled round.
type Winner struct {
	bun.BaseModel `bun:"table:round_winners,alias:rw"`
	RoundID       uuid.UUID `bun:"round_id,pk,type:uuid"`
	Position      int       `bun:"position,pk"`
	UserID        string    `bun:"user_id,notnull"`
	PrizeAmount   int64     `bun:"prize_amount,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func ms(d time.Duration) int64 { return d.Milliseconds() }

func dur(v int64) time.Duration { return time.Duration(v) * time.Millisecond }

func templateFromDomain(t *rounddomain.Template) *Template {
	return &Template{
		ID:                 t.ID,
		Name:               t.Name,
		EntryFee:           t.EntryFee,
		SponsoredAmount:    t.SponsoredAmount,
		CommissionRate:     t.CommissionRate,
		WinnerCount:        t.WinnerCount,
		PrizeDistribution:  slices.Clone(t.PrizeDistribution),
		MinParticipants:    t.MinParticipants,
		QuorumPolicy:       string(t.QuorumPolicy),
		AllowSpectators:    t.AllowSpectators,
		EntryLeadMS:        ms(t.EntryLead),
		EntryCloseLeadMS:   ms(t.EntryCloseLead),
		LiveDurationMS:     ms(t.LiveDuration),
		ActivityWindowMS:   ms(t.ActivityWindow),
		ResetExtensionMS:   ms(t.ResetExtension),
		RecurrenceType:     string(t.RecurrenceType),
		RecurrenceInterval: t.RecurrenceInterval,
		Active:             t.Active,
		CreatedAt:          t.CreatedAt,
	}
}

func (m *Template) toDomain() *rounddomain.Template {
	return &rounddomain.Template{
		ID:                 m.ID,
		Name:               m.Name,
		EntryFee:           m.EntryFee,
		SponsoredAmount:    m.SponsoredAmount,
		CommissionRate:     m.CommissionRate,
		WinnerCount:        m.WinnerCount,
		PrizeDistribution:  m.PrizeDistribution,
		MinParticipants:    m.MinParticipants,
		QuorumPolicy:       rounddomain.QuorumPolicy(m.QuorumPolicy),
		AllowSpectators:    m.AllowSpectators,
		EntryLead:          dur(m.EntryLeadMS),
		EntryCloseLead:     dur(m.EntryCloseLeadMS),
		LiveDuration:       dur(m.LiveDurationMS),
		ActivityWindow:     dur(m.ActivityWindowMS),
		ResetExtension:     dur(m.ResetExtensionMS),
		RecurrenceType:     rounddomain.RecurrenceType(m.RecurrenceType),
		RecurrenceInterval: m.RecurrenceInterval,
		Active:             m.Active,
		CreatedAt:          m.CreatedAt,
	}
}

func roundFromDomain(r *rounddomain.Round) *Round {
	return &Round{
		ID:                 r.ID,
		TemplateID:         r.TemplateID,
		PredecessorID:      r.PredecessorID,
		Name:               r.Name,
		Status:             string(r.Status),
		EntryOpenAt:        r.EntryOpenAt,
		EntryCloseAt:       r.EntryCloseAt,
		LiveStartAt:        r.LiveStartAt,
		LiveEndAt:          r.LiveEndAt,
		ActivityWindowMS:   ms(r.ActivityWindow),
		ActivityAnchorAt:   r.ActivityAnchorAt,
		EntryFee:           r.EntryFee,
		PoolValue:          r.PoolValue,
		SponsoredAmount:    r.SponsoredAmount,
		CommissionRate:     r.CommissionRate,
		WinnerCount:        r.WinnerCount,
		PrizeDistribution:  slices.Clone(r.PrizeDistribution),
		ParticipantCount:   r.ParticipantCount,
		MinParticipants:    r.MinParticipants,
		AllowSpectators:    r.AllowSpectators,
		QuorumPolicy:       string(r.QuorumPolicy),
		ResetExtensionMS:   ms(r.ResetExtension),
		ResetCount:         r.ResetCount,
		RecurrenceType:     string(r.RecurrenceType),
		RecurrenceInterval: r.RecurrenceInterval,
		EndedAt:            r.EndedAt,
		EndReason:          string(r.EndReason),
		CancelledAt:        r.CancelledAt,
		SettledAt:          r.SettledAt,
		Settlement:         r.Settlement,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func (m *Round) toDomain() (*rounddomain.Round, error) {
	status, err := rounddomain.ParseStatus(m.Status)
	if err != nil {
		return nil, err
	}
	return &rounddomain.Round{
		ID:                 m.ID,
		TemplateID:         m.TemplateID,
		PredecessorID:      m.PredecessorID,
		Name:               m.Name,
		Status:             status,
		EntryOpenAt:        m.EntryOpenAt,
		EntryCloseAt:       m.EntryCloseAt,
		LiveStartAt:        m.LiveStartAt,
		LiveEndAt:          m.LiveEndAt,
		ActivityWindow:     dur(m.ActivityWindowMS),
		ActivityAnchorAt:   m.ActivityAnchorAt,
		EntryFee:           m.EntryFee,
		PoolValue:          m.PoolValue,
		SponsoredAmount:    m.SponsoredAmount,
		CommissionRate:     m.CommissionRate,
		WinnerCount:        m.WinnerCount,
		PrizeDistribution:  m.PrizeDistribution,
		ParticipantCount:   m.ParticipantCount,
		MinParticipants:    m.MinParticipants,
		AllowSpectators:    m.AllowSpectators,
		QuorumPolicy:       rounddomain.QuorumPolicy(m.QuorumPolicy),
		ResetExtension:     dur(m.ResetExtensionMS),
		ResetCount:         m.ResetCount,
		RecurrenceType:     rounddomain.RecurrenceType(m.RecurrenceType),
		RecurrenceInterval: m.RecurrenceInterval,
		EndedAt:            m.EndedAt,
		EndReason:          rounddomain.EndReason(m.EndReason),
		CancelledAt:        m.CancelledAt,
		SettledAt:          m.SettledAt,
		Settlement:         m.Settlement,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}, nil
}

func roundsToDomain(models []Round) ([]*rounddomain.Round, error) {
	out := make([]*rounddomain.Round, 0, len(models))
	for i := range models {
		r, err := models[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *Participant) toDomain() *rounddomain.Participant {
	return &rounddomain.Participant{
		ID:             m.ID,
		RoundID:        m.RoundID,
		UserID:         m.UserID,
		Spectator:      m.Spectator,
		JoinedAt:       m.JoinedAt,
		PaidAmount:     m.PaidAmount,
		RefundEligible: m.RefundEligible,
		RefundedAt:     m.RefundedAt,
	}
}

func (m *Action) toDomain() rounddomain.Action {
	return rounddomain.Action{
		Seq:     m.Seq,
		RoundID: m.RoundID,
		UserID:  m.UserID,
		Body:    m.Body,
		ActedAt: m.ActedAt,
	}
}

func (m *Winner) toDomain() rounddomain.Winner {
	return rounddomain.Winner{
		RoundID:     m.RoundID,
		UserID:      m.UserID,
		Position:    m.Position,
		PrizeAmount: m.PrizeAmount,
		CreatedAt:   m.CreatedAt,
	}
}
