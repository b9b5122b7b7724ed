package rounddomain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// maxCatchUpSteps bounds the advance loop after a very long outage.
const maxCatchUpSteps = 100000

// NextOccurrence returns the successor's live start: one interval after the
// predecessor's actual end, advanced until it is no longer in the past.
// immediate is true for auto_restart. ok is false when nothing recurs.
func NextOccurrence(t RecurrenceType, interval int, actualEnd, now time.Time) (next time.Time, immediate bool, ok bool) {
	switch t {
	case RecurrenceAutoRestart:
		return now, true, true
	case RecurrenceMinutes, RecurrenceHours, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
	case RecurrenceNone:
		return time.Time{}, false, false
	default:
		return time.Time{}, false, false
	}
	if interval <= 0 {
		interval = 1
	}

	next = advance(t, interval, actualEnd)
	for i := 0; next.Before(now) && i < maxCatchUpSteps; i++ {
		next = advance(t, interval, next)
	}
	return next, false, true
}

func advance(t RecurrenceType, n int, from time.Time) time.Time {
	switch t {
	case RecurrenceMinutes:
		return from.Add(time.Duration(n) * time.Minute)
	case RecurrenceHours:
		return from.Add(time.Duration(n) * time.Hour)
	case RecurrenceDaily:
		return from.AddDate(0, 0, n)
	case RecurrenceWeekly:
		return from.AddDate(0, 0, 7*n)
	case RecurrenceMonthly:
		return from.AddDate(0, n, 0)
	case RecurrenceNone, RecurrenceAutoRestart:
		return from
	default:
		return from
	}
}

// NewRound lays a template's timing out around liveStart.
func NewRound(t Template, liveStart time.Time) *Round {
	r := &Round{
		ID:                 uuid.New(),
		TemplateID:         t.ID,
		Name:               t.Name,
		Status:             StatusScheduled,
		EntryOpenAt:        liveStart.Add(-t.EntryLead),
		LiveStartAt:        liveStart,
		LiveEndAt:          liveStart.Add(t.LiveDuration),
		ActivityWindow:     t.ActivityWindow,
		EntryFee:           t.EntryFee,
		SponsoredAmount:    t.SponsoredAmount,
		CommissionRate:     t.CommissionRate,
		WinnerCount:        t.WinnerCount,
		PrizeDistribution:  slices.Clone(t.PrizeDistribution),
		MinParticipants:    t.MinParticipants,
		AllowSpectators:    t.AllowSpectators,
		QuorumPolicy:       t.QuorumPolicy,
		ResetExtension:     t.EffectiveResetExtension(),
		RecurrenceType:     t.RecurrenceType,
		RecurrenceInterval: t.RecurrenceInterval,
	}
	if t.EntryCloseLead > 0 {
		closeAt := liveStart.Add(-t.EntryCloseLead)
		r.EntryCloseAt = &closeAt
	}
	return r
}

// NewSuccessor builds the next round of a recurring chain. Auto-restart
// successors open for entry immediately.
func NewSuccessor(t Template, predecessor *Round, actualEnd, now time.Time) (*Round, bool) {
	next, immediate, ok := NextOccurrence(predecessor.RecurrenceType, predecessor.RecurrenceInterval, actualEnd, now)
	if !ok {
		return nil, false
	}

	var r *Round
	if immediate {
		r = NewRound(t, now.Add(t.EntryLead))
		r.EntryOpenAt = now
		r.Status = StatusWaiting
	} else {
		r = NewRound(t, next)
	}
	pid := predecessor.ID
	r.PredecessorID = &pid
	r.RecurrenceType = predecessor.RecurrenceType
	r.RecurrenceInterval = predecessor.RecurrenceInterval
	return r, true
}

// FinishedAt is the instant a recurrence is measured from.
func (r *Round) FinishedAt() (time.Time, bool) {
	switch {
	case r.EndedAt != nil:
		return *r.EndedAt, true
	case r.CancelledAt != nil:
		return *r.CancelledAt, true
	default:
		return time.Time{}, false
	}
}
