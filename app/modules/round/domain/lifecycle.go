package rounddomain

import "time"

// StepKind names the single transition the driver applies to a round.
type StepKind int

const (
	StepNone StepKind = iota
	StepOpen
	StepCloseEntries
	StepStart
	StepExtend
	StepCancelQuorum
	StepMarkEnding
	StepEnd
	StepSettle
	// StepCancel is an operator cancellation before live.
	StepCancel
	// StepQuorumNotMet is returned for forced starts blocked by a reset policy.
	StepQuorumNotMet
)

func (k StepKind) String() string {
	switch k {
	case StepNone:
		return "none"
	case StepOpen:
		return "open"
	case StepCloseEntries:
		return "close_entries"
	case StepStart:
		return "start"
	case StepExtend:
		return "extend"
	case StepCancelQuorum:
		return "cancel_quorum"
	case StepMarkEnding:
		return "mark_ending"
	case StepEnd:
		return "end"
	case StepSettle:
		return "settle"
	case StepCancel:
		return "cancel"
	case StepQuorumNotMet:
		return "quorum_not_met"
	default:
		return "unknown"
	}
}

// TransitionFields are the columns written together with a status change.
// Nil fields are left untouched.
type TransitionFields struct {
	EntryCloseAt     *time.Time
	LiveStartAt      *time.Time
	LiveEndAt        *time.Time
	ActivityAnchorAt *time.Time
	ResetCount       *int // when set, the update also requires reset_count = *ResetCount-1
	EndedAt          *time.Time
	EndReason        *EndReason
	CancelledAt      *time.Time
	SettledAt        *time.Time
	Settlement       *Settlement
}

// Step is a planned transition.
type Step struct {
	Kind   StepKind
	From   Status
	To     Status
	Fields TransitionFields
}

// LifecycleConfig holds driver-wide timing knobs.
type LifecycleConfig struct {
	EndingWarning     time.Duration
	MinResetExtension time.Duration
}

// DefaultLifecycleConfig returns the stock driver timing.
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		EndingWarning:     5 * time.Minute,
		MinResetExtension: time.Minute,
	}
}

// PlanStep decides the one transition due for r at now. With force the
// timing guards are skipped; quorum policy still applies.
func PlanStep(r *Round, now time.Time, cfg LifecycleConfig, force bool) Step {
	none := Step{Kind: StepNone, From: r.Status, To: r.Status}

	switch r.Status {
	case StatusScheduled:
		if force || !now.Before(r.EntryOpenAt) {
			return Step{Kind: StepOpen, From: r.Status, To: StatusWaiting}
		}
		return none

	case StatusWaiting:
		if force || !now.Before(r.LiveStartAt) {
			return planQuorum(r, now, cfg, force)
		}
		if !now.Before(r.EffectiveEntryClose()) {
			return Step{Kind: StepCloseEntries, From: r.Status, To: StatusOpening}
		}
		return none

	case StatusOpening:
		if force || !now.Before(r.LiveStartAt) {
			return planQuorum(r, now, cfg, force)
		}
		return none

	case StatusLive, StatusEnding:
		deadline := r.ActivityDeadline()
		if force {
			reason := EndReasonForced
			endedAt := now
			if !now.Before(deadline) {
				reason, endedAt = timerEndReason(r, deadline), deadline
			}
			return Step{Kind: StepEnd, From: r.Status, To: StatusEnded, Fields: TransitionFields{EndedAt: &endedAt, EndReason: &reason}}
		}
		if !now.Before(deadline) {
			reason := timerEndReason(r, deadline)
			endedAt := deadline
			return Step{Kind: StepEnd, From: r.Status, To: StatusEnded, Fields: TransitionFields{EndedAt: &endedAt, EndReason: &reason}}
		}
		if r.Status == StatusLive && r.LiveEndAt.Sub(now) <= cfg.EndingWarning {
			return Step{Kind: StepMarkEnding, From: r.Status, To: StatusEnding}
		}
		return none

	case StatusEnded:
		return Step{Kind: StepSettle, From: r.Status, To: StatusSettled}

	case StatusSettled, StatusCancelled:
		return none

	default:
		return none
	}
}

func timerEndReason(r *Round, deadline time.Time) EndReason {
	if r.ActivityWindow > 0 && deadline.Before(r.LiveEndAt) {
		return EndReasonInactivity
	}
	return EndReasonDuration
}

func planQuorum(r *Round, now time.Time, cfg LifecycleConfig, force bool) Step {
	if r.ParticipantCount >= r.MinParticipants || r.QuorumPolicy == QuorumStartAnyway {
		fields := TransitionFields{}
		start := r.LiveStartAt
		if force && now.Before(start) {
			end := now.Add(r.LiveEndAt.Sub(r.LiveStartAt))
			start = now
			fields.LiveStartAt = &start
			fields.LiveEndAt = &end
		}
		anchor := start
		fields.ActivityAnchorAt = &anchor
		return Step{Kind: StepStart, From: r.Status, To: StatusLive, Fields: fields}
	}

	switch r.QuorumPolicy {
	case QuorumCancel:
		at := now
		return Step{Kind: StepCancelQuorum, From: r.Status, To: StatusCancelled, Fields: TransitionFields{CancelledAt: &at}}
	case QuorumReset:
		if force {
			return Step{Kind: StepQuorumNotMet, From: r.Status, To: r.Status}
		}
		return planExtension(r, now, cfg)
	default:
		return Step{Kind: StepNone, From: r.Status, To: r.Status}
	}
}

// planExtension pushes the live window forward by whole extensions until the
// new start is in the future. Status does not change.
func planExtension(r *Round, now time.Time, cfg LifecycleConfig) Step {
	ext := r.ResetExtension
	if ext < cfg.MinResetExtension {
		ext = cfg.MinResetExtension
	}
	if ext <= 0 {
		ext = time.Minute
	}

	start := r.LiveStartAt.Add(ext)
	for !start.After(now) {
		start = start.Add(ext)
	}
	delta := start.Sub(r.LiveStartAt)
	end := r.LiveEndAt.Add(delta)
	count := r.ResetCount + 1

	fields := TransitionFields{LiveStartAt: &start, LiveEndAt: &end, ResetCount: &count}
	if r.EntryCloseAt != nil {
		closeAt := r.EntryCloseAt.Add(delta)
		fields.EntryCloseAt = &closeAt
	}
	return Step{Kind: StepExtend, From: r.Status, To: r.Status, Fields: fields}
}

// Apply copies the planned fields onto r, mirroring what the store writes.
func (s Step) Apply(r *Round) {
	r.Status = s.To
	f := s.Fields
	if f.EntryCloseAt != nil {
		v := *f.EntryCloseAt
		r.EntryCloseAt = &v
	}
	if f.LiveStartAt != nil {
		r.LiveStartAt = *f.LiveStartAt
	}
	if f.LiveEndAt != nil {
		r.LiveEndAt = *f.LiveEndAt
	}
	if f.ActivityAnchorAt != nil {
		v := *f.ActivityAnchorAt
		r.ActivityAnchorAt = &v
	}
	if f.ResetCount != nil {
		r.ResetCount = *f.ResetCount
	}
	if f.EndedAt != nil {
		v := *f.EndedAt
		r.EndedAt = &v
	}
	if f.EndReason != nil {
		r.EndReason = *f.EndReason
	}
	if f.CancelledAt != nil {
		v := *f.CancelledAt
		r.CancelledAt = &v
	}
	if f.SettledAt != nil {
		v := *f.SettledAt
		r.SettledAt = &v
	}
	if f.Settlement != nil {
		r.Settlement = f.Settlement
	}
}

// NextTimerAt returns the instant at which PlanStep will next have work for r.
// ok is false for settled and cancelled rounds.
func NextTimerAt(r *Round, cfg LifecycleConfig) (at time.Time, ok bool) {
	switch r.Status {
	case StatusScheduled:
		return r.EntryOpenAt, true
	case StatusWaiting:
		if closeAt := r.EffectiveEntryClose(); closeAt.Before(r.LiveStartAt) {
			return closeAt, true
		}
		return r.LiveStartAt, true
	case StatusOpening:
		return r.LiveStartAt, true
	case StatusLive:
		deadline := r.ActivityDeadline()
		if warn := r.LiveEndAt.Add(-cfg.EndingWarning); warn.Before(deadline) {
			return warn, true
		}
		return deadline, true
	case StatusEnding:
		return r.ActivityDeadline(), true
	case StatusEnded:
		if r.EndedAt != nil {
			return *r.EndedAt, true
		}
		return r.LiveEndAt, true
	default:
		return time.Time{}, false
	}
}
