package rounddomain

import (
	"time"

	"github.com/Black-And-White-Club/lastword/pkg/utils/countdown"
)

// BuildView computes the countdowns for r against the authoritative now.
func BuildView(r *Round, now time.Time) ActiveRoundView {
	v := ActiveRoundView{Round: r, ServerTime: now}

	switch r.Status {
	case StatusScheduled:
		v.SecondsUntilOpening = countdown.SecondsBetween(now, r.EntryOpenAt)
		v.SecondsUntilLive = countdown.SecondsBetween(now, r.LiveStartAt)
		v.SecondsRemaining = countdown.SecondsBetween(now, r.LiveEndAt)
	case StatusWaiting, StatusOpening:
		v.SecondsUntilLive = countdown.SecondsBetween(now, r.LiveStartAt)
		v.SecondsRemaining = countdown.SecondsBetween(now, r.LiveEndAt)
	case StatusLive, StatusEnding:
		deadline := r.ActivityDeadline()
		v.SecondsUntilActivityDeadline = countdown.SecondsBetween(now, deadline)
		v.SecondsRemaining = v.SecondsUntilActivityDeadline
	case StatusEnded, StatusSettled, StatusCancelled:
	}
	return v
}
