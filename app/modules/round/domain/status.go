package rounddomain

import "fmt"

// Status is the lifecycle state of a round. The set is closed: ParseStatus
// rejects anything else and every switch over Status lists all members.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusWaiting   Status = "waiting"
	StatusOpening   Status = "opening"
	StatusLive      Status = "live"
	StatusEnding    Status = "ending"
	StatusEnded     Status = "ended"
	StatusSettled   Status = "settled"
	StatusCancelled Status = "cancelled"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusScheduled, StatusWaiting, StatusOpening, StatusLive,
	StatusEnding, StatusEnded, StatusSettled, StatusCancelled,
}

// ParseStatus converts a stored string into a Status.
func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown round status %q", s)
}

// Rank orders statuses along the state table; a round's rank never decreases.
func (s Status) Rank() int {
	switch s {
	case StatusScheduled:
		return 0
	case StatusWaiting:
		return 1
	case StatusOpening:
		return 2
	case StatusLive:
		return 3
	case StatusEnding:
		return 4
	case StatusEnded:
		return 5
	case StatusSettled:
		return 6
	case StatusCancelled:
		return 7
	default:
		return -1
	}
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusSettled, StatusCancelled:
		return true
	case StatusScheduled, StatusWaiting, StatusOpening, StatusLive, StatusEnding, StatusEnded:
		return false
	default:
		return false
	}
}

// IsPreLive reports whether the round can still be cancelled or left.
func (s Status) IsPreLive() bool {
	switch s {
	case StatusScheduled, StatusWaiting, StatusOpening:
		return true
	case StatusLive, StatusEnding, StatusEnded, StatusSettled, StatusCancelled:
		return false
	default:
		return false
	}
}

// IsLive reports whether qualifying actions are accepted in this status.
func (s Status) IsLive() bool {
	switch s {
	case StatusLive, StatusEnding:
		return true
	case StatusScheduled, StatusWaiting, StatusOpening, StatusEnded, StatusSettled, StatusCancelled:
		return false
	default:
		return false
	}
}

// CanTransition reports whether from → to is an edge of the state machine.
// A same-status edge exists only for waiting and opening (start extension).
func CanTransition(from, to Status) bool {
	switch from {
	case StatusScheduled:
		return to == StatusWaiting || to == StatusCancelled
	case StatusWaiting:
		return to == StatusWaiting || to == StatusOpening || to == StatusLive || to == StatusCancelled
	case StatusOpening:
		return to == StatusOpening || to == StatusLive || to == StatusCancelled
	case StatusLive:
		return to == StatusEnding || to == StatusEnded
	case StatusEnding:
		return to == StatusEnded
	case StatusEnded:
		return to == StatusSettled
	case StatusSettled, StatusCancelled:
		return false
	default:
		return false
	}
}

// QuorumPolicy decides what happens when a round reaches its live start short of participants.
type QuorumPolicy string

const (
	QuorumReset       QuorumPolicy = "reset"
	QuorumCancel      QuorumPolicy = "cancel"
	QuorumStartAnyway QuorumPolicy = "start_anyway"
)

func (p QuorumPolicy) Valid() bool {
	switch p {
	case QuorumReset, QuorumCancel, QuorumStartAnyway:
		return true
	default:
		return false
	}
}

// RecurrenceType selects how a successor round is scheduled.
type RecurrenceType string

const (
	RecurrenceNone        RecurrenceType = "none"
	RecurrenceAutoRestart RecurrenceType = "auto_restart"
	RecurrenceMinutes     RecurrenceType = "minutes"
	RecurrenceHours       RecurrenceType = "hours"
	RecurrenceDaily       RecurrenceType = "daily"
	RecurrenceWeekly      RecurrenceType = "weekly"
	RecurrenceMonthly     RecurrenceType = "monthly"
)

func (r RecurrenceType) Valid() bool {
	switch r {
	case RecurrenceNone, RecurrenceAutoRestart, RecurrenceMinutes, RecurrenceHours,
		RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	default:
		return false
	}
}

// Recurs reports whether a successor should be created.
func (r RecurrenceType) Recurs() bool {
	return r != "" && r != RecurrenceNone
}

// EndReason records which timer ended a live round.
type EndReason string

const (
	EndReasonInactivity EndReason = "inactivity"
	EndReasonDuration   EndReason = "duration"
	EndReasonForced     EndReason = "forced"
)

// Outcome is the user-visible result of a finished round.
type Outcome string

const (
	OutcomeWinners   Outcome = "winners"
	OutcomeNoWinner  Outcome = "no_winner"
	OutcomeCancelled Outcome = "cancelled"
)
