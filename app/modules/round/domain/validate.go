package rounddomain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidConfig is wrapped by every ConfigError.
var ErrInvalidConfig = errors.New("invalid round configuration")

// ConfigError names the offending field of a rejected template or round.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidConfig.Error(), e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

func configErr(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ValidateTemplate rejects configurations that must never reach the driver.
func ValidateTemplate(t Template) error {
	if t.Name == "" {
		return configErr("name", "must not be empty")
	}
	if err := validateEconomics(t.EntryFee, t.SponsoredAmount, t.CommissionRate, t.WinnerCount, t.PrizeDistribution); err != nil {
		return err
	}
	if t.MinParticipants < 0 {
		return configErr("min_participants", "must not be negative")
	}
	if !t.QuorumPolicy.Valid() {
		return configErr("min_participants_action", "unknown policy %q", t.QuorumPolicy)
	}
	if t.LiveDuration <= 0 {
		return configErr("live_duration", "must be positive")
	}
	if t.EntryLead < 0 || t.EntryCloseLead < 0 || t.ActivityWindow < 0 || t.ResetExtension < 0 {
		return configErr("timing", "durations must not be negative")
	}
	if t.EntryCloseLead > t.EntryLead {
		return configErr("entry_close_lead", "entries cannot close before they open")
	}
	if !t.RecurrenceType.Valid() {
		return configErr("recurrence_type", "unknown recurrence %q", t.RecurrenceType)
	}
	if needsInterval(t.RecurrenceType) && t.RecurrenceInterval <= 0 {
		return configErr("recurrence_interval", "must be positive for %s recurrence", t.RecurrenceType)
	}
	// Auto-restart successors open at once; they need a window to take entries in.
	if t.RecurrenceType == RecurrenceAutoRestart && t.EntryLead <= t.EntryCloseLead {
		return configErr("entry_lead", "must exceed entry_close_lead for %s recurrence", t.RecurrenceType)
	}
	return nil
}

// ValidateRound checks a concrete round before it is persisted.
func ValidateRound(r *Round) error {
	if err := validateEconomics(r.EntryFee, r.SponsoredAmount, r.CommissionRate, r.WinnerCount, r.PrizeDistribution); err != nil {
		return err
	}
	if !r.QuorumPolicy.Valid() {
		return configErr("min_participants_action", "unknown policy %q", r.QuorumPolicy)
	}
	if r.EntryOpenAt.After(r.LiveStartAt) {
		return configErr("entry_open_at", "must not be after live_start_at")
	}
	if r.EntryCloseAt != nil && (r.EntryCloseAt.Before(r.EntryOpenAt) || r.EntryCloseAt.After(r.LiveStartAt)) {
		return configErr("entry_close_at", "must fall between entry_open_at and live_start_at")
	}
	if !r.LiveEndAt.After(r.LiveStartAt) {
		return configErr("live_end_at", "must be after live_start_at")
	}
	if r.ActivityWindow < 0 {
		return configErr("activity_window", "must not be negative")
	}
	if !r.RecurrenceType.Valid() {
		return configErr("recurrence_type", "unknown recurrence %q", r.RecurrenceType)
	}
	if needsInterval(r.RecurrenceType) && r.RecurrenceInterval <= 0 {
		return configErr("recurrence_interval", "must be positive for %s recurrence", r.RecurrenceType)
	}
	return nil
}

func validateEconomics(fee, sponsored int64, rate decimal.Decimal, winners int, distribution []int) error {
	if fee < 0 {
		return configErr("entry_fee", "must not be negative")
	}
	if sponsored < 0 {
		return configErr("sponsored_amount", "must not be negative")
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return configErr("commission_rate", "must be within [0, 1)")
	}
	if winners < 1 {
		return configErr("winner_count", "must be at least 1")
	}
	if len(distribution) != winners {
		return configErr("prize_distribution", "has %d entries, winner_count is %d", len(distribution), winners)
	}
	sum := 0
	for i, p := range distribution {
		if p < 0 {
			return configErr("prize_distribution", "entry %d is negative", i)
		}
		sum += p
	}
	if sum != 100 {
		return configErr("prize_distribution", "sums to %d, want 100", sum)
	}
	return nil
}

func needsInterval(t RecurrenceType) bool {
	switch t {
	case RecurrenceMinutes, RecurrenceHours, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	case RecurrenceNone, RecurrenceAutoRestart:
		return false
	default:
		return false
	}
}
