package roundtime

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var (
	// ErrInvalidTimezone is returned for a timezone that is neither a known abbreviation nor an IANA name.
	ErrInvalidTimezone = errors.New("invalid timezone")
	// ErrUnrecognizedTime is returned when no parser understood the input.
	ErrUnrecognizedTime = errors.New("could not recognize time format")
	// ErrStartInPast is returned when the parsed start is not after now.
	ErrStartInPast = errors.New("start time must be in the future")
)

var compactClock = regexp.MustCompile(`(\d{1,2})(\d{2})(am|pm)`)

// Parser turns operator input such as "tomorrow at 6pm" into an absolute start.
type Parser struct {
	TimezoneMap map[string]string
	w           *when.Parser
}

// NewParser creates a Parser with US timezone abbreviations.
func NewParser() *Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{
		TimezoneMap: map[string]string{
			"UTC": "UTC",
			"PST": "America/Los_Angeles",
			"PDT": "America/Los_Angeles",
			"MST": "America/Denver",
			"MDT": "America/Denver",
			"CST": "America/Chicago",
			"CDT": "America/Chicago",
			"EST": "America/New_York",
			"EDT": "America/New_York",
		},
		w: w,
	}
}

// Location resolves an abbreviation or IANA name. Empty input means UTC.
func (p *Parser) Location(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	if full, ok := p.TimezoneMap[strings.ToUpper(tz)]; ok {
		tz = full
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimezone, tz)
	}
	return loc, nil
}

// Parse resolves input relative to now in the given timezone and returns a UTC
// instant truncated to the minute. RFC 3339 input is taken literally.
func (p *Parser) Parse(input, tz string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(input)
	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return p.future(t.UTC(), now)
	}

	loc, err := p.Location(tz)
	if err != nil {
		return time.Time{}, err
	}

	normalized := strings.ToLower(input)
	normalized = strings.ReplaceAll(normalized, "today ", "today at ")
	normalized = compactClock.ReplaceAllString(normalized, "$1:$2 $3")

	r, err := p.w.Parse(normalized, now.In(loc))
	if err == nil && r != nil {
		return p.future(r.Time.In(loc).Truncate(time.Minute).UTC(), now)
	}

	// "6:30 PM" with no day means today.
	local := now.In(loc)
	clock, perr := time.ParseInLocation("3:04 PM", strings.ToUpper(input), loc)
	if perr != nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrUnrecognizedTime, input)
	}
	t := time.Date(local.Year(), local.Month(), local.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
	return p.future(t.UTC(), now)
}

func (p *Parser) future(t, now time.Time) (time.Time, error) {
	if !t.After(now) {
		return time.Time{}, fmt.Errorf("%w (parsed: %s, now: %s)", ErrStartInPast, t.Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	}
	return t, nil
}
