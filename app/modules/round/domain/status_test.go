package rounddomain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for _, st := range AllStatuses {
		got, err := ParseStatus(string(st))
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}

	_, err := ParseStatus("paused")
	assert.Error(t, err)
}

func TestCanTransitionNeverRegresses(t *testing.T) {
	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			if !CanTransition(from, to) {
				continue
			}
			if to == StatusCancelled {
				assert.True(t, from.IsPreLive(), "%s -> cancelled", from)
				continue
			}
			assert.GreaterOrEqual(t, to.Rank(), from.Rank(), "%s -> %s", from, to)
			if from == to {
				assert.Contains(t, []Status{StatusWaiting, StatusOpening}, from)
			}
		}
	}
}

func TestCanTransitionEdges(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusScheduled, StatusWaiting, true},
		{StatusScheduled, StatusLive, false},
		{StatusWaiting, StatusOpening, true},
		{StatusWaiting, StatusLive, true},
		{StatusOpening, StatusWaiting, false},
		{StatusLive, StatusEnding, true},
		{StatusLive, StatusEnded, true},
		{StatusLive, StatusCancelled, false},
		{StatusEnding, StatusLive, false},
		{StatusEnded, StatusSettled, true},
		{StatusEnded, StatusCancelled, false},
		{StatusSettled, StatusSettled, false},
		{StatusCancelled, StatusScheduled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusSettled.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusEnded.IsTerminal())

	assert.True(t, StatusLive.IsLive())
	assert.True(t, StatusEnding.IsLive())
	assert.False(t, StatusOpening.IsLive())

	assert.True(t, StatusOpening.IsPreLive())
	assert.False(t, StatusLive.IsPreLive())
	assert.Equal(t, -1, Status("bogus").Rank())
}
