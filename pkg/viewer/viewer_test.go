package viewer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var liveStart = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

func snapshot(status rounddomain.Status) roundevents.RoundSnapshotV1 {
	return roundevents.RoundSnapshotV1{
		ID:                 uuid.MustParse("6f1c1a52-1111-4b5e-9a1c-000000000001"),
		Status:             string(status),
		EntryOpenAt:        liveStart.Add(-time.Hour),
		EntryCloseAt:       liveStart.Add(-10 * time.Minute),
		LiveStartAt:        liveStart,
		LiveEndAt:          liveStart.Add(time.Hour),
		ActivityDeadlineAt: liveStart.Add(5 * time.Minute),
		ParticipantCount:   3,
		MinParticipants:    2,
		QuorumPolicy:       string(rounddomain.QuorumCancel),
		UpdatedAt:          liveStart.Add(-2 * time.Hour),
	}
}

type fakeNudger struct {
	calls atomic.Int32
	err   error
}

func (f *fakeNudger) Nudge(context.Context) error {
	f.calls.Add(1)
	return f.err
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestPredict(t *testing.T) {
	tests := []struct {
		name      string
		status    rounddomain.Status
		at        time.Time
		mutate    func(*roundevents.RoundSnapshotV1)
		want      rounddomain.Status
		wantDue   bool
		remaining int
	}{
		{name: "scheduled before open", status: rounddomain.StatusScheduled, at: liveStart.Add(-2 * time.Hour), want: rounddomain.StatusScheduled},
		{name: "scheduled past open", status: rounddomain.StatusScheduled, at: liveStart.Add(-30 * time.Minute), want: rounddomain.StatusWaiting, wantDue: true},
		{name: "waiting past entry close", status: rounddomain.StatusWaiting, at: liveStart.Add(-5 * time.Minute), want: rounddomain.StatusOpening, wantDue: true},
		{name: "opening past live start", status: rounddomain.StatusOpening, at: liveStart.Add(time.Second), want: rounddomain.StatusLive, wantDue: true},
		{name: "cascade from scheduled", status: rounddomain.StatusScheduled, at: liveStart.Add(time.Second), want: rounddomain.StatusLive, wantDue: true},
		{
			name:   "short of quorum is undecided",
			status: rounddomain.StatusOpening,
			at:     liveStart.Add(time.Second),
			mutate: func(s *roundevents.RoundSnapshotV1) { s.ParticipantCount = 1 },
			want:   rounddomain.StatusOpening, wantDue: true,
		},
		{
			name:   "start anyway ignores quorum",
			status: rounddomain.StatusOpening,
			at:     liveStart.Add(time.Second),
			mutate: func(s *roundevents.RoundSnapshotV1) {
				s.ParticipantCount = 0
				s.QuorumPolicy = string(rounddomain.QuorumStartAnyway)
			},
			want: rounddomain.StatusLive, wantDue: true,
		},
		{name: "live before deadline", status: rounddomain.StatusLive, at: liveStart.Add(4 * time.Minute), want: rounddomain.StatusLive, remaining: 3360},
		{name: "live at deadline", status: rounddomain.StatusLive, at: liveStart.Add(5 * time.Minute), want: rounddomain.StatusEnded, wantDue: true},
		{name: "ended awaits settlement", status: rounddomain.StatusEnded, at: liveStart.Add(10 * time.Minute), want: rounddomain.StatusEnded, wantDue: true},
		{name: "settled is final", status: rounddomain.StatusSettled, at: liveStart.Add(48 * time.Hour), want: rounddomain.StatusSettled},
		{name: "cancelled is final", status: rounddomain.StatusCancelled, at: liveStart.Add(48 * time.Hour), want: rounddomain.StatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := snapshot(tt.status)
			if tt.mutate != nil {
				tt.mutate(&s)
			}
			p := Predict(s, tt.at)
			assert.Equal(t, tt.want, p.Predicted)
			assert.Equal(t, tt.wantDue, p.Due)
			assert.Equal(t, tt.status, p.Confirmed)
			if tt.remaining > 0 {
				assert.Equal(t, tt.remaining, p.SecondsRemaining)
			}
		})
	}
}

func TestPredict_SecondsRoundUp(t *testing.T) {
	s := snapshot(rounddomain.StatusOpening)
	p := Predict(s, liveStart.Add(-1500*time.Millisecond))
	assert.Equal(t, 2, p.SecondsUntilLive)

	p = Predict(s, liveStart.Add(time.Minute))
	assert.Equal(t, 0, p.SecondsUntilLive)
}

func TestViewer_NudgesOncePerTransition(t *testing.T) {
	clock := clockwork.NewFakeClockAt(liveStart.Add(-time.Minute))
	nudger := &fakeNudger{}
	v := New(clock, nudger, quietLogger())
	require.True(t, v.Confirm(snapshot(rounddomain.StatusOpening)))

	_, err := v.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(0), nudger.calls.Load())

	clock.Advance(time.Minute)
	for range 3 {
		p, err := v.Step(context.Background())
		require.NoError(t, err)
		assert.Equal(t, rounddomain.StatusLive, p.Predicted)
	}
	assert.Equal(t, int32(1), nudger.calls.Load())

	live := snapshot(rounddomain.StatusLive)
	live.UpdatedAt = liveStart
	require.True(t, v.Confirm(live))
	_, err = v.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), nudger.calls.Load(), "confirmed caught up, nothing due")

	clock.Advance(5 * time.Minute)
	_, err = v.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), nudger.calls.Load())
}

func TestViewer_FailedNudgeIsRetried(t *testing.T) {
	clock := clockwork.NewFakeClockAt(liveStart.Add(time.Second))
	nudger := &fakeNudger{err: errors.New("offline")}
	v := New(clock, nudger, quietLogger())
	v.Confirm(snapshot(rounddomain.StatusOpening))

	_, err := v.Step(context.Background())
	require.Error(t, err)

	nudger.err = nil
	_, err = v.Step(context.Background())
	require.NoError(t, err)
	_, err = v.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), nudger.calls.Load())
}

func TestViewer_IgnoresStaleSnapshots(t *testing.T) {
	v := New(clockwork.NewFakeClockAt(liveStart), nil, quietLogger())

	newer := snapshot(rounddomain.StatusLive)
	newer.UpdatedAt = liveStart
	require.True(t, v.Confirm(newer))

	older := snapshot(rounddomain.StatusOpening)
	older.UpdatedAt = liveStart.Add(-time.Minute)
	assert.False(t, v.Confirm(older))

	got, ok := v.Confirmed()
	require.True(t, ok)
	assert.Equal(t, string(rounddomain.StatusLive), got.Status)
}

func TestViewer_PredictBeforeConfirm(t *testing.T) {
	v := New(clockwork.NewFakeClock(), &fakeNudger{}, quietLogger())
	_, ok := v.Predict()
	assert.False(t, ok)
	p, err := v.Step(context.Background())
	require.NoError(t, err)
	assert.True(t, p.At.IsZero())
}

func TestViewer_Run(t *testing.T) {
	clock := clockwork.NewFakeClockAt(liveStart.Add(-time.Second))
	nudger := &fakeNudger{}
	v := New(clock, nudger, quietLogger())

	updates := make(chan roundevents.RoundSnapshotV1, 1)
	rendered := make(chan Prediction, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		v.Run(ctx, updates, clock, time.Second, func(p Prediction) { rendered <- p })
	}()

	updates <- snapshot(rounddomain.StatusOpening)
	first := <-rendered
	assert.Equal(t, rounddomain.StatusOpening, first.Predicted)
	assert.False(t, first.Due)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	second := <-rendered
	assert.Equal(t, rounddomain.StatusLive, second.Predicted)
	assert.Equal(t, int32(1), nudger.calls.Load())

	cancel()
	<-done
}

func TestHTTPNudger(t *testing.T) {
	var hits atomic.Int32
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	n := NewHTTPNudger(srv.URL + "/api/tick")
	require.NoError(t, n.Nudge(context.Background()))

	status.Store(http.StatusTooManyRequests)
	require.NoError(t, n.Nudge(context.Background()))

	status.Store(http.StatusInternalServerError)
	require.Error(t, n.Nudge(context.Background()))
	assert.Equal(t, int32(3), hits.Load())
}
