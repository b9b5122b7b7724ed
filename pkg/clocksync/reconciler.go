// Package clocksync estimates authoritative server time on a client from
// round-trip probes, so independent viewers agree on countdowns without
// trusting their local clocks.
package clocksync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/Black-And-White-Club/lastword/pkg/utils/countdown"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultResyncInterval = 60 * time.Second
	DefaultRetryInterval  = 5 * time.Second
	defaultProbeTimeout   = 10 * time.Second
)

// ErrNeverSynced is returned by Status consumers that require at least one probe.
var ErrNeverSynced = errors.New("clock has not been synchronized yet")

// TimeSource reports the authoritative current instant.
type TimeSource interface {
	ServerTime(ctx context.Context) (time.Time, error)
}

// Status describes the last probe.
type Status struct {
	Synced    bool
	Offset    time.Duration
	RoundTrip time.Duration
	LastSync  time.Time
	LastError error
}

// Reconciler holds the estimated offset between the local clock and the time authority.
type Reconciler struct {
	source   TimeSource
	clock    clockwork.Clock
	logger   *slog.Logger
	interval time.Duration
	retry    time.Duration
	timeout  time.Duration

	group singleflight.Group

	mu     sync.RWMutex
	status Status
}

// Option configures a Reconciler.
type Option func(*Reconciler)

func WithClock(c clockwork.Clock) Option { return func(r *Reconciler) { r.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(r *Reconciler) { r.logger = l } }

func WithResyncInterval(d time.Duration) Option { return func(r *Reconciler) { r.interval = d } }

func WithRetryInterval(d time.Duration) Option { return func(r *Reconciler) { r.retry = d } }

func WithProbeTimeout(d time.Duration) Option { return func(r *Reconciler) { r.timeout = d } }

// NewReconciler creates a Reconciler. It starts with a zero offset.
func NewReconciler(source TimeSource, opts ...Option) *Reconciler {
	r := &Reconciler{
		source:   source,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		interval: DefaultResyncInterval,
		retry:    DefaultRetryInterval,
		timeout:  defaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sync probes the time authority and returns the new offset. Concurrent
// callers share one in-flight probe. On failure the previous offset is kept.
func (r *Reconciler) Sync(ctx context.Context) (time.Duration, error) {
	ch := r.group.DoChan("sync", func() (any, error) {
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.probe(probeCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return r.Offset(), res.Err
		}
		return res.Val.(time.Duration), nil
	case <-ctx.Done():
		return r.Offset(), ctx.Err()
	}
}

func (r *Reconciler) probe(ctx context.Context) (time.Duration, error) {
	t0 := r.clock.Now()
	server, err := r.source.ServerTime(ctx)
	t1 := r.clock.Now()

	if err != nil {
		r.mu.Lock()
		r.status.LastError = err
		offset := r.status.Offset
		r.mu.Unlock()
		r.logger.WarnContext(ctx, "Clock sync failed, keeping last offset",
			attr.Duration("offset", offset),
			attr.Error(err),
		)
		return offset, fmt.Errorf("clock sync: %w", err)
	}

	rtt := t1.Sub(t0)
	if rtt < 0 {
		rtt = 0
	}
	offset := server.Add(rtt / 2).Sub(t1)

	r.mu.Lock()
	r.status = Status{
		Synced:    true,
		Offset:    offset,
		RoundTrip: rtt,
		LastSync:  t1,
	}
	r.mu.Unlock()

	r.logger.DebugContext(ctx, "Clock synchronized",
		attr.Duration("offset", offset),
		attr.Duration("round_trip", rtt),
	)
	return offset, nil
}

// Offset returns the current estimate (zero before the first successful sync).
func (r *Reconciler) Offset() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status.Offset
}

// Status returns a snapshot of the last probe.
func (r *Reconciler) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Now returns the corrected time.
func (r *Reconciler) Now() time.Time {
	return r.clock.Now().Add(r.Offset())
}

// SecondsUntil returns whole seconds from corrected now until target, never negative.
func (r *Reconciler) SecondsUntil(target time.Time) int {
	return countdown.SecondsBetween(r.Now(), target)
}

// Run syncs immediately and then every resync interval until ctx is done.
// Failed probes are retried on the shorter retry interval.
func (r *Reconciler) Run(ctx context.Context) {
	for {
		wait := r.interval
		if _, err := r.Sync(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			wait = r.retry
		}

		timer := r.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}
	}
}
