package roundmetrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RoundMetrics instruments the round engine.
type RoundMetrics interface {
	RecordOperationAttempt(ctx context.Context, operation, service string)
	RecordOperationSuccess(ctx context.Context, operation, service string)
	RecordOperationFailure(ctx context.Context, operation, service string)
	RecordOperationDuration(ctx context.Context, operation, service string, duration time.Duration)

	RecordTransition(ctx context.Context, from, to string)
	RecordTransitionConflict(ctx context.Context, expected string)
	RecordSettlement(ctx context.Context, outcome string, paidOut int64)
	RecordTickDuration(ctx context.Context, duration time.Duration)

	RecordHandlerAttempt(ctx context.Context, handlerName string)
	RecordHandlerSuccess(ctx context.Context, handlerName string)
	RecordHandlerFailure(ctx context.Context, handlerName string)
	RecordHandlerDuration(ctx context.Context, handlerName string, duration time.Duration)
}

type prometheusMetrics struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	transitions       *prometheus.CounterVec
	conflicts         *prometheus.CounterVec
	settlements       *prometheus.CounterVec
	paidOut           prometheus.Counter
	tickDuration      prometheus.Histogram
	handlers          *prometheus.CounterVec
	handlerDuration   *prometheus.HistogramVec
}

// NewPrometheus registers the round metrics on reg.
func NewPrometheus(reg prometheus.Registerer) RoundMetrics {
	m := &prometheusMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lastword",
			Subsystem: "round",
			Name:      "operations_total",
			Help:      "Round service operations by result.",
		}, []string{"operation", "service", "result"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lastword",
			Subsystem: "round",
			Name:      "operation_duration_seconds",
			Help:      "Round service operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "service"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lastword",
			Subsystem: "round",
			Name:      "transitions_total",
			Help:      "Applied lifecycle transitions.",
		}, []string{"from", "to"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lastword",
			Subsystem: "round",
			Name:      "transition_conflicts_total",
			Help:      "Compare-and-transition calls that lost the race.",
		}, []string{"expected"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lastword",
			Subsystem: "round",
			Name:      "settlements_total",
			Help:      "Settlements by outcome.",
		}, []string{"outcome"}),
		paidOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lastword",
			Subsystem: "round",
			Name:      "paid_out_total",
			Help:      "Sum of prize and refund credits issued.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lastword",
			Subsystem: "round",
			Name:      "tick_duration_seconds",
			Help:      "Lifecycle driver tick latency.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		handlers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lastword",
			Subsystem: "round",
			Name:      "handler_messages_total",
			Help:      "Event handler invocations by result.",
		}, []string{"handler", "result"}),
		handlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lastword",
			Subsystem: "round",
			Name:      "handler_duration_seconds",
			Help:      "Event handler latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler"}),
	}

	reg.MustRegister(
		m.operations, m.operationDuration, m.transitions, m.conflicts,
		m.settlements, m.paidOut, m.tickDuration, m.handlers, m.handlerDuration,
	)
	return m
}

func (m *prometheusMetrics) RecordOperationAttempt(_ context.Context, operation, service string) {
	m.operations.WithLabelValues(operation, service, "attempt").Inc()
}

func (m *prometheusMetrics) RecordOperationSuccess(_ context.Context, operation, service string) {
	m.operations.WithLabelValues(operation, service, "success").Inc()
}

func (m *prometheusMetrics) RecordOperationFailure(_ context.Context, operation, service string) {
	m.operations.WithLabelValues(operation, service, "failure").Inc()
}

func (m *prometheusMetrics) RecordOperationDuration(_ context.Context, operation, service string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation, service).Observe(d.Seconds())
}

func (m *prometheusMetrics) RecordTransition(_ context.Context, from, to string) {
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *prometheusMetrics) RecordTransitionConflict(_ context.Context, expected string) {
	m.conflicts.WithLabelValues(expected).Inc()
}

func (m *prometheusMetrics) RecordSettlement(_ context.Context, outcome string, paidOut int64) {
	m.settlements.WithLabelValues(outcome).Inc()
	if paidOut > 0 {
		m.paidOut.Add(float64(paidOut))
	}
}

func (m *prometheusMetrics) RecordTickDuration(_ context.Context, d time.Duration) {
	m.tickDuration.Observe(d.Seconds())
}

func (m *prometheusMetrics) RecordHandlerAttempt(_ context.Context, handlerName string) {
	m.handlers.WithLabelValues(handlerName, "attempt").Inc()
}

func (m *prometheusMetrics) RecordHandlerSuccess(_ context.Context, handlerName string) {
	m.handlers.WithLabelValues(handlerName, "success").Inc()
}

func (m *prometheusMetrics) RecordHandlerFailure(_ context.Context, handlerName string) {
	m.handlers.WithLabelValues(handlerName, "failure").Inc()
}

func (m *prometheusMetrics) RecordHandlerDuration(_ context.Context, handlerName string, d time.Duration) {
	m.handlerDuration.WithLabelValues(handlerName).Observe(d.Seconds())
}
