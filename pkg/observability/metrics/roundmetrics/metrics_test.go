package roundmetrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg).(*prometheusMetrics)
	ctx := context.Background()

	m.RecordTransition(ctx, "live", "ended")
	m.RecordTransition(ctx, "live", "ended")
	m.RecordTransitionConflict(ctx, "ended")
	m.RecordSettlement(ctx, "winners", 9000)
	m.RecordSettlement(ctx, "no_winner", 0)
	m.RecordOperationAttempt(ctx, "Tick", "RoundService")
	m.RecordTickDuration(ctx, 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("live", "ended")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conflicts.WithLabelValues("ended")))
	assert.Equal(t, 9000.0, testutil.ToFloat64(m.paidOut))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlements.WithLabelValues("no_winner")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("Tick", "RoundService", "attempt")))
}
