//go:build integration

package roundintegrationtests

import (
	"testing"

	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	roundqueue "github.com/Black-And-White-Club/lastword/app/modules/round/infrastructure/queue"
	"github.com/Black-And-White-Club/lastword/pkg/observability/metrics/roundmetrics"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_OneJobPerTimer(t *testing.T) {
	deps := SetupTestRoundService(t, nil)
	env := deps.Env
	r := createRound(t, deps, testTemplate())

	queue, err := roundqueue.NewService(deps.Ctx, env.DB, env.Logger, env.Config.Postgres.DSN,
		roundmetrics.NewNoop(), env.EventBus, roundqueue.Config{Lifecycle: rounddomain.DefaultLifecycleConfig()},
		clockwork.NewRealClock())
	require.NoError(t, err)

	require.NoError(t, queue.ScheduleNext(deps.Ctx, r))
	require.NoError(t, queue.ScheduleNext(deps.Ctx, r))

	jobs, err := queue.GetScheduledJobs(deps.Ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 1, "scheduling the same timer twice is skipped")
	assert.Equal(t, roundqueue.TransitionKind, jobs[0].Kind)
	assert.Equal(t, string(rounddomain.StatusScheduled), jobs[0].Status)

	require.NoError(t, queue.CancelRoundJobs(deps.Ctx, r.ID))
	jobs, err = queue.GetScheduledJobs(deps.Ctx, r.ID)
	require.NoError(t, err)
	for _, j := range jobs {
		assert.Equal(t, "cancelled", j.State)
	}
}
