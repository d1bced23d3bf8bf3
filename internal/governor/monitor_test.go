package governor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/tokengov/internal/constants"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
)

func fastIntervals() Intervals {
	return Intervals{
		Usage:        5 * time.Millisecond,
		Progress:     5 * time.Millisecond,
		Checkpoint:   5 * time.Millisecond,
		Release:      5 * time.Millisecond,
		ErrorBackoff: 5 * time.Millisecond,
	}
}

func startMonitoring(t *testing.T, e *Engine) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- e.Start(context.Background()) }()
	require.Eventually(t, e.IsMonitoring, time.Second, time.Millisecond)
	return done
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, WithIntervals(fastIntervals()))
	done := startMonitoring(t, h.engine)

	require.ErrorIs(t, h.engine.Start(context.Background()), tgerrors.ErrMonitoringActive)

	h.engine.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor loops did not stop")
	}
	assert.False(t, h.engine.IsMonitoring())

	// Stop on an idle engine is a no-op and the engine can start again.
	h.engine.Stop()
	done = startMonitoring(t, h.engine)
	h.engine.Stop()
	require.NoError(t, <-done)
}

func TestStart_ContextCancelStops(t *testing.T) {
	h := newHarness(t, WithIntervals(fastIntervals()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Start(ctx) }()
	require.Eventually(t, h.engine.IsMonitoring, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor loops ignored cancellation")
	}
	assert.False(t, h.engine.IsMonitoring())
}

func TestUsageIteration_EmitsAlertsForActiveProjects(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.project(t, "hot", 1000)
	h.project(t, "cold", 1000)
	h.spend(t, "hot", 970)
	h.spend(t, "cold", 100)

	require.NoError(t, h.engine.usageIteration(ctx))
	require.Equal(t, 1, h.alerts.count())
	assert.Equal(t, constants.AlertCritical, h.alerts.alerts[0].Level)

	h.engine.DeactivateProject("hot")
	require.NoError(t, h.engine.usageIteration(ctx))
	assert.Equal(t, 1, h.alerts.count(), "inactive projects are not monitored")
}

func TestUsageIteration_ReportsLookupErrors(t *testing.T) {
	h := newHarness(t)
	h.project(t, "proj-1", 1000)
	h.store.sumErr = assert.AnError

	err := h.engine.safeIteration(context.Background(), "usage", h.engine.usageIteration)
	require.ErrorIs(t, err, tgerrors.ErrMonitoring)
	require.ErrorIs(t, err, assert.AnError)
}

func TestStalledTasks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.project(t, "proj-1", 100000)
	h.task(t, "old", "proj-1", constants.ComplexitySimple, 100)
	require.Equal(t, constants.DecisionApproved, h.engine.TrackTaskExecution(ctx, "old").Status)

	h.clock.Advance(90 * time.Minute)
	h.task(t, "fresh", "proj-1", constants.ComplexitySimple, 100)
	require.Equal(t, constants.DecisionApproved, h.engine.TrackTaskExecution(ctx, "fresh").Status)

	stalled, err := h.engine.StalledTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, stalled)

	h.clock.Advance(31 * time.Minute)
	stalled, err = h.engine.StalledTasks(ctx)
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	assert.Equal(t, "old", stalled[0].ID)
	require.NoError(t, h.engine.progressIteration(ctx))

	h.engine.DeactivateProject("proj-1")
	stalled, err = h.engine.StalledTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, stalled)
}

func TestCheckpointIteration(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WithCheckpointWorkers(2))
	h.project(t, "proj-1", 100000)
	for _, id := range []string{"a", "b", "c"} {
		h.task(t, id, "proj-1", constants.ComplexityVeryComplex, 1000)
		_, err := h.engine.RecordProgress(ctx, id, 750)
		require.NoError(t, err)
		require.Equal(t, constants.DecisionCheckpointRequested, h.engine.TrackTaskExecution(ctx, id).Status)
	}
	h.task(t, "idle", "proj-1", constants.ComplexitySimple, 100)

	t.Run("failure leaves the request in place", func(t *testing.T) {
		h.cps.set(true, false)
		require.NoError(t, h.engine.checkpointIteration(ctx))
		assert.Equal(t, constants.CheckpointRequested, h.store.task(t, "a").CheckpointState)
	})

	t.Run("sweep saves every requested checkpoint", func(t *testing.T) {
		h.cps.set(false, false)
		require.NoError(t, h.engine.checkpointIteration(ctx))
		for _, id := range []string{"a", "b", "c"} {
			task := h.store.task(t, id)
			assert.Equal(t, constants.CheckpointSaved, task.CheckpointState, id)
			assert.NotEmpty(t, task.CheckpointURI)
		}
		assert.Equal(t, constants.CheckpointNone, h.store.task(t, "idle").CheckpointState)
		assert.Equal(t, 3, h.cps.createdCount())
		assert.Len(t, h.store.recorded, 3)
	})

	t.Run("nothing left to do", func(t *testing.T) {
		require.NoError(t, h.engine.checkpointIteration(ctx))
		assert.Equal(t, 3, h.cps.createdCount())
	})
}

func TestReleaseIteration(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.project(t, "proj-1", 100000)
	h.limiter.SetRateLimit("proj-1", 1)
	h.task(t, "first", "proj-1", constants.ComplexitySimple, 100)
	h.task(t, "second", "proj-1", constants.ComplexitySimple, 100)
	h.task(t, "held", "proj-1", constants.ComplexitySimple, 100)

	require.Equal(t, constants.DecisionApproved, h.engine.TrackTaskExecution(ctx, "first").Status)
	require.Equal(t, constants.DecisionRateLimited, h.engine.TrackTaskExecution(ctx, "second").Status)
	_, err := h.engine.PauseTask(ctx, "held")
	require.NoError(t, err)

	require.NoError(t, h.engine.releaseIteration(ctx))
	assert.Equal(t, constants.TaskStatusPaused, h.store.task(t, "second").Status, "window still full")

	h.clock.Advance(61 * time.Second)
	require.NoError(t, h.engine.releaseIteration(ctx))
	assert.Equal(t, constants.TaskStatusPending, h.store.task(t, "second").Status)
	assert.False(t, h.engine.ws.isPaused("second"))
	assert.Equal(t, constants.TaskStatusPaused, h.store.task(t, "held").Status, "operator pause is kept")

	// Releasing peeks at the limiter, so the freed slot is still available.
	assert.Equal(t, constants.DecisionApproved, h.engine.TrackTaskExecution(ctx, "second").Status)
}

func TestReleaseIteration_OnePerProjectPerSweep(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.project(t, "proj-1", 100000)
	h.project(t, "proj-2", 100000)
	h.limiter.SetRateLimit("proj-1", 1)
	h.limiter.SetRateLimit("proj-2", 1)

	require.Equal(t, constants.DecisionApproved, h.engine.TrackTaskExecution(ctx, seedTask(t, h, "a0", "proj-1")).Status)
	require.Equal(t, constants.DecisionApproved, h.engine.TrackTaskExecution(ctx, seedTask(t, h, "b0", "proj-2")).Status)
	for _, id := range []string{"a1", "a2", "a3"} {
		require.Equal(t, constants.DecisionRateLimited, h.engine.TrackTaskExecution(ctx, seedTask(t, h, id, "proj-1")).Status)
	}
	require.Equal(t, constants.DecisionRateLimited, h.engine.TrackTaskExecution(ctx, seedTask(t, h, "b1", "proj-2")).Status)

	h.clock.Advance(61 * time.Second)
	require.NoError(t, h.engine.releaseIteration(ctx))

	assert.Equal(t, constants.TaskStatusPending, h.store.task(t, "a1").Status)
	assert.Equal(t, constants.TaskStatusPaused, h.store.task(t, "a2").Status)
	assert.Equal(t, constants.TaskStatusPaused, h.store.task(t, "a3").Status)
	assert.Equal(t, constants.TaskStatusPending, h.store.task(t, "b1").Status, "projects are capped independently")

	// The released task takes the slot, so the next sweep leaves the rest paused.
	require.Equal(t, constants.DecisionApproved, h.engine.TrackTaskExecution(ctx, "a1").Status)
	require.NoError(t, h.engine.releaseIteration(ctx))
	assert.Equal(t, constants.TaskStatusPaused, h.store.task(t, "a2").Status)
	assert.Equal(t, constants.TaskStatusPaused, h.store.task(t, "a3").Status)
}

func seedTask(t *testing.T, h *harness, id, projectID string) string {
	t.Helper()
	h.task(t, id, projectID, constants.ComplexitySimple, 100)
	return id
}

func TestReleaseIteration_DropsVanishedTasks(t *testing.T) {
	h := newHarness(t)
	h.engine.ws.pause("ghost", "proj-1", true)
	require.NoError(t, h.engine.releaseIteration(context.Background()))
	assert.False(t, h.engine.ws.isPaused("ghost"))
}

func TestMonitorLoops_FaultIsolation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WithIntervals(fastIntervals()))
	h.project(t, "proj-1", 100000)
	h.limiter.SetRateLimit("proj-1", 1)

	h.task(t, "cp", "proj-1", constants.ComplexityVeryComplex, 1000)
	_, err := h.engine.RecordProgress(ctx, "cp", 800)
	require.NoError(t, err)
	require.Equal(t, constants.DecisionCheckpointRequested, h.engine.TrackTaskExecution(ctx, "cp").Status)

	h.task(t, "limited", "proj-1", constants.ComplexitySimple, 100)
	require.Equal(t, constants.DecisionRateLimited, h.engine.TrackTaskExecution(ctx, "limited").Status)

	// The checkpoint loop panics on every iteration; the release loop must keep working.
	h.cps.set(false, true)
	done := startMonitoring(t, h.engine)
	defer func() {
		h.engine.Stop()
		<-done
	}()

	h.clock.Advance(61 * time.Second)
	require.Eventually(t, func() bool {
		return h.store.task(t, "limited").Status == constants.TaskStatusPending
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, h.engine.IsMonitoring())

	h.cps.set(false, false)
	require.Eventually(t, func() bool {
		return h.store.task(t, "cp").CheckpointState == constants.CheckpointSaved
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCheckpointIteration_WorkerPanic(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.project(t, "proj-1", 100000)
	h.task(t, "cp", "proj-1", constants.ComplexityVeryComplex, 1000)
	_, err := h.engine.RecordProgress(ctx, "cp", 800)
	require.NoError(t, err)
	require.Equal(t, constants.DecisionCheckpointRequested, h.engine.TrackTaskExecution(ctx, "cp").Status)

	h.cps.set(false, true)
	assert.NotPanics(t, func() {
		assert.NoError(t, h.engine.checkpointIteration(ctx))
	})
	assert.Equal(t, constants.CheckpointRequested, h.store.task(t, "cp").CheckpointState)

	h.cps.set(false, false)
	require.NoError(t, h.engine.checkpointIteration(ctx))
	assert.Equal(t, constants.CheckpointSaved, h.store.task(t, "cp").CheckpointState)
}

func TestStart_RestartWhileOldRunFinishes(t *testing.T) {
	h := newHarness(t, WithIntervals(fastIntervals()))
	gate := make(chan struct{})
	h.store.setListGate(gate)

	first := startMonitoring(t, h.engine)
	require.Eventually(t, func() bool { return h.store.listCallCount() > 0 }, time.Second, time.Millisecond,
		"the progress loop should be parked inside an iteration")

	h.engine.Stop()
	require.False(t, h.engine.IsMonitoring())
	h.store.setListGate(nil)

	second := startMonitoring(t, h.engine)
	close(gate)
	select {
	case err := <-first:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("first run did not finish")
	}

	assert.True(t, h.engine.IsMonitoring(), "the finished run must not clear the new run's state")

	h.engine.Stop()
	select {
	case err := <-second:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second run ignored Stop")
	}
	assert.False(t, h.engine.IsMonitoring())
}

func TestSafeIteration_RecoversPanics(t *testing.T) {
	h := newHarness(t)
	err := h.engine.safeIteration(context.Background(), "test", func(context.Context) error {
		panic("boom")
	})
	require.ErrorIs(t, err, tgerrors.ErrMonitoring)
	assert.Contains(t, err.Error(), "boom")
}
