package governor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/tokengov/internal/constants"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
)

func TestCheckBudgetAlerts(t *testing.T) {
	tests := []struct {
		name    string
		used    int64
		level   constants.AlertLevel
		message string
		advice  string
	}{
		{"below warning", 500, "", "", ""},
		{"warning at 0.81", 810, constants.AlertWarning, "Warning: Project proj-1 has used 81.0% of token budget", constants.RecommendWarning},
		{"critical at 0.96", 960, constants.AlertCritical, "Critical: Project proj-1 has used 96.0% of token budget", constants.RecommendCritical},
		{"over budget", 1200, constants.AlertCritical, "Critical: Project proj-1 has used 120.0% of token budget", constants.RecommendCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.project(t, "proj-1", 1000)
			h.spend(t, "proj-1", tt.used)

			alerts := h.engine.CheckBudgetAlerts(context.Background(), "proj-1")
			if tt.level == "" {
				assert.Empty(t, alerts)
				assert.Zero(t, h.alerts.count())
				return
			}
			require.Len(t, alerts, 1)
			assert.Equal(t, tt.level, alerts[0].Level)
			assert.Equal(t, tt.message, alerts[0].Message)
			assert.Equal(t, tt.advice, alerts[0].Recommendation)
			assert.Equal(t, testStart, alerts[0].RaisedAt)
			assert.Equal(t, 1, h.alerts.count())
		})
	}
}

func TestCheckBudgetAlerts_UnknownProject(t *testing.T) {
	h := newHarness(t)
	assert.Empty(t, h.engine.CheckBudgetAlerts(context.Background(), "ghost"))
}

func TestSetThresholds(t *testing.T) {
	h := newHarness(t)
	h.project(t, "proj-1", 1000)
	h.spend(t, "proj-1", 550)

	assert.Empty(t, h.engine.CheckBudgetAlerts(context.Background(), "proj-1"))

	require.NoError(t, h.engine.SetThresholds(0.5, 0.6))
	w, c := h.engine.Thresholds()
	assert.InDelta(t, 0.5, w, 1e-9)
	assert.InDelta(t, 0.6, c, 1e-9)

	alerts := h.engine.CheckBudgetAlerts(context.Background(), "proj-1")
	require.Len(t, alerts, 1)
	assert.Equal(t, constants.AlertWarning, alerts[0].Level)

	// Critical can move on its own.
	require.NoError(t, h.engine.SetThresholds(0.5, 0.55))
	alerts = h.engine.CheckBudgetAlerts(context.Background(), "proj-1")
	require.Len(t, alerts, 1)
	assert.Equal(t, constants.AlertCritical, alerts[0].Level)

	for _, pair := range [][2]float64{{0.9, 0.8}, {0.8, 0.8}, {0, 0.5}, {0.5, 1.1}} {
		err := h.engine.SetThresholds(pair[0], pair[1])
		require.ErrorIs(t, err, tgerrors.ErrInvalidThresholds, "pair %v", pair)
	}
	w, c = h.engine.Thresholds()
	assert.InDelta(t, 0.5, w, 1e-9, "rejected thresholds leave the old ones in place")
	assert.InDelta(t, 0.55, c, 1e-9)
}

func TestGetProjectStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.project(t, "proj-1", 1000)
	h.limiter.SetRateLimit("proj-1", 2)
	h.task(t, "done", "proj-1", constants.ComplexitySimple, 100)
	h.task(t, "running", "proj-1", constants.ComplexitySimple, 100)
	h.task(t, "waiting", "proj-1", constants.ComplexitySimple, 100)
	h.task(t, "pending", "proj-1", constants.ComplexitySimple, 100)

	require.Equal(t, constants.DecisionApproved, h.engine.TrackTaskExecution(ctx, "done").Status)
	require.Equal(t, constants.DecisionApproved, h.engine.TrackTaskExecution(ctx, "running").Status)
	require.Equal(t, constants.DecisionRateLimited, h.engine.TrackTaskExecution(ctx, "waiting").Status)
	require.Equal(t, constants.DecisionCompleted, h.engine.HandleTaskCompletion(ctx, "done", 850).Status)

	status, err := h.engine.GetProjectStatus(ctx, "proj-1")
	require.NoError(t, err)

	assert.Equal(t, "proj-1", status.Name)
	assert.True(t, status.Active)
	assert.Equal(t, int64(1000), status.Budget.Total)
	assert.Equal(t, int64(850), status.Budget.Used)
	assert.Equal(t, int64(150), status.Budget.Remaining)
	assert.InDelta(t, 85.0, status.Budget.Percentage, 1e-9)
	assert.Equal(t, constants.AlertWarning, status.Budget.AlertLevel)

	assert.Equal(t, 4, status.Tasks.Total)
	assert.Equal(t, 1, status.Tasks.Completed)
	assert.Equal(t, 1, status.Tasks.InProgress)
	assert.Equal(t, 1, status.Tasks.Paused)
	assert.Equal(t, 1, status.Tasks.Pending)

	assert.Equal(t, 1, status.Monitoring.PausedTasks)
	assert.True(t, status.Monitoring.RateLimited)
	assert.Equal(t, constants.EfficiencyOK, status.Efficiency.Status)

	_, err = h.engine.GetProjectStatus(ctx, "ghost")
	require.ErrorIs(t, err, tgerrors.ErrProjectNotFound)
}

func TestGetProjectStatus_RemainingNeverNegative(t *testing.T) {
	h := newHarness(t)
	h.project(t, "proj-1", 1000)
	h.spend(t, "proj-1", 1500)

	status, err := h.engine.GetProjectStatus(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Zero(t, status.Budget.Remaining)
	assert.Equal(t, constants.AlertCritical, status.Budget.AlertLevel)
	assert.Equal(t, constants.EfficiencyNoData, status.Efficiency.Status)
}
