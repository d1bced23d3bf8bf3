package governor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
)

func TestRecordUsage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.project(t, "proj-1", 1000)
	h.clock.Advance(time.Minute)

	rec, alerts, err := h.engine.RecordUsage(ctx, &domain.UsageRecord{
		ProjectID:     "proj-1",
		AgentID:       "planner",
		TokensUsed:    850,
		OperationType: constants.OperationStatusReport,
		Metadata:      map[string]any{"model": "large"},
		Timestamp:     time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, testStart.Add(time.Minute), rec.Timestamp, "records are stamped by the engine")
	require.Len(t, alerts, 1)
	assert.Equal(t, constants.AlertWarning, alerts[0].Level)

	records := h.store.usageRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "planner", records[0].AgentID)
	assert.Equal(t, "large", records[0].Metadata["model"])

	h.task(t, "task-1", "proj-1", constants.ComplexitySimple, 200)
	assert.Equal(t, constants.DecisionBlocked, h.engine.TrackTaskExecution(ctx, "task-1").Status,
		"recorded usage counts against the budget")
}

func TestRecordUsage_Rejects(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.project(t, "proj-1", 1000)

	tests := []struct {
		name string
		rec  *domain.UsageRecord
		want error
	}{
		{"nil record", nil, tgerrors.ErrInvalidArgument},
		{"no project", &domain.UsageRecord{OperationType: "x", TokensUsed: 1}, tgerrors.ErrInvalidArgument},
		{"no operation", &domain.UsageRecord{ProjectID: "proj-1", TokensUsed: 1}, tgerrors.ErrInvalidArgument},
		{"negative tokens", &domain.UsageRecord{ProjectID: "proj-1", OperationType: "x", TokensUsed: -1}, tgerrors.ErrInvalidArgument},
		{"unknown project", &domain.UsageRecord{ProjectID: "ghost", OperationType: "x", TokensUsed: 1}, tgerrors.ErrProjectNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := h.engine.RecordUsage(ctx, tt.rec)
			require.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, h.store.usageRecords())

	h.store.setAppendErr(assert.AnError)
	_, _, err := h.engine.RecordUsage(ctx, &domain.UsageRecord{ProjectID: "proj-1", OperationType: "x", TokensUsed: 1})
	require.ErrorIs(t, err, assert.AnError)
}
