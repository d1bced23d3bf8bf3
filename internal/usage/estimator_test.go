package usage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/tokengov/internal/clock"
	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
	"github.com/mrz1836/tokengov/internal/testutil"
)

var now = time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC) //nolint:gochecknoglobals // test fixture

// memLog is an in-memory Log with error injection.
type memLog struct {
	mu        sync.Mutex
	records   []domain.OperationRecord
	appendErr error
	readErr   error
}

func (l *memLog) Append(_ context.Context, rec domain.OperationRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.appendErr != nil {
		return l.appendErr
	}
	l.records = append(l.records, rec)
	return nil
}

func (l *memLog) ReadSince(_ context.Context, since time.Time) ([]domain.OperationRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readErr != nil {
		return nil, l.readErr
	}
	var out []domain.OperationRecord
	for _, r := range l.records {
		if !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func completed(opType, project string, est, actual int64, success bool, age time.Duration) domain.OperationRecord {
	rec := domain.OperationRecord{
		OperationType:   opType,
		Phase:           constants.PhaseComplete,
		ProjectID:       project,
		EstimatedTokens: est,
		ActualTokens:    actual,
		Success:         success,
		Timestamp:       now.Add(-age),
	}
	if est > 0 && actual > 0 {
		rec.Efficiency = Efficiency(est, actual)
	}
	return rec
}

func newTestEstimator(log Log) *Estimator {
	return New(log, WithClock(clock.NewMock(now)), WithLogger(zerolog.Nop()))
}

func TestEstimate_Defaults(t *testing.T) {
	e := newTestEstimator(&memLog{})
	ctx := context.Background()

	tests := []struct {
		opType     string
		complexity any
		want       int64
	}{
		{constants.OperationProjectCreation, nil, 500},
		{constants.OperationTaskRegistration, "simple", 200},
		{constants.OperationCheckpointSave, "complex", 2000},
		{constants.OperationStatusReport, constants.ComplexityVeryComplex, 500},
		{constants.OperationErrorHandling, nil, 300},
		{constants.OperationPRCreation, nil, 800},
		{constants.OperationRepoSetup, "very_complex", 7500},
		{constants.OperationTaskExecution, "complex", 2000},
		{"unknown_op", nil, 500},
		{"unknown_op", "bogus", 500},
	}

	for _, tt := range tests {
		t.Run(tt.opType, func(t *testing.T) {
			opCtx := map[string]any{}
			if tt.complexity != nil {
				opCtx[ContextComplexity] = tt.complexity
			}
			assert.Equal(t, tt.want, e.Estimate(ctx, tt.opType, opCtx))
		})
	}
}

func TestEstimate_FromHistory(t *testing.T) {
	log := &memLog{records: []domain.OperationRecord{
		completed("op", "p", 0, 100, true, time.Hour),
		completed("op", "p", 0, 201, true, 2*time.Hour),
		completed("op", "p", 0, 9999, false, time.Hour),         // failed
		completed("op", "p", 0, 0, true, time.Hour),             // no actual
		completed("other", "p", 0, 5000, true, time.Hour),       // other type
		completed("op", "p", 0, 7777, true, 31*24*time.Hour),    // outside window
		{OperationType: "op", Phase: constants.PhaseStart, ActualTokens: 8888, Success: true, Timestamp: now},
	}}
	e := newTestEstimator(log)
	ctx := context.Background()

	// Integer mean of 100 and 201.
	assert.Equal(t, int64(150), e.Estimate(ctx, "op", nil))
	assert.Equal(t, int64(225), e.Estimate(ctx, "op", map[string]any{ContextComplexity: "complex"}))
	assert.Equal(t, int64(450), e.Estimate(ctx, "op", map[string]any{ContextComplexity: "very_complex"}))
}

func TestEstimate_FileCountScaling(t *testing.T) {
	log := &memLog{records: []domain.OperationRecord{
		completed(constants.OperationRepoSetup, "p", 0, 1000, true, time.Hour),
		completed(constants.OperationPRCreation, "p", 0, 1000, true, time.Hour),
		completed(constants.OperationTaskExecution, "p", 0, 1000, true, time.Hour),
	}}
	e := newTestEstimator(log)
	ctx := context.Background()

	assert.Equal(t, int64(1000), e.Estimate(ctx, constants.OperationRepoSetup, nil), "default of 10 files")
	assert.Equal(t, int64(1000), e.Estimate(ctx, constants.OperationRepoSetup, map[string]any{ContextFileCount: 20}))
	assert.Equal(t, int64(1300), e.Estimate(ctx, constants.OperationRepoSetup, map[string]any{ContextFileCount: 21}))
	assert.Equal(t, int64(1800), e.Estimate(ctx, constants.OperationPRCreation, map[string]any{ContextFileCount: float64(51)}))
	assert.Equal(t, int64(2700), e.Estimate(ctx, constants.OperationPRCreation,
		map[string]any{ContextFileCount: int64(60), ContextComplexity: "complex"}))
	assert.Equal(t, int64(1000), e.Estimate(ctx, constants.OperationTaskExecution, map[string]any{ContextFileCount: 500}))
}

func TestEstimate_ReadErrorFallsBack(t *testing.T) {
	e := newTestEstimator(&memLog{readErr: testutil.ErrMockStoreUnavailable})
	assert.Equal(t, int64(5000), e.Estimate(context.Background(), constants.OperationTaskExecution,
		map[string]any{ContextComplexity: "very_complex"}))
}

func TestTrackAndComplete(t *testing.T) {
	mock := clock.NewMock(now)
	log := &memLog{}
	e := New(log, WithClock(mock))
	ctx := context.Background()

	tr, err := e.TrackOperation(ctx, constants.OperationTaskExecution, map[string]any{ContextProjectID: "p1"}, 1000)
	require.NoError(t, err)
	assert.Equal(t, "p1", tr.ProjectID)
	assert.Contains(t, tr.OperationID, constants.OperationTaskExecution+"_")

	mock.Advance(90 * time.Second)
	rec, err := e.CompleteOperation(ctx, tr, 2000, true, "")
	require.NoError(t, err)
	assert.Equal(t, constants.PhaseComplete, rec.Phase)
	assert.InDelta(t, 0.5, rec.Efficiency, 1e-9)
	assert.InDelta(t, 90.0, rec.DurationSeconds, 1e-9)

	require.Len(t, log.records, 2)
	assert.Equal(t, constants.PhaseStart, log.records[0].Phase)
	assert.Equal(t, tr.OperationID, log.records[1].OperationID)

	// The completed record now feeds estimates.
	assert.Equal(t, int64(2000), e.Estimate(ctx, constants.OperationTaskExecution, nil))
}

func TestCompleteOperation_NoEfficiencyWithoutEstimate(t *testing.T) {
	e := newTestEstimator(&memLog{})
	ctx := context.Background()

	tr, err := e.TrackOperation(ctx, "op", nil, 0)
	require.NoError(t, err)
	rec, err := e.CompleteOperation(ctx, tr, -5, false, "boom")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.ActualTokens)
	assert.Zero(t, rec.Efficiency)
	assert.Equal(t, "boom", rec.Error)
}

func TestTrackOperation_AppendError(t *testing.T) {
	e := newTestEstimator(&memLog{appendErr: testutil.ErrMockStoreUnavailable})
	_, err := e.TrackOperation(context.Background(), "op", nil, 10)
	require.ErrorIs(t, err, testutil.ErrMockStoreUnavailable)
}

func TestAnalyzeEfficiency(t *testing.T) {
	log := &memLog{records: []domain.OperationRecord{
		completed("op", "p1", 1000, 2000, true, time.Hour),   // 0.5
		completed("op", "p1", 1000, 1000, true, time.Hour),   // 1.0
		completed("op", "p1", 500, 0, false, time.Hour),      // no score
		completed("op", "p2", 1000, 1000, true, time.Hour),   // other project
		completed("op", "p1", 1, 1000, true, 8*24*time.Hour), // outside window
	}}
	e := newTestEstimator(log)

	report, err := e.AnalyzeEfficiency(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, constants.EfficiencyOK, report.Status)
	assert.Equal(t, 3, report.OperationsCount)
	assert.Equal(t, int64(2500), report.TotalEstimated)
	assert.Equal(t, int64(3000), report.TotalActual)
	assert.InDelta(t, 2500.0/3000.0, report.OverallEfficiency, 1e-9)
	assert.InDelta(t, 0.75, report.AverageEfficiency, 1e-9)
	assert.Equal(t, 7, report.PeriodDays)
}

func TestAnalyzeEfficiency_NoData(t *testing.T) {
	e := newTestEstimator(&memLog{})

	report, err := e.AnalyzeEfficiency(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, constants.EfficiencyNoData, report.Status)
	assert.Equal(t, "p1", report.ProjectID)

	_, err = newTestEstimator(&memLog{readErr: testutil.ErrMockStoreUnavailable}).AnalyzeEfficiency(context.Background(), "p1")
	require.Error(t, err)
}

func TestRecentUsage(t *testing.T) {
	log := &memLog{records: []domain.OperationRecord{
		completed("a", "p1", 0, 100, true, time.Hour),
		completed("a", "p2", 0, 50, false, 2*time.Hour),
		completed("b", "p1", 0, 25, true, 3*time.Hour),
		completed("b", "p1", 0, 999, true, 48*time.Hour),
		{OperationType: "a", Phase: constants.PhaseStart, Timestamp: now},
	}}
	e := newTestEstimator(log)

	summary, err := e.RecentUsage(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.OperationsCount)
	assert.Equal(t, int64(175), summary.TotalTokens)
	assert.Equal(t, map[string]int64{"a": 150, "b": 25}, summary.ByOperation)

	summary, err = e.RecentUsage(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PeriodDays)
}

func TestEfficiency(t *testing.T) {
	assert.InDelta(t, 0.5, Efficiency(1000, 2000), 1e-9)
	assert.InDelta(t, 0.5, Efficiency(2000, 1000), 1e-9)
	assert.InDelta(t, 1.0, Efficiency(0, 0), 1e-9)
	assert.InDelta(t, 1.0, Efficiency(700, 700), 1e-9)
	assert.Zero(t, Efficiency(0, 100))
}

func TestEstimator_WithFileLog(t *testing.T) {
	l, err := NewFileLog(filepath.Join(t.TempDir(), "ops.jsonl"), zerolog.Nop())
	require.NoError(t, err)
	e := New(l, WithClock(clock.NewMock(now)), WithWindows(1, 1))
	ctx := context.Background()

	tr, err := e.TrackOperation(ctx, "deploy", map[string]any{ContextProjectID: "p", ContextFileCount: 3}, 400)
	require.NoError(t, err)
	_, err = e.CompleteOperation(ctx, tr, 800, true, "")
	require.NoError(t, err)

	assert.Equal(t, int64(800), e.Estimate(ctx, "deploy", nil))

	report, err := e.AnalyzeEfficiency(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, 1, report.OperationsCount)
	assert.InDelta(t, 0.5, report.AverageEfficiency, 1e-9)
	assert.Equal(t, 1, report.PeriodDays)
}
