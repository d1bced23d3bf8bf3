// Package usage estimates token cost per operation from a history of past
// operations and reports how accurate earlier estimates were.
package usage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mrz1836/tokengov/internal/clock"
	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
)

// Log is the storage behind an Estimator.
type Log interface {
	Append(ctx context.Context, rec domain.OperationRecord) error
	ReadSince(ctx context.Context, since time.Time) ([]domain.OperationRecord, error)
}

// Context keys understood by Estimate.
const (
	ContextComplexity = "complexity"
	ContextFileCount  = "file_count"
	ContextProjectID  = "project_id"
	ContextTaskID     = "task_id"
)

// defaultEstimates is used when an operation type has no usable history.
var defaultEstimates = map[string]int64{ //nolint:gochecknoglobals // lookup table
	constants.OperationProjectCreation:  500,
	constants.OperationTaskRegistration: 200,
	constants.OperationCheckpointSave:   1000,
	constants.OperationStatusReport:     100,
	constants.OperationErrorHandling:    300,
	constants.OperationPRCreation:       800,
	constants.OperationRepoSetup:        1500,
	constants.OperationTaskExecution:    1000,
}

const fallbackEstimate int64 = 500

// Tracking identifies an operation between TrackOperation and CompleteOperation.
type Tracking struct {
	OperationID     string
	OperationType   string
	ProjectID       string
	Context         map[string]any
	EstimatedTokens int64
	StartedAt       time.Time
}

// Estimator produces token estimates and efficiency reports.
type Estimator struct {
	log            Log
	clock          clock.Clock
	logger         zerolog.Logger
	historyDays    int
	efficiencyDays int
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(e *Estimator) {
		e.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Estimator) {
		e.logger = logger.With().Str("component", "usage").Logger()
	}
}

// WithWindows sets the history windows, in days, used by Estimate and
// AnalyzeEfficiency. Non-positive values keep the defaults.
func WithWindows(historyDays, efficiencyDays int) Option {
	return func(e *Estimator) {
		if historyDays > 0 {
			e.historyDays = historyDays
		}
		if efficiencyDays > 0 {
			e.efficiencyDays = efficiencyDays
		}
	}
}

// New returns an Estimator reading and writing log.
func New(log Log, opts ...Option) *Estimator {
	e := &Estimator{
		log:            log,
		clock:          clock.RealClock{},
		logger:         zerolog.Nop(),
		historyDays:    constants.DefaultHistoryDays,
		efficiencyDays: constants.DefaultEfficiencyDays,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TrackOperation records the start of an operation.
func (e *Estimator) TrackOperation(ctx context.Context, opType string, opCtx map[string]any, estimated int64) (*Tracking, error) {
	tr := &Tracking{
		OperationID:     opType + "_" + uuid.New().String()[:8],
		OperationType:   opType,
		ProjectID:       stringFromContext(opCtx, ContextProjectID),
		Context:         opCtx,
		EstimatedTokens: estimated,
		StartedAt:       e.clock.Now().UTC(),
	}

	err := e.log.Append(ctx, domain.OperationRecord{
		OperationID:     tr.OperationID,
		OperationType:   opType,
		Phase:           constants.PhaseStart,
		ProjectID:       tr.ProjectID,
		Context:         opCtx,
		EstimatedTokens: estimated,
		Timestamp:       tr.StartedAt,
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// CompleteOperation records the end of a tracked operation and returns the
// record written.
func (e *Estimator) CompleteOperation(ctx context.Context, tr *Tracking, actual int64, success bool, errText string) (*domain.OperationRecord, error) {
	now := e.clock.Now().UTC()
	if actual < 0 {
		actual = 0
	}

	rec := domain.OperationRecord{
		OperationID:     tr.OperationID,
		OperationType:   tr.OperationType,
		Phase:           constants.PhaseComplete,
		ProjectID:       tr.ProjectID,
		Context:         tr.Context,
		EstimatedTokens: tr.EstimatedTokens,
		ActualTokens:    actual,
		Success:         success,
		Error:           errText,
		DurationSeconds: now.Sub(tr.StartedAt).Seconds(),
		Timestamp:       now,
	}
	if tr.EstimatedTokens > 0 && actual > 0 {
		rec.Efficiency = Efficiency(tr.EstimatedTokens, actual)
	}

	if err := e.log.Append(ctx, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Estimate predicts the token cost of an operation of type opType.
//
// With history in the window, the integer mean of successful completed
// operations of that type is scaled by 1.5 (complex) or 3.0 (very complex).
// Without history a per-type default is scaled by 2 or 5 instead. For
// repository-scale operations a file_count above 20 or 50 scales the
// historical mean further by 1.3 or 1.8.
func (e *Estimator) Estimate(ctx context.Context, opType string, opCtx map[string]any) int64 {
	since := e.clock.Now().Add(-time.Duration(e.historyDays) * 24 * time.Hour)
	records, err := e.log.ReadSince(ctx, since)
	if err != nil {
		e.logger.Error().Err(err).Str("operation_type", opType).Msg("failed to read usage history, using default estimate")
		return DefaultEstimate(opType, opCtx)
	}

	var (
		total int64
		count int64
	)
	for _, r := range records {
		if r.Phase != constants.PhaseComplete || !r.Success || r.OperationType != opType || r.ActualTokens <= 0 {
			continue
		}
		total += r.ActualTokens
		count++
	}
	if count == 0 {
		return DefaultEstimate(opType, opCtx)
	}

	estimate := adjustForContext(total/count, opType, opCtx)
	e.logger.Debug().
		Str("operation_type", opType).
		Int64("samples", count).
		Int64("estimate", estimate).
		Msg("estimated from history")
	return estimate
}

// DefaultEstimate returns the history-free estimate for opType.
func DefaultEstimate(opType string, opCtx map[string]any) int64 {
	base, ok := defaultEstimates[opType]
	if !ok {
		base = fallbackEstimate
	}

	switch complexityFromContext(opCtx) {
	case constants.ComplexityComplex:
		return base * 2
	case constants.ComplexityVeryComplex:
		return base * 5
	default:
		return base
	}
}

func adjustForContext(base int64, opType string, opCtx map[string]any) int64 {
	adjusted := base

	switch complexityFromContext(opCtx) {
	case constants.ComplexityComplex:
		adjusted = int64(float64(adjusted) * 1.5)
	case constants.ComplexityVeryComplex:
		adjusted = int64(float64(adjusted) * 3.0)
	}

	if opType == constants.OperationRepoSetup || opType == constants.OperationPRCreation {
		files := intFromContext(opCtx, ContextFileCount, constants.DefaultFileCount)
		switch {
		case files > 50:
			adjusted = int64(float64(adjusted) * 1.8)
		case files > 20:
			adjusted = int64(float64(adjusted) * 1.3)
		}
	}
	return adjusted
}

// AnalyzeEfficiency reports estimate accuracy for projectID over the
// efficiency window.
func (e *Estimator) AnalyzeEfficiency(ctx context.Context, projectID string) (domain.EfficiencyReport, error) {
	report := domain.EfficiencyReport{
		Status:     constants.EfficiencyNoData,
		ProjectID:  projectID,
		PeriodDays: e.efficiencyDays,
	}

	since := e.clock.Now().Add(-time.Duration(e.efficiencyDays) * 24 * time.Hour)
	records, err := e.log.ReadSince(ctx, since)
	if err != nil {
		return report, err
	}

	var scores []float64
	for _, r := range records {
		if r.Phase != constants.PhaseComplete || r.ProjectID != projectID {
			continue
		}
		report.OperationsCount++
		report.TotalEstimated += r.EstimatedTokens
		report.TotalActual += r.ActualTokens
		if r.Efficiency > 0 {
			scores = append(scores, r.Efficiency)
		}
	}
	if report.OperationsCount == 0 {
		return report, nil
	}

	report.Status = constants.EfficiencyOK
	report.OverallEfficiency = 1.0
	if report.TotalActual > 0 {
		report.OverallEfficiency = float64(report.TotalEstimated) / float64(report.TotalActual)
	}
	report.AverageEfficiency = 1.0
	if len(scores) > 0 {
		var sum float64
		for _, s := range scores {
			sum += s
		}
		report.AverageEfficiency = sum / float64(len(scores))
	}
	return report, nil
}

// RecentUsage totals the completed operations of the last days days.
// ByOperation maps operation type to tokens used.
func (e *Estimator) RecentUsage(ctx context.Context, days int) (domain.UsageSummary, error) {
	if days <= 0 {
		days = 1
	}
	summary := domain.UsageSummary{PeriodDays: days, ByOperation: make(map[string]int64)}

	since := e.clock.Now().Add(-time.Duration(days) * 24 * time.Hour)
	records, err := e.log.ReadSince(ctx, since)
	if err != nil {
		return summary, err
	}

	for _, r := range records {
		if r.Phase != constants.PhaseComplete {
			continue
		}
		summary.OperationsCount++
		summary.TotalTokens += r.ActualTokens
		summary.ByOperation[r.OperationType] += r.ActualTokens
	}
	return summary, nil
}

// Efficiency scores how close an estimate was to the actual count as
// min/max, so over- and under-estimates by the same factor score equally.
// Two zeros score 1.
func Efficiency(estimated, actual int64) float64 {
	if estimated <= 0 && actual <= 0 {
		return 1.0
	}
	lo, hi := estimated, actual
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi <= 0 || lo <= 0 {
		return 0
	}
	return float64(lo) / float64(hi)
}
