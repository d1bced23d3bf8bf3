package governor

import (
	"context"
	"fmt"

	"github.com/mrz1836/tokengov/internal/config"
	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
)

// SetThresholds replaces the warning and critical usage ratios. Both must be
// in (0,1] with warning below critical.
func (e *Engine) SetThresholds(warning, critical float64) error {
	if err := config.ValidateThresholds(warning, critical); err != nil {
		return err
	}

	e.thresholdMu.Lock()
	e.warning, e.critical = warning, critical
	e.thresholdMu.Unlock()

	e.logger.Info().Float64("warning", warning).Float64("critical", critical).Msg("alert thresholds updated")
	return nil
}

// Thresholds returns the current warning and critical usage ratios.
func (e *Engine) Thresholds() (warning, critical float64) {
	e.thresholdMu.RLock()
	defer e.thresholdMu.RUnlock()
	return e.warning, e.critical
}

// AlertLevelFor classifies a usage ratio against the current thresholds.
func (e *Engine) AlertLevelFor(ratio float64) constants.AlertLevel {
	warning, critical := e.Thresholds()
	switch {
	case ratio >= critical:
		return constants.AlertCritical
	case ratio >= warning:
		return constants.AlertWarning
	default:
		return constants.AlertInfo
	}
}

// CheckBudgetAlerts returns at most one alert for projectID: critical when
// usage reached the critical threshold, otherwise warning when it reached
// the warning threshold. Lookup failures are logged and yield no alerts.
func (e *Engine) CheckBudgetAlerts(ctx context.Context, projectID string) []domain.Alert {
	alerts, err := e.budgetAlerts(ctx, projectID)
	if err != nil {
		e.logger.Error().Err(err).Str("project_id", projectID).Msg("alert check failed")
		return nil
	}
	return alerts
}

func (e *Engine) budgetAlerts(ctx context.Context, projectID string) ([]domain.Alert, error) {
	project, err := e.getProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	used, err := e.usedTokens(ctx, projectID)
	if err != nil {
		return nil, err
	}

	ratio := float64(used) / float64(project.TokenBudget)
	alert := domain.Alert{
		Level:      e.AlertLevelFor(ratio),
		ProjectID:  projectID,
		UsageRatio: ratio,
		RaisedAt:   e.now(),
	}
	switch alert.Level {
	case constants.AlertCritical:
		alert.Message = fmt.Sprintf("Critical: Project %s has used %.1f%% of token budget", projectID, ratio*100)
		alert.Recommendation = constants.RecommendCritical
	case constants.AlertWarning:
		alert.Message = fmt.Sprintf("Warning: Project %s has used %.1f%% of token budget", projectID, ratio*100)
		alert.Recommendation = constants.RecommendWarning
	default:
		return []domain.Alert{}, nil
	}

	e.logger.Warn().
		Str("project_id", projectID).
		Str("level", alert.Level.String()).
		Float64("usage_ratio", ratio).
		Msg(alert.Message)
	if e.onAlert != nil {
		e.onAlert(ctx, alert)
	}
	return []domain.Alert{alert}, nil
}
