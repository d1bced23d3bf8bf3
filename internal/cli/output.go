package cli

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
)

// printer writes command results in the selected output format.
// Text output groups digits ("12,500 tokens").
type printer struct {
	w      io.Writer
	format string
	p      *message.Printer
}

func newPrinter(cmd *cobra.Command, s *session) *printer {
	return &printer{
		w:      cmd.OutOrStdout(),
		format: s.flags.Output,
		p:      message.NewPrinter(language.English),
	}
}

func (p *printer) isJSON() bool {
	return p.format == OutputJSON
}

// result prints v as JSON, or runs text when the output is human readable.
func (p *printer) result(v any, text func()) error {
	if p.isJSON() {
		return encodeJSONIndented(p.w, v)
	}
	text()
	return nil
}

func (p *printer) line(format string, args ...any) {
	_, _ = p.p.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) field(name string, format string, args ...any) {
	_, _ = p.p.Fprintf(p.w, "  %-16s "+format+"\n", append([]any{name + ":"}, args...)...)
}

// encodeJSONIndented encodes a value as indented JSON to the writer.
func encodeJSONIndented(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (p *printer) decision(d *domain.Decision) {
	subject := d.TaskID
	if subject == "" {
		subject = d.ProjectID
	}
	p.line("%s: %s", subject, d.Status)

	if d.Reason != "" {
		p.field("reason", "%s", d.Reason)
	}
	if d.Error != "" {
		p.field("error", "%s", d.Error)
	}
	if d.Required > 0 || d.Available > 0 {
		p.field("required", "%d tokens", d.Required)
		p.field("available", "%d tokens", d.Available)
	}
	if d.TokenBudget > 0 {
		p.field("budget", "%d tokens", d.TokenBudget)
	}
	if d.EstimatedTokens > 0 {
		p.field("estimate", "%d tokens", d.EstimatedTokens)
	}
	if d.Status == constants.DecisionRateLimited {
		p.field("retry after", "%ds", d.RetryAfter)
	}
	if d.CheckpointURI != "" {
		p.field("checkpoint", "%s", d.CheckpointURI)
	}
	if d.Recommendation != "" {
		p.field("recommendation", "%s", d.Recommendation)
	}
}

func (p *printer) completion(r *domain.CompletionResult) {
	p.line("%s: %s", r.TaskID, r.Status)
	if r.Error != "" {
		p.field("error", "%s", r.Error)
		return
	}
	p.field("tokens used", "%d", r.TokensUsed)
	p.field("efficiency", "%.2f", r.Efficiency)
	p.alerts(r.Alerts)
}

func (p *printer) alerts(alerts []domain.Alert) {
	for _, a := range alerts {
		p.line("  [%s] %s", strings.ToUpper(a.Level.String()), a.Message)
		if a.Recommendation != "" {
			p.line("      %s", a.Recommendation)
		}
	}
}

func (p *printer) task(t *domain.Task) {
	p.line("%s (%s)", t.ID, t.Name)
	p.field("project", "%s", t.ProjectID)
	p.field("status", "%s", t.Status)
	p.field("complexity", "%s", t.Complexity)
	p.field("tokens", "%d / %d (%.1f%%)", t.ActualTokens, t.EstimatedTokens, t.CompletionPercentage())
	p.field("checkpoint", "%s", t.CheckpointState)
	if t.CheckpointURI != "" {
		p.field("checkpoint uri", "%s", t.CheckpointURI)
	}
	if t.StartedAt != nil {
		p.field("started", "%s", t.StartedAt.Format(time.RFC3339))
	}
	if t.CompletedAt != nil {
		p.field("completed", "%s", t.CompletedAt.Format(time.RFC3339))
	}
	if t.ErrorMessage != "" {
		p.field("error", "%s", t.ErrorMessage)
	}
}

func (p *printer) projectStatus(st *domain.ProjectStatus) {
	state := "inactive"
	if st.Active {
		state = "active"
	}
	p.line("%s (%s) %s", st.ProjectID, st.Name, state)
	p.field("budget", "%d tokens", st.Budget.Total)
	p.field("used", "%d tokens (%.1f%%)", st.Budget.Used, st.Budget.Percentage)
	p.field("remaining", "%d tokens", st.Budget.Remaining)
	p.field("alert level", "%s", st.Budget.AlertLevel)
	p.field("tasks", "%d total, %d pending, %d running, %d paused, %d completed, %d failed",
		st.Tasks.Total, st.Tasks.Pending, st.Tasks.InProgress, st.Tasks.Paused, st.Tasks.Completed, st.Tasks.Failed)
	p.efficiency(st.Efficiency)
	if st.Monitoring.RateLimited {
		p.field("rate limited", "yes, %d task(s) paused", st.Monitoring.PausedTasks)
	}
}

func (p *printer) efficiency(r domain.EfficiencyReport) {
	if r.Status != constants.EfficiencyOK {
		p.field("efficiency", "no data in the last %d days", r.PeriodDays)
		return
	}
	p.field("efficiency", "%.2f overall, %.2f average over %d operations",
		r.OverallEfficiency, r.AverageEfficiency, r.OperationsCount)
}
