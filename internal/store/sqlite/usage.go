package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mrz1836/tokengov/internal/domain"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
)

// AppendUsage inserts an immutable usage record. An empty id is generated.
func (s *Store) AppendUsage(ctx context.Context, r *domain.UsageRecord) error {
	return appendUsage(ctx, s.db, r)
}

func appendUsage(ctx context.Context, ex execer, r *domain.UsageRecord) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.TokensUsed < 0 {
		return tgerrors.Wrapf(tgerrors.ErrInvalidArgument, "tokens used must not be negative, got %d", r.TokensUsed)
	}

	meta := "{}"
	if len(r.Metadata) > 0 {
		b, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("store: encode usage metadata: %w", err)
		}
		meta = string(b)
	}

	_, err := ex.ExecContext(ctx,
		`INSERT INTO token_usage (id, project_id, task_id, agent_id, tokens_used, operation_type, metadata, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectID, r.TaskID, r.AgentID, r.TokensUsed, r.OperationType, meta, formatTime(r.Timestamp),
	)
	if isForeignKeyViolation(err) {
		return tgerrors.Wrapf(tgerrors.ErrProjectNotFound, "project %s", r.ProjectID)
	}
	if err != nil {
		return fmt.Errorf("store: append usage: %w", err)
	}
	return nil
}

// SumForProject returns the total tokens recorded against projectID.
func (s *Store) SumForProject(ctx context.Context, projectID string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(tokens_used), 0) FROM token_usage WHERE project_id = ?`, projectID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("store: sum usage for %s: %w", projectID, err)
	}
	return total, nil
}

// UsageHistory returns up to limit records for projectID, newest first.
func (s *Store) UsageHistory(ctx context.Context, projectID string, limit int) ([]*domain.UsageRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, task_id, agent_id, tokens_used, operation_type, metadata, timestamp
		 FROM token_usage WHERE project_id = ? ORDER BY timestamp DESC, id LIMIT ?`, projectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: usage history for %s: %w", projectID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.UsageRecord
	for rows.Next() {
		var (
			r        domain.UsageRecord
			meta, ts string
		)
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.TaskID, &r.AgentID, &r.TokensUsed, &r.OperationType, &meta, &ts); err != nil {
			return nil, fmt.Errorf("store: usage history for %s: %w", projectID, err)
		}
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
				return nil, fmt.Errorf("store: decode usage metadata: %w", err)
			}
		}
		if r.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
