package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
)

const projectColumns = `id, name, description, token_budget, priority_tier, owner, created_at, updated_at`

// CreateProject inserts p. It returns ErrProjectExists for a duplicate id.
func (s *Store) CreateProject(ctx context.Context, p *domain.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.TokenBudget, string(p.PriorityTier), p.Owner,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return tgerrors.Wrapf(tgerrors.ErrProjectExists, "project %s", p.ID)
	}
	if err != nil {
		return fmt.Errorf("store: create project %s: %w", p.ID, err)
	}
	return nil
}

// GetProject returns the project with id or ErrProjectNotFound.
func (s *Store) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tgerrors.Wrapf(tgerrors.ErrProjectNotFound, "project %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get project %s: %w", id, err)
	}
	return p, nil
}

// UpdateProject overwrites the mutable fields of an existing project.
func (s *Store) UpdateProject(ctx context.Context, p *domain.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, description = ?, token_budget = ?, priority_tier = ?, owner = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, p.Description, p.TokenBudget, string(p.PriorityTier), p.Owner, formatTime(p.UpdatedAt), p.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update project %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tgerrors.Wrapf(tgerrors.ErrProjectNotFound, "project %s", p.ID)
	}
	return nil
}

// ListProjects returns every project ordered by creation time.
func (s *Store) ListProjects(ctx context.Context) ([]*domain.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list projects: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProject(row rowScanner) (*domain.Project, error) {
	var (
		p                domain.Project
		tier             string
		created, updated string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.TokenBudget, &tier, &p.Owner, &created, &updated); err != nil {
		return nil, err
	}

	var err error
	p.PriorityTier = constants.PriorityTier(tier)
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &p, nil
}
