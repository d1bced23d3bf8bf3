// Package domain provides shared domain types for the tokengov governance system.
// These types are used across all internal packages to ensure consistent data structures.
//
// This package follows strict import rules:
//   - CAN import: internal/constants, internal/errors, standard library
//   - MUST NOT import: any other internal packages
//
// All JSON field names use snake_case.
package domain

import (
	"strings"
	"time"

	"github.com/mrz1836/tokengov/internal/constants"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
)

// Project is the billing and ownership unit. Every task belongs to exactly
// one project and draws from its token budget.
//
// Example JSON representation:
//
//	{
//	    "id": "proj-1a2b3c4d",
//	    "name": "docs-rewrite",
//	    "token_budget": 100000,
//	    "priority_tier": "tier_1",
//	    "owner": "platform-team",
//	    "created_at": "2026-10-19T10:00:00Z",
//	    "updated_at": "2026-10-19T10:00:00Z"
//	}
type Project struct {
	// ID is the unique identifier for the project.
	ID string `json:"id"`

	// Name is a short human-readable label.
	Name string `json:"name"`

	// Description is optional free text.
	Description string `json:"description,omitempty"`

	// TokenBudget is the total number of tokens the project may consume.
	// Always positive.
	TokenBudget int64 `json:"token_budget"`

	// PriorityTier is tier_1 (high) or tier_2 (low).
	PriorityTier constants.PriorityTier `json:"priority_tier"`

	// Owner is the only principal allowed to update the project.
	Owner string `json:"owner"`

	// CreatedAt is when the project was registered.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the project was last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the invariants of a project record.
func (p *Project) Validate() error {
	if p == nil {
		return tgerrors.Wrap(tgerrors.ErrInvalidProject, "project is nil")
	}
	if strings.TrimSpace(p.ID) == "" {
		return tgerrors.Wrap(tgerrors.ErrInvalidProject, "id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return tgerrors.Wrap(tgerrors.ErrInvalidProject, "name is required")
	}
	if p.TokenBudget <= 0 {
		return tgerrors.Wrapf(tgerrors.ErrInvalidProject, "token budget must be positive, got %d", p.TokenBudget)
	}
	if !p.PriorityTier.IsValid() {
		return tgerrors.Wrapf(tgerrors.ErrInvalidEnum, "priority tier %q", p.PriorityTier)
	}
	return nil
}

// CanBeModifiedBy reports whether requester may update the project.
// A project without an owner can be modified by anyone.
func (p *Project) CanBeModifiedBy(requester string) bool {
	return p.Owner == "" || p.Owner == requester
}
