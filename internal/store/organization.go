package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meetingbot/core/internal/models"
)

// GetOrganization loads an Organization by ID.
func (s *Store) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, name, credits, allow_negative_credits, credit_rate_overrides,
		       credits_low_threshold, credits_low_notified_at, feature_flags, created_at
		FROM organizations WHERE id = $1`, id)
	return scanOrganization(row)
}

func scanOrganization(row pgx.Row) (*models.Organization, error) {
	var o models.Organization
	var ratesJSON, flagsJSON []byte
	err := row.Scan(&o.ID, &o.Name, &o.Credits, &o.AllowNegativeCredits, &ratesJSON,
		&o.CreditsLowThreshold, &o.CreditsLowNotifiedAt, &flagsJSON, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan organization: %w", err)
	}
	if err := json.Unmarshal(ratesJSON, &o.CreditRateOverrides); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credit rate overrides: %w", err)
	}
	if err := json.Unmarshal(flagsJSON, &o.FeatureFlags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal feature flags: %w", err)
	}
	return &o, nil
}

// CanLaunch reports whether an Organization may launch a new Bot: credits
// must be positive unless AllowNegativeCredits is set.
func (s *Store) CanLaunch(ctx context.Context, orgID string) (bool, error) {
	org, err := s.GetOrganization(ctx, orgID)
	if err != nil {
		return false, err
	}
	return org.Credits > 0 || org.AllowNegativeCredits, nil
}

// DebitCreditsTx atomically debits an Organization's credit balance inside
// an existing transaction (must be called from within the same tx as the
// terminal BotEvent insert — see Store.Transition's debit callback). It
// returns the resulting balance and whether a threshold crossing requires
// a credits_low webhook.
func DebitCreditsTx(ctx context.Context, tx pgx.Tx, orgID string, amount float64) (balance float64, crossedLow bool, err error) {
	var threshold float64
	var alreadyNotified *time.Time
	err = tx.QueryRow(ctx, `
		UPDATE organizations
		SET credits = credits - $1
		WHERE id = $2
		RETURNING credits, credits_low_threshold, credits_low_notified_at`,
		amount, orgID).Scan(&balance, &threshold, &alreadyNotified)
	if err != nil {
		return 0, false, fmt.Errorf("failed to debit credits: %w", err)
	}

	if balance <= threshold && alreadyNotified == nil {
		_, err = tx.Exec(ctx, `UPDATE organizations SET credits_low_notified_at = now() WHERE id = $1`, orgID)
		if err != nil {
			return 0, false, fmt.Errorf("failed to mark credits_low notified: %w", err)
		}
		crossedLow = true
	} else if balance > threshold && alreadyNotified != nil {
		// Balance recovered above threshold: clear the notification guard so
		// the webhook can fire again on the next crossing.
		_, err = tx.Exec(ctx, `UPDATE organizations SET credits_low_notified_at = NULL WHERE id = $1`, orgID)
		if err != nil {
			return 0, false, fmt.Errorf("failed to clear credits_low notified: %w", err)
		}
	}

	return balance, crossedLow, nil
}

// CreateOrganization inserts a new Organization.
func (s *Store) CreateOrganization(ctx context.Context, o *models.Organization) error {
	ratesJSON, err := json.Marshal(o.CreditRateOverrides)
	if err != nil {
		return err
	}
	flagsJSON, err := json.Marshal(o.FeatureFlags)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO organizations (id, name, credits, allow_negative_credits, credit_rate_overrides,
		                            credits_low_threshold, feature_flags, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7, now())`,
		o.ID, o.Name, o.Credits, o.AllowNegativeCredits, ratesJSON, o.CreditsLowThreshold, flagsJSON)
	if err != nil {
		return fmt.Errorf("failed to insert organization: %w", err)
	}
	return nil
}

// CreateProject inserts a new Project.
func (s *Store) CreateProject(ctx context.Context, p *models.Project) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO projects (id, organization_id, name, created_at) VALUES ($1,$2,$3, now())`,
		p.ID, p.OrganizationID, p.Name)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

// GetProject loads a Project by ID.
func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	row := s.Pool.QueryRow(ctx, `SELECT id, organization_id, name, created_at FROM projects WHERE id = $1`, id)
	var p models.Project
	if err := row.Scan(&p.ID, &p.OrganizationID, &p.Name, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}
	return &p, nil
}
