package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/meetingbot/core/internal/models"
)

// UpsertCredential inserts or replaces the ciphertext stored for a
// (project, provider) pair. The caller (internal/services) is responsible
// for encrypting before this call and decrypting after GetCredential — this
// layer only ever sees opaque bytes.
func (s *Store) UpsertCredential(ctx context.Context, c *models.Credential) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO credentials (id, project_id, provider, ciphertext, created_at, updated_at)
		VALUES ($1,$2,$3,$4, now(), now())
		ON CONFLICT (project_id, provider)
		DO UPDATE SET ciphertext = EXCLUDED.ciphertext, updated_at = now()`,
		c.ID, c.ProjectID, c.Provider, c.Ciphertext)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

// GetCredential loads the ciphertext stored for a (project, provider) pair.
func (s *Store) GetCredential(ctx context.Context, projectID string, provider models.Provider) (*models.Credential, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, project_id, provider, ciphertext, created_at, updated_at
		FROM credentials WHERE project_id = $1 AND provider = $2`, projectID, provider)
	var c models.Credential
	err := row.Scan(&c.ID, &c.ProjectID, &c.Provider, &c.Ciphertext, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan credential: %w", err)
	}
	return &c, nil
}
