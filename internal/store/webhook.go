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

// ListActiveSubscriptions returns every active subscription for a project
// that matches the given trigger.
func (s *Store) ListActiveSubscriptions(ctx context.Context, projectID string, trigger models.TriggerType) ([]models.WebhookSubscription, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, project_id, url, triggers, secret, is_active, created_at
		FROM webhook_subscriptions
		WHERE project_id = $1 AND is_active = TRUE AND triggers @> $2`,
		projectID, fmt.Sprintf(`["%s"]`, trigger))
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []models.WebhookSubscription
	for rows.Next() {
		sub, err := scanSubscriptionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

func scanSubscriptionRow(rows pgx.Rows) (*models.WebhookSubscription, error) {
	var sub models.WebhookSubscription
	var triggersJSON []byte
	if err := rows.Scan(&sub.ID, &sub.ProjectID, &sub.URL, &triggersJSON, &sub.Secret, &sub.IsActive, &sub.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	if err := json.Unmarshal(triggersJSON, &sub.Triggers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal triggers: %w", err)
	}
	return &sub, nil
}

// EnqueueDelivery inserts a PENDING WebhookDeliveryAttempt, or is a no-op
// if one already exists with the same idempotency key for this
// subscription, so re-delivery never creates duplicate side effects.
func (s *Store) EnqueueDelivery(ctx context.Context, a *models.WebhookDeliveryAttempt) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO webhook_delivery_attempts
			(id, subscription_id, bot_id, trigger_type, idempotency_key, payload, next_attempt_at, status)
		VALUES ($1,$2,$3,$4,$5,$6, now(), 'PENDING')
		ON CONFLICT (subscription_id, idempotency_key) DO NOTHING`,
		a.ID, a.SubscriptionID, a.BotID, a.TriggerType, a.IdempotencyKey, a.Payload)
	if err != nil {
		return fmt.Errorf("failed to enqueue webhook delivery: %w", err)
	}
	return nil
}

// ClaimDeliveries claims up to limit PENDING attempts whose next_attempt_at
// has arrived, using FOR UPDATE SKIP LOCKED so multiple delivery workers
// never race on the same attempt.
func (s *Store) ClaimDeliveries(ctx context.Context, limit int) ([]models.WebhookDeliveryAttempt, error) {
	var out []models.WebhookDeliveryAttempt
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, subscription_id, bot_id, trigger_type, idempotency_key, payload, attempt_count,
			       last_attempt_at, next_attempt_at, status, response_body_list, succeeded_at, created_at
			FROM webhook_delivery_attempts
			WHERE status = 'PENDING' AND next_attempt_at <= now()
			ORDER BY next_attempt_at
			FOR UPDATE SKIP LOCKED
			LIMIT $1`, limit)
		if err != nil {
			return fmt.Errorf("failed to select claimable deliveries: %w", err)
		}
		defer rows.Close()

		var ids []string
		for rows.Next() {
			a, err := scanDeliveryRow(rows)
			if err != nil {
				return err
			}
			out = append(out, *a)
			ids = append(ids, a.ID)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if len(ids) == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `UPDATE webhook_delivery_attempts SET next_attempt_at = now() + interval '60 seconds' WHERE id = ANY($1)`, ids)
		return err
	})
	return out, err
}

func scanDeliveryRow(rows pgx.Rows) (*models.WebhookDeliveryAttempt, error) {
	var a models.WebhookDeliveryAttempt
	var responseBodyJSON []byte
	if err := rows.Scan(&a.ID, &a.SubscriptionID, &a.BotID, &a.TriggerType, &a.IdempotencyKey, &a.Payload,
		&a.AttemptCount, &a.LastAttemptAt, &a.NextAttemptAt, &a.Status, &responseBodyJSON, &a.SucceededAt, &a.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan delivery attempt: %w", err)
	}
	if err := json.Unmarshal(responseBodyJSON, &a.ResponseBodyList); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response body list: %w", err)
	}
	return &a, nil
}

// RecordDeliveryResult appends one delivery attempt's outcome: increments
// attempt_count, appends the (truncated) response body, and either marks
// SUCCESS, schedules the next retry offset, or marks FAILURE once the
// maximum attempt count is exhausted.
func (s *Store) RecordDeliveryResult(ctx context.Context, attemptID string, success bool, responseBody string, nextAttemptAt *time.Time) error {
	status := "PENDING"
	var succeededAt *time.Time
	if success {
		status = "SUCCESS"
		now := time.Now()
		succeededAt = &now
	} else if nextAttemptAt == nil {
		status = "FAILURE"
	}

	_, err := s.Pool.Exec(ctx, `
		UPDATE webhook_delivery_attempts
		SET attempt_count = attempt_count + 1,
		    last_attempt_at = now(),
		    next_attempt_at = COALESCE($1, next_attempt_at),
		    status = $2,
		    response_body_list = response_body_list || to_jsonb($3::text),
		    succeeded_at = $4
		WHERE id = $5`, nextAttemptAt, status, responseBody, succeededAt, attemptID)
	if err != nil {
		return fmt.Errorf("failed to record delivery result: %w", err)
	}
	return nil
}

// GetSubscription loads one subscription (for secret/URL lookup during delivery).
func (s *Store) GetSubscription(ctx context.Context, id string) (*models.WebhookSubscription, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, project_id, url, triggers, secret, is_active, created_at
		FROM webhook_subscriptions WHERE id = $1`, id)
	var sub models.WebhookSubscription
	var triggersJSON []byte
	if err := row.Scan(&sub.ID, &sub.ProjectID, &sub.URL, &triggersJSON, &sub.Secret, &sub.IsActive, &sub.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if err := json.Unmarshal(triggersJSON, &sub.Triggers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal triggers: %w", err)
	}
	return &sub, nil
}

// CreateSubscription inserts a new WebhookSubscription.
func (s *Store) CreateSubscription(ctx context.Context, sub *models.WebhookSubscription) error {
	triggersJSON, err := json.Marshal(sub.Triggers)
	if err != nil {
		return fmt.Errorf("failed to marshal triggers: %w", err)
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO webhook_subscriptions (id, project_id, url, triggers, secret, is_active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6, now())`, sub.ID, sub.ProjectID, sub.URL, triggersJSON, sub.Secret, sub.IsActive)
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}
