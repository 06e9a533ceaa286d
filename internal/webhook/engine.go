// Package webhook matches domain triggers against project subscriptions,
// enqueues delivery payloads, and runs the worker pool that signs each
// payload and drains the delivery queue with a fixed retry schedule.
package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meetingbot/core/internal/models"
	"github.com/meetingbot/core/internal/store"
)

// engineStore is the narrow slice of *internal/store.Store an Engine
// needs, so Fire's matching and enqueue logic can be unit-tested against
// an in-memory fake instead of a live Postgres connection.
type engineStore interface {
	ListActiveSubscriptions(ctx context.Context, projectID string, trigger models.TriggerType) ([]models.WebhookSubscription, error)
	EnqueueDelivery(ctx context.Context, a *models.WebhookDeliveryAttempt) error
}

// Engine matches triggers against active subscriptions and enqueues
// delivery attempts.
type Engine struct {
	store engineStore
}

// New builds an Engine over the given relational store.
func New(s *store.Store) *Engine {
	return &Engine{store: s}
}

// Fire matches trigger against every active subscription for projectID and
// enqueues one delivery attempt per match. discriminator distinguishes
// repeated firings of the same trigger for the same bot (e.g. a sequence
// number) so IdempotencyKey stays unique per logical event.
func (e *Engine) Fire(ctx context.Context, projectID, botID string, trigger models.TriggerType, discriminator string, data any) error {
	subs, err := e.store.ListActiveSubscriptions(ctx, projectID, trigger)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	payload, err := BuildPayload(trigger, botID, data, now)
	if err != nil {
		return err
	}

	for _, sub := range subs {
		if !sub.Matches(trigger) {
			continue
		}
		attempt := &models.WebhookDeliveryAttempt{
			ID:             uuid.NewString(),
			SubscriptionID: sub.ID,
			BotID:          botID,
			TriggerType:    trigger,
			IdempotencyKey: IdempotencyKey(trigger, botID, discriminator),
			Payload:        payload,
		}
		if err := e.store.EnqueueDelivery(ctx, attempt); err != nil {
			return fmt.Errorf("failed to enqueue delivery for subscription %s: %w", sub.ID, err)
		}
	}
	return nil
}
