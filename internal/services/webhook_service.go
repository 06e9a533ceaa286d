package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meetingbot/core/internal/models"
)

// webhookServiceStore is the slice of *store.Store WebhookService needs,
// narrowed to an interface so the subscription CRUD validation path can be
// unit-tested without a live Postgres connection.
type webhookServiceStore interface {
	CreateSubscription(ctx context.Context, sub *models.WebhookSubscription) error
	GetSubscription(ctx context.Context, id string) (*models.WebhookSubscription, error)
}

// WebhookService is the validated entry point for managing a project's
// outbound webhook subscriptions. Delivery itself is internal/webhook's
// job; this service only owns the subscription CRUD surface.
type WebhookService struct {
	store webhookServiceStore
}

// NewWebhookService builds a WebhookService over s.
func NewWebhookService(s webhookServiceStore) *WebhookService {
	return &WebhookService{store: s}
}

// CreateSubscriptionRequest is the validated input to CreateSubscription.
type CreateSubscriptionRequest struct {
	ProjectID string
	URL       string
	Triggers  []models.TriggerType
	Secret    string
}

// CreateSubscription validates req and registers a new active subscription.
func (s *WebhookService) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*models.WebhookSubscription, error) {
	if req.ProjectID == "" {
		return nil, NewValidationError("project_id", "required")
	}
	if req.URL == "" {
		return nil, NewValidationError("url", "required")
	}
	if len(req.Triggers) == 0 {
		return nil, NewValidationError("triggers", "at least one trigger type is required")
	}
	if req.Secret == "" {
		return nil, NewValidationError("secret", "required")
	}

	sub := &models.WebhookSubscription{
		ID:        uuid.NewString(),
		ProjectID: req.ProjectID,
		URL:       req.URL,
		Triggers:  req.Triggers,
		Secret:    req.Secret,
		IsActive:  true,
	}
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create webhook subscription: %w", err)
	}
	return sub, nil
}

// GetSubscription loads a WebhookSubscription by ID.
func (s *WebhookService) GetSubscription(ctx context.Context, id string) (*models.WebhookSubscription, error) {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return sub, nil
}
