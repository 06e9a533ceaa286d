package services

import (
	"context"
	"testing"

	"github.com/meetingbot/core/internal/models"
	"github.com/meetingbot/core/internal/store"
)

type fakeWebhookServiceStore struct {
	subs map[string]*models.WebhookSubscription
}

func newFakeWebhookServiceStore() *fakeWebhookServiceStore {
	return &fakeWebhookServiceStore{subs: make(map[string]*models.WebhookSubscription)}
}

func (f *fakeWebhookServiceStore) CreateSubscription(_ context.Context, sub *models.WebhookSubscription) error {
	f.subs[sub.ID] = sub
	return nil
}

func (f *fakeWebhookServiceStore) GetSubscription(_ context.Context, id string) (*models.WebhookSubscription, error) {
	s, ok := f.subs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func TestCreateSubscriptionValidatesRequiredFields(t *testing.T) {
	svc := NewWebhookService(newFakeWebhookServiceStore())
	ctx := context.Background()
	base := CreateSubscriptionRequest{
		ProjectID: "proj-1", URL: "https://example.com/hook",
		Triggers: []models.TriggerType{models.TriggerBotStateChange}, Secret: "s3cr3t",
	}

	missingProject := base
	missingProject.ProjectID = ""
	if _, err := svc.CreateSubscription(ctx, missingProject); !IsValidationError(err) {
		t.Fatalf("expected validation error for missing project_id, got %v", err)
	}

	missingURL := base
	missingURL.URL = ""
	if _, err := svc.CreateSubscription(ctx, missingURL); !IsValidationError(err) {
		t.Fatalf("expected validation error for missing url, got %v", err)
	}

	missingTriggers := base
	missingTriggers.Triggers = nil
	if _, err := svc.CreateSubscription(ctx, missingTriggers); !IsValidationError(err) {
		t.Fatalf("expected validation error for missing triggers, got %v", err)
	}

	missingSecret := base
	missingSecret.Secret = ""
	if _, err := svc.CreateSubscription(ctx, missingSecret); !IsValidationError(err) {
		t.Fatalf("expected validation error for missing secret, got %v", err)
	}
}

func TestCreateSubscriptionIsActiveByDefault(t *testing.T) {
	svc := NewWebhookService(newFakeWebhookServiceStore())
	sub, err := svc.CreateSubscription(context.Background(), CreateSubscriptionRequest{
		ProjectID: "proj-1", URL: "https://example.com/hook",
		Triggers: []models.TriggerType{models.TriggerBotStateChange}, Secret: "s3cr3t",
	})
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	if !sub.IsActive {
		t.Fatal("expected a newly created subscription to be active")
	}
}

func TestGetSubscriptionMissingReturnsNotFound(t *testing.T) {
	svc := NewWebhookService(newFakeWebhookServiceStore())
	if _, err := svc.GetSubscription(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
