package webhook

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/meetingbot/core/internal/models"
)

type fakeEngineStore struct {
	subs      []models.WebhookSubscription
	enqueued  []models.WebhookDeliveryAttempt
	listErr   error
	enqueueErr error
}

func (f *fakeEngineStore) ListActiveSubscriptions(ctx context.Context, projectID string, trigger models.TriggerType) ([]models.WebhookSubscription, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.WebhookSubscription
	for _, s := range f.subs {
		if s.ProjectID == projectID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeEngineStore) EnqueueDelivery(ctx context.Context, a *models.WebhookDeliveryAttempt) error {
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.enqueued = append(f.enqueued, *a)
	return nil
}

// Fire enqueues one delivery per active subscription that matches the
// trigger, skipping inactive subscriptions and ones subscribed to other
// triggers.
func TestEngineFireEnqueuesOnlyMatchingActiveSubscriptions(t *testing.T) {
	st := &fakeEngineStore{subs: []models.WebhookSubscription{
		{ID: "sub-1", ProjectID: "proj-1", IsActive: true, Triggers: []models.TriggerType{models.TriggerBotStateChange}, Secret: "s1", URL: "https://a.example/hook"},
		{ID: "sub-2", ProjectID: "proj-1", IsActive: true, Triggers: []models.TriggerType{models.TriggerChatMessagesUpdate}, Secret: "s2", URL: "https://b.example/hook"},
		{ID: "sub-3", ProjectID: "proj-1", IsActive: false, Triggers: []models.TriggerType{models.TriggerBotStateChange}, Secret: "s3", URL: "https://c.example/hook"},
	}}
	e := &Engine{store: st}

	if err := e.Fire(context.Background(), "proj-1", "bot-1", models.TriggerBotStateChange, "JOINING", map[string]string{"state": "JOINING"}); err != nil {
		t.Fatalf("Fire returned error: %v", err)
	}

	if len(st.enqueued) != 1 {
		t.Fatalf("expected exactly one enqueued delivery, got %d", len(st.enqueued))
	}
	got := st.enqueued[0]
	if got.SubscriptionID != "sub-1" {
		t.Fatalf("expected delivery for sub-1, got %s", got.SubscriptionID)
	}
	if got.IdempotencyKey != IdempotencyKey(models.TriggerBotStateChange, "bot-1", "JOINING") {
		t.Fatalf("unexpected idempotency key: %s", got.IdempotencyKey)
	}

	var payload Payload
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}
	if payload.Trigger != models.TriggerBotStateChange || payload.BotID != "bot-1" {
		t.Fatalf("unexpected payload envelope: %+v", payload)
	}
}

// Fire is a no-op when no subscription exists for the project.
func TestEngineFireSkipsEnqueueWhenNoSubscriptions(t *testing.T) {
	st := &fakeEngineStore{}
	e := &Engine{store: st}

	if err := e.Fire(context.Background(), "proj-1", "bot-1", models.TriggerBotStateChange, "x", nil); err != nil {
		t.Fatalf("Fire returned error: %v", err)
	}
	if len(st.enqueued) != 0 {
		t.Fatalf("expected no enqueued deliveries, got %d", len(st.enqueued))
	}
}
