package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/meetingbot/core/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordedResult struct {
	attemptID     string
	success       bool
	body          string
	nextAttemptAt *time.Time
}

type fakeDeliveryStore struct {
	mu      sync.Mutex
	claimed []models.WebhookDeliveryAttempt
	subs    map[string]*models.WebhookSubscription
	results []recordedResult
}

func (f *fakeDeliveryStore) ClaimDeliveries(ctx context.Context, limit int) ([]models.WebhookDeliveryAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.claimed
	f.claimed = nil
	return out, nil
}

func (f *fakeDeliveryStore) GetSubscription(ctx context.Context, id string) (*models.WebhookSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[id], nil
}

func (f *fakeDeliveryStore) RecordDeliveryResult(ctx context.Context, attemptID string, success bool, responseBody string, nextAttemptAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, recordedResult{attemptID: attemptID, success: success, body: responseBody, nextAttemptAt: nextAttemptAt})
	return nil
}

// A successful delivery signs the request body with the subscription's
// secret, sets the trigger header, and records success with no retry
// scheduled.
func TestDeliverOneSignsAndRecordsSuccess(t *testing.T) {
	var gotSignature, gotTrigger string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Webhook-Signature")
		gotTrigger = r.Header.Get("X-Meetingbot-Trigger")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := &fakeDeliveryStore{subs: map[string]*models.WebhookSubscription{
		"sub-1": {ID: "sub-1", URL: srv.URL, Secret: "topsecret"},
	}}
	d := &Delivery{
		store:  st,
		cfg:    DeliveryConfig{ConnectTimeout: time.Second, TotalTimeout: 5 * time.Second, MaxBodyBytes: 4096},
		client: &http.Client{Timeout: 5 * time.Second},
		log:    discardLogger(),
		inFlight: make(map[string]*sync.Mutex),
	}

	attempt := models.WebhookDeliveryAttempt{
		ID: "attempt-1", SubscriptionID: "sub-1", BotID: "bot-1",
		TriggerType: models.TriggerBotStateChange, Payload: []byte(`{"hello":"world"}`),
	}
	d.deliverOne(context.Background(), attempt)

	wantSig := "sha256=" + Sign("topsecret", []byte(`{"hello":"world"}`))
	if gotSignature != wantSig {
		t.Fatalf("expected signature header %q, got %q", wantSig, gotSignature)
	}
	if gotTrigger != string(models.TriggerBotStateChange) {
		t.Fatalf("expected trigger header %q, got %q", models.TriggerBotStateChange, gotTrigger)
	}
	if string(gotBody) != `{"hello":"world"}` {
		t.Fatalf("unexpected request body: %s", gotBody)
	}

	if len(st.results) != 1 {
		t.Fatalf("expected one recorded result, got %d", len(st.results))
	}
	res := st.results[0]
	if !res.success {
		t.Fatalf("expected success, got failure: %+v", res)
	}
	if res.nextAttemptAt != nil {
		t.Fatalf("expected no retry scheduled on success, got %v", res.nextAttemptAt)
	}
}

// A non-2xx response records failure and schedules the next attempt per
// the fixed retry schedule.
func TestDeliverOneRecordsFailureAndSchedulesRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	st := &fakeDeliveryStore{subs: map[string]*models.WebhookSubscription{
		"sub-1": {ID: "sub-1", URL: srv.URL, Secret: "s"},
	}}
	d := &Delivery{
		store:    st,
		cfg:      DeliveryConfig{ConnectTimeout: time.Second, TotalTimeout: 5 * time.Second, MaxBodyBytes: 4096},
		client:   &http.Client{Timeout: 5 * time.Second},
		log:      discardLogger(),
		inFlight: make(map[string]*sync.Mutex),
	}

	attempt := models.WebhookDeliveryAttempt{
		ID: "attempt-1", SubscriptionID: "sub-1", BotID: "bot-1",
		TriggerType: models.TriggerBotStateChange, Payload: []byte(`{}`), AttemptCount: 0,
	}
	before := time.Now()
	d.deliverOne(context.Background(), attempt)

	if len(st.results) != 1 {
		t.Fatalf("expected one recorded result, got %d", len(st.results))
	}
	res := st.results[0]
	if res.success {
		t.Fatal("expected failure on a 500 response")
	}
	if res.nextAttemptAt == nil {
		t.Fatal("expected a retry to be scheduled")
	}
	wantOffset, ok := NextAttemptOffset(1)
	if !ok {
		t.Fatal("expected attempt count 1 to have a retry offset")
	}
	if res.nextAttemptAt.Before(before.Add(wantOffset)) {
		t.Fatalf("expected next_attempt_at at least %s after the call, got %s", wantOffset, res.nextAttemptAt.Sub(before))
	}
}

// DrainOnce delivers every attempt it claims: two queued attempts for a
// live subscription produce two HTTP requests and two recorded results.
func TestDrainOnceProcessesEveryClaimedAttempt(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := &fakeDeliveryStore{
		subs: map[string]*models.WebhookSubscription{
			"sub-1": {ID: "sub-1", URL: srv.URL, Secret: "s"},
		},
		claimed: []models.WebhookDeliveryAttempt{
			{ID: "a1", SubscriptionID: "sub-1", BotID: "bot-1", Payload: []byte(`{}`)},
			{ID: "a2", SubscriptionID: "sub-1", BotID: "bot-2", Payload: []byte(`{}`)},
		},
	}
	d := &Delivery{
		store:    st,
		cfg:      DeliveryConfig{ConnectTimeout: time.Second, TotalTimeout: 5 * time.Second, MaxBodyBytes: 4096, ClaimBatch: 20},
		client:   &http.Client{Timeout: 5 * time.Second},
		log:      discardLogger(),
		inFlight: make(map[string]*sync.Mutex),
	}

	d.drainOnce(context.Background())

	if hits != 2 {
		t.Fatalf("expected both claimed attempts to be delivered, got %d hits", hits)
	}
	if len(st.results) != 2 {
		t.Fatalf("expected two recorded results, got %d", len(st.results))
	}
}
