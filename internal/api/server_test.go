package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/meetingbot/core/internal/api"
	"github.com/meetingbot/core/internal/models"
	"github.com/meetingbot/core/internal/realtime"
	"github.com/meetingbot/core/internal/services"
	"github.com/meetingbot/core/internal/statemachine"
	"github.com/meetingbot/core/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore backs every services.*Service used by the Server under test, so
// a full request round trip (gin routing -> binding -> service validation
// -> JSON encoding) can be exercised without a live Postgres connection.
type fakeStore struct {
	orgs     map[string]*models.Organization
	projects map[string]*models.Project
	bots     map[string]*models.Bot
	subs     map[string]*models.WebhookSubscription
	canLaunch bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orgs:      make(map[string]*models.Organization),
		projects:  make(map[string]*models.Project),
		bots:      make(map[string]*models.Bot),
		subs:      make(map[string]*models.WebhookSubscription),
		canLaunch: true,
	}
}

func (f *fakeStore) CreateOrganization(_ context.Context, o *models.Organization) error {
	f.orgs[o.ID] = o
	return nil
}
func (f *fakeStore) GetOrganization(_ context.Context, id string) (*models.Organization, error) {
	o, ok := f.orgs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return o, nil
}
func (f *fakeStore) CreateProject(_ context.Context, p *models.Project) error {
	f.projects[p.ID] = p
	return nil
}
func (f *fakeStore) GetProject(_ context.Context, id string) (*models.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}
func (f *fakeStore) CanLaunch(_ context.Context, organizationID string) (bool, error) {
	return f.canLaunch, nil
}
func (f *fakeStore) CreateBot(_ context.Context, b *models.Bot) (*models.Bot, error) {
	f.bots[b.ID] = b
	return b, nil
}
func (f *fakeStore) GetBot(_ context.Context, id string) (*models.Bot, error) {
	b, ok := f.bots[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return b, nil
}
func (f *fakeStore) Transition(_ context.Context, botID string, ev statemachine.Event, extra map[string]any, debit func(tx pgx.Tx, bot *models.Bot) error) (*models.Bot, bool, error) {
	b, ok := f.bots[botID]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	to, _, ok := statemachine.Validate(b.State, ev)
	if !ok {
		return b, false, nil
	}
	b.State = to
	return b, true, nil
}
func (f *fakeStore) GetPrimaryRecording(_ context.Context, botID string) (*models.Recording, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) ListUtterances(_ context.Context, recordingID string) ([]models.Utterance, error) {
	return nil, nil
}
func (f *fakeStore) InsertChatMessage(_ context.Context, m *models.ChatMessage) error {
	return nil
}
func (f *fakeStore) CreateSubscription(_ context.Context, sub *models.WebhookSubscription) error {
	f.subs[sub.ID] = sub
	return nil
}
func (f *fakeStore) GetSubscription(_ context.Context, id string) (*models.WebhookSubscription, error) {
	s, ok := f.subs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}
func (f *fakeStore) EventsSince(_ context.Context, channel string, afterID int64, limit int) ([]store.EventRow, error) {
	return nil, nil
}

func newTestServer(st *fakeStore) *api.Server {
	rt := realtime.NewManager(st, 0)
	return api.NewServer(
		services.NewBotService(st),
		services.NewOrganizationService(st),
		services.NewRecordingService(st),
		services.NewWebhookService(st),
		rt,
		discardLogger(),
	)
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzReturnsOK(t *testing.T) {
	srv := newTestServer(newFakeStore())
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

// Organization creation round-trips through gin binding and the service's
// validation, and GetOrganization reflects the same row back.
func TestOrganizationCreateAndGetRoundTrip(t *testing.T) {
	srv := newTestServer(newFakeStore())

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/v1/organizations", map[string]any{"name": "acme"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var org models.Organization
	if err := json.Unmarshal(rec.Body.Bytes(), &org); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if org.Name != "acme" {
		t.Fatalf("expected name acme, got %s", org.Name)
	}

	rec = doRequest(t, srv.Handler(), http.MethodGet, "/v1/organizations/"+org.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

// A validation failure surfaces as 400, not a 500.
func TestCreateOrganizationMissingNameReturns400(t *testing.T) {
	srv := newTestServer(newFakeStore())
	rec := doRequest(t, srv.Handler(), http.MethodPost, "/v1/organizations", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

// GetOrganization on an unknown ID surfaces as 404, per respondErr's
// services.ErrNotFound mapping.
func TestGetOrganizationMissingReturns404(t *testing.T) {
	srv := newTestServer(newFakeStore())
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/v1/organizations/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

// Creating a Bot for an Organization that can't afford to launch surfaces
// as 402 Payment Required, per respondErr's ErrInsufficientCredits mapping.
func TestCreateBotInsufficientCreditsReturns402(t *testing.T) {
	st := newFakeStore()
	st.orgs["org-1"] = &models.Organization{ID: "org-1", Name: "acme"}
	st.projects["proj-1"] = &models.Project{ID: "proj-1", OrganizationID: "org-1"}
	st.canLaunch = false
	srv := newTestServer(st)

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/v1/bots", map[string]any{
		"project_id": "proj-1", "meeting_url": "https://meet.google.com/abc", "platform": "google_meet",
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", rec.Code, rec.Body.String())
	}
}

// A full Bot create -> get -> chat -> leave flow through the real HTTP
// routes and the real service/statemachine validation.
func TestBotLifecycleThroughHTTP(t *testing.T) {
	st := newFakeStore()
	st.orgs["org-1"] = &models.Organization{ID: "org-1", Name: "acme"}
	st.projects["proj-1"] = &models.Project{ID: "proj-1", OrganizationID: "org-1"}
	srv := newTestServer(st)

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/v1/bots", map[string]any{
		"project_id": "proj-1", "meeting_url": "https://meet.google.com/abc", "platform": "google_meet",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var bot models.Bot
	if err := json.Unmarshal(rec.Body.Bytes(), &bot); err != nil {
		t.Fatalf("unmarshal bot: %v", err)
	}
	if bot.State != models.StateReady {
		t.Fatalf("expected state READY, got %s", bot.State)
	}

	rec = doRequest(t, srv.Handler(), http.MethodGet, "/v1/bots/"+bot.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, srv.Handler(), http.MethodPost, "/v1/bots/"+bot.ID+"/chat", map[string]any{
		"participant_id": "p-1", "text": "hi",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	// READY has no leave_cmd edge in the transition table; LeaveBot treats
	// a rejected transition as a no-op rather than an error.
	rec = doRequest(t, srv.Handler(), http.MethodPost, "/v1/bots/"+bot.ID+"/leave", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

// Webhook subscription create/get round-trips, and a missing-triggers
// validation failure surfaces as 400.
func TestWebhookSubscriptionCreateAndGet(t *testing.T) {
	srv := newTestServer(newFakeStore())

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/v1/webhooks/subscriptions", map[string]any{
		"project_id": "proj-1", "url": "https://example.com/hook",
		"triggers": []string{"bot.state_change"}, "secret": "s3cr3t",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var sub models.WebhookSubscription
	if err := json.Unmarshal(rec.Body.Bytes(), &sub); err != nil {
		t.Fatalf("unmarshal subscription: %v", err)
	}
	if !sub.IsActive {
		t.Fatal("expected new subscription to be active")
	}

	rec = doRequest(t, srv.Handler(), http.MethodGet, "/v1/webhooks/subscriptions/"+sub.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, srv.Handler(), http.MethodPost, "/v1/webhooks/subscriptions", map[string]any{
		"project_id": "proj-1", "url": "https://example.com/hook", "secret": "s3cr3t",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing triggers, got %d", rec.Code)
	}
}
