package services

import (
	"context"
	"testing"

	"github.com/meetingbot/core/internal/models"
)

type fakeCredentialStore struct {
	rows map[string]*models.Credential
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{rows: make(map[string]*models.Credential)}
}

func (f *fakeCredentialStore) key(projectID string, provider models.Provider) string {
	return projectID + ":" + string(provider)
}

func (f *fakeCredentialStore) UpsertCredential(_ context.Context, c *models.Credential) error {
	f.rows[f.key(c.ProjectID, c.Provider)] = c
	return nil
}

func (f *fakeCredentialStore) GetCredential(_ context.Context, projectID string, provider models.Provider) (*models.Credential, error) {
	c, ok := f.rows[f.key(projectID, provider)]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func TestCredentialRoundTripsThroughEncryption(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	fake := newFakeCredentialStore()
	svc, err := NewCredentialService(fake, key)
	if err != nil {
		t.Fatalf("NewCredentialService: %v", err)
	}

	ctx := context.Background()
	if err := svc.PutCredential(ctx, "proj-1", models.ProviderDeepgram, "sk-deepgram-abc123"); err != nil {
		t.Fatalf("PutCredential: %v", err)
	}

	stored := fake.rows[fake.key("proj-1", models.ProviderDeepgram)]
	if string(stored.Ciphertext) == "sk-deepgram-abc123" {
		t.Fatal("credential was stored as plaintext")
	}

	got, err := svc.GetCredential(ctx, "proj-1", models.ProviderDeepgram)
	if err != nil {
		t.Fatalf("GetCredential: %v", err)
	}
	if got != "sk-deepgram-abc123" {
		t.Fatalf("got %q, want original secret", got)
	}
}

func TestGetCredentialMissingReturnsNotFound(t *testing.T) {
	key := make([]byte, 32)
	svc, err := NewCredentialService(newFakeCredentialStore(), key)
	if err != nil {
		t.Fatalf("NewCredentialService: %v", err)
	}
	if _, err := svc.GetCredential(context.Background(), "proj-1", models.ProviderS3); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
