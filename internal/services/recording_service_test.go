package services

import (
	"context"
	"testing"

	"github.com/meetingbot/core/internal/models"
	"github.com/meetingbot/core/internal/store"
)

type fakeRecordingServiceStore struct {
	recordings map[string]*models.Recording
	utterances map[string][]models.Utterance
	chats      []models.ChatMessage
}

func newFakeRecordingServiceStore() *fakeRecordingServiceStore {
	return &fakeRecordingServiceStore{
		recordings: make(map[string]*models.Recording),
		utterances: make(map[string][]models.Utterance),
	}
}

func (f *fakeRecordingServiceStore) GetPrimaryRecording(_ context.Context, botID string) (*models.Recording, error) {
	r, ok := f.recordings[botID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r, nil
}

func (f *fakeRecordingServiceStore) ListUtterances(_ context.Context, recordingID string) ([]models.Utterance, error) {
	return f.utterances[recordingID], nil
}

func (f *fakeRecordingServiceStore) InsertChatMessage(_ context.Context, m *models.ChatMessage) error {
	f.chats = append(f.chats, *m)
	return nil
}

func TestPostChatMessageRequiresBotIDAndText(t *testing.T) {
	svc := NewRecordingService(newFakeRecordingServiceStore())
	ctx := context.Background()

	if err := svc.PostChatMessage(ctx, PostChatMessageRequest{Text: "hi"}); !IsValidationError(err) {
		t.Fatalf("expected validation error for missing bot_id, got %v", err)
	}
	if err := svc.PostChatMessage(ctx, PostChatMessageRequest{BotID: "bot-1"}); !IsValidationError(err) {
		t.Fatalf("expected validation error for missing text, got %v", err)
	}
}

func TestPostChatMessageRecordsMessage(t *testing.T) {
	fake := newFakeRecordingServiceStore()
	svc := NewRecordingService(fake)

	err := svc.PostChatMessage(context.Background(), PostChatMessageRequest{
		BotID: "bot-1", ParticipantID: "p-1", Text: "hello from the dashboard",
	})
	if err != nil {
		t.Fatalf("PostChatMessage: %v", err)
	}
	if len(fake.chats) != 1 {
		t.Fatalf("expected one recorded chat message, got %d", len(fake.chats))
	}
	if fake.chats[0].BotID != "bot-1" || fake.chats[0].Text != "hello from the dashboard" {
		t.Fatalf("unexpected recorded message: %+v", fake.chats[0])
	}
}

func TestGetPrimaryRecordingMissingReturnsNotFound(t *testing.T) {
	svc := NewRecordingService(newFakeRecordingServiceStore())
	if _, err := svc.GetPrimaryRecording(context.Background(), "bot-1"); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestListUtterancesReturnsStoredRows(t *testing.T) {
	fake := newFakeRecordingServiceStore()
	fake.utterances["rec-1"] = []models.Utterance{{ID: "u-1", Transcript: "hello"}}
	svc := NewRecordingService(fake)

	rows, err := svc.ListUtterances(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("ListUtterances: %v", err)
	}
	if len(rows) != 1 || rows[0].Transcript != "hello" {
		t.Fatalf("unexpected utterances: %+v", rows)
	}
}
