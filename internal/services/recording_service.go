package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meetingbot/core/internal/models"
)

// recordingServiceStore is the slice of *store.Store RecordingService
// needs, narrowed to an interface so the chat-ingestion validation path can
// be unit-tested without a live Postgres connection.
type recordingServiceStore interface {
	GetPrimaryRecording(ctx context.Context, botID string) (*models.Recording, error)
	ListUtterances(ctx context.Context, recordingID string) ([]models.Utterance, error)
	InsertChatMessage(ctx context.Context, m *models.ChatMessage) error
}

// RecordingService is the validated read path for a Bot's recording and
// transcript data. Writes during an active recording go straight through
// internal/controller and internal/pipeline, which already hold the Bot's
// row lock and don't need request-shaped validation — this service exists
// for the api layer's read/list surface plus the one external-facing write,
// chat ingestion.
type RecordingService struct {
	store recordingServiceStore
}

// NewRecordingService builds a RecordingService over s.
func NewRecordingService(s recordingServiceStore) *RecordingService {
	return &RecordingService{store: s}
}

// GetPrimaryRecording loads the non-per-participant Recording row for botID.
func (s *RecordingService) GetPrimaryRecording(ctx context.Context, botID string) (*models.Recording, error) {
	r, err := s.store.GetPrimaryRecording(ctx, botID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return r, nil
}

// ListUtterances returns every transcribed utterance for a recording, in
// sequence order.
func (s *RecordingService) ListUtterances(ctx context.Context, recordingID string) ([]models.Utterance, error) {
	rows, err := s.store.ListUtterances(ctx, recordingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list utterances: %w", err)
	}
	return rows, nil
}

// PostChatMessageRequest is the validated input to PostChatMessage.
type PostChatMessageRequest struct {
	BotID         string
	ParticipantID string
	Text          string
}

// PostChatMessage validates and records an in-meeting chat message
// delivered through a channel other than the meeting adapter itself (e.g.
// a moderator posting from an external dashboard that the Bot relays).
func (s *RecordingService) PostChatMessage(ctx context.Context, req PostChatMessageRequest) error {
	if req.BotID == "" {
		return NewValidationError("bot_id", "required")
	}
	if req.Text == "" {
		return NewValidationError("text", "required")
	}

	msg := &models.ChatMessage{
		ID:            uuid.NewString(),
		BotID:         req.BotID,
		ParticipantID: req.ParticipantID,
		Text:          req.Text,
	}
	if err := s.store.InsertChatMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to record chat message: %w", err)
	}
	return nil
}
