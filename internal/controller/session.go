package controller

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meetingbot/core/internal/models"
	"github.com/meetingbot/core/internal/pipeline"
	"github.com/meetingbot/core/internal/transcription"
)

// TranscriptionProviders maps a Bot's settings.transcription_provider
// value to a constructed transcription.Provider, resolved once at process
// startup (the Deepgram/gRPC client needs a live API key or address from
// configuration) and passed into New.
type TranscriptionProviders map[string]transcription.Provider

// startSession creates the primary Recording row and builds the Pipeline
// and, if requested, the transcription Coordinator for bot.
func (c *Controller) startSession(ctx context.Context, bot *models.Bot) (*session, error) {
	recordingType := bot.Settings.RecordingType
	if recordingType == "" {
		recordingType = models.RecordingAudioVideo
	}
	format := bot.Settings.RecordingFormat
	if format == "" {
		format = models.FormatMP4
	}

	rec := &models.Recording{
		ID:                 uuid.NewString(),
		BotID:              bot.ID,
		State:              models.RecordingStateNotStarted,
		TranscriptionState: models.TranscriptionNotStarted,
		RecordingType:      recordingType,
		Format:             format,
	}
	if err := c.store.CreateRecording(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}

	muxer, err := pipeline.NewFileMuxer(c.cfg.ScratchDir, bot.ObjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to open media muxer: %w", err)
	}

	sess := &session{
		recording: rec,
		muxer:     muxer,
		pipeline:  pipeline.New(bot.Settings, muxer),
	}

	if bot.Settings.TranscriptionProvider != "" && recordingType != models.RecordingNone {
		provider, ok := c.transcriptionProviders[bot.Settings.TranscriptionProvider]
		if !ok {
			return sess, fmt.Errorf("no transcription provider registered for %q", bot.Settings.TranscriptionProvider)
		}
		apiKey := ""
		if c.credentials != nil {
			if key, err := c.credentials.GetCredential(ctx, bot.ProjectID, models.ProviderDeepgram); err == nil {
				apiKey = key
			}
		}
		sess.transcription = transcription.NewCoordinator(provider, c.store, rec.ID, apiKey, bot.Settings.TranscriptionLanguage, c.log)
	}

	return sess, nil
}
