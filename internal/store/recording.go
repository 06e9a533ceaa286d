package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meetingbot/core/internal/models"
)

// CreateRecording inserts a Recording row for a Bot (or a per-participant
// variant when participantID is non-nil).
func (s *Store) CreateRecording(ctx context.Context, r *models.Recording) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO recordings (id, bot_id, participant_id, state, transcription_state,
		                         recording_type, format, storage_key, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8, now())`,
		r.ID, r.BotID, r.ParticipantID, r.State, r.TranscriptionState, r.RecordingType, r.Format, r.StorageKey)
	if err != nil {
		return fmt.Errorf("failed to insert recording: %w", err)
	}
	return nil
}

// GetPrimaryRecording loads a Bot's default (participant_id IS NULL)
// recording.
func (s *Store) GetPrimaryRecording(ctx context.Context, botID string) (*models.Recording, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, bot_id, participant_id, state, transcription_state, recording_type, format,
		       storage_key, bytes_uploaded, duration_ms, frames_dropped, failure_reason,
		       transcription_failure_data, created_at, completed_at
		FROM recordings WHERE bot_id = $1 AND participant_id IS NULL`, botID)
	return scanRecording(row)
}

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var r models.Recording
	var failureData []byte
	err := row.Scan(&r.ID, &r.BotID, &r.ParticipantID, &r.State, &r.TranscriptionState, &r.RecordingType,
		&r.Format, &r.StorageKey, &r.BytesUploaded, &r.DurationMS, &r.FramesDropped, &r.FailureReason,
		&failureData, &r.CreatedAt, &r.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan recording: %w", err)
	}
	if len(failureData) > 0 {
		if err := json.Unmarshal(failureData, &r.TranscriptionFailureData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transcription failure data: %w", err)
		}
	}
	return &r, nil
}

// FinalizeRecordingTranscription updates a Recording's transcription_state
// and, on failure, records the diagnostic failure_data blob. This only
// updates the transcript side of the Recording row, never its muxing
// state, so capture continues regardless.
func (s *Store) FinalizeRecordingTranscription(ctx context.Context, recordingID string, state models.TranscriptionState, failureData map[string]any) error {
	var failureJSON []byte
	if failureData != nil {
		var err error
		failureJSON, err = json.Marshal(failureData)
		if err != nil {
			return fmt.Errorf("failed to marshal transcription failure data: %w", err)
		}
	}
	_, err := s.Pool.Exec(ctx, `
		UPDATE recordings SET transcription_state=$1, transcription_failure_data=$2 WHERE id=$3`,
		state, failureJSON, recordingID)
	if err != nil {
		return fmt.Errorf("failed to finalize recording transcription: %w", err)
	}
	return nil
}

// IncrementFramesDropped bumps the backpressure counter.
func (s *Store) IncrementFramesDropped(ctx context.Context, recordingID string, n int64) error {
	_, err := s.Pool.Exec(ctx, `UPDATE recordings SET frames_dropped = frames_dropped + $1 WHERE id = $2`, n, recordingID)
	return err
}

// FinalizeRecording sets the recording's terminal muxing state after the
// Uploader runs. COMPLETE requires bytesUploaded > 0 and durationMS > 0;
// otherwise the state is forced to FAILED regardless of the requested
// state, enforcing that invariant at the single write site.
func (s *Store) FinalizeRecording(ctx context.Context, recordingID string, state models.RecordingState, storageKey string, bytesUploaded, durationMS int64, failureReason *string) error {
	if state == models.RecordingStateComplete && (bytesUploaded <= 0 || durationMS <= 0) {
		state = models.RecordingStateFailed
		if failureReason == nil {
			reason := "no frames captured or upload did not complete"
			failureReason = &reason
		}
	}
	_, err := s.Pool.Exec(ctx, `
		UPDATE recordings
		SET state=$1, storage_key=$2, bytes_uploaded=$3, duration_ms=$4, failure_reason=$5, completed_at=now()
		WHERE id=$6`, state, storageKey, bytesUploaded, durationMS, failureReason, recordingID)
	if err != nil {
		return fmt.Errorf("failed to finalize recording: %w", err)
	}
	return nil
}

// UpsertParticipant inserts a Participant, returning the existing row if
// (bot_id, uuid) already exists.
func (s *Store) UpsertParticipant(ctx context.Context, p *models.Participant) (*models.Participant, error) {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO participants (id, bot_id, uuid, full_name, user_uuid, created_at)
		VALUES ($1,$2,$3,$4,$5, now())
		ON CONFLICT (bot_id, uuid) DO UPDATE SET full_name = EXCLUDED.full_name
		RETURNING id, bot_id, uuid, full_name, user_uuid, created_at`,
		p.ID, p.BotID, p.UUID, p.FullName, p.UserUUID)
	var out models.Participant
	if err := row.Scan(&out.ID, &out.BotID, &out.UUID, &out.FullName, &out.UserUUID, &out.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to upsert participant: %w", err)
	}
	return &out, nil
}

// InsertParticipantEvent appends a ParticipantEvent row.
func (s *Store) InsertParticipantEvent(ctx context.Context, e *models.ParticipantEvent) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO participant_events (id, participant_id, bot_id, type, event_data, created_at)
		VALUES ($1,$2,$3,$4,$5, now())`, e.ID, e.ParticipantID, e.BotID, e.Type, e.EventData)
	if err != nil {
		return fmt.Errorf("failed to insert participant event: %w", err)
	}
	return nil
}

// CountNonBotParticipantsPresent returns the number of participants whose
// most recent event is JOIN (not yet followed by LEAVE) — used by the
// only-participant auto-leave policy.
func (s *Store) CountNonBotParticipantsPresent(ctx context.Context, botID string) (int, error) {
	var count int
	err := s.Pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT DISTINCT ON (participant_id) participant_id, type
			FROM participant_events
			WHERE bot_id = $1 AND type IN ('JOIN','LEAVE')
			ORDER BY participant_id, created_at DESC
		) latest WHERE latest.type = 'JOIN'`, botID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count present participants: %w", err)
	}
	return count, nil
}

// LastSpeechAt returns the most recent SPEECH_START timestamp for any
// participant in the bot's meeting, or nil if none yet — used by the
// silence auto-leave policy.
func (s *Store) LastSpeechAt(ctx context.Context, botID string) (*time.Time, error) {
	var t *time.Time
	err := s.Pool.QueryRow(ctx, `
		SELECT max(created_at) FROM participant_events WHERE bot_id = $1 AND type = 'SPEECH_START'`, botID).Scan(&t)
	if err != nil {
		return nil, fmt.Errorf("failed to query last speech: %w", err)
	}
	return t, nil
}

// InsertChatMessage appends a ChatMessage row.
func (s *Store) InsertChatMessage(ctx context.Context, m *models.ChatMessage) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO chat_messages (id, bot_id, participant_id, text, created_at)
		VALUES ($1,$2,$3,$4, now())`, m.ID, m.BotID, m.ParticipantID, m.Text)
	if err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

// InsertUtterance appends a finalized Utterance to a recording's transcript.
func (s *Store) InsertUtterance(ctx context.Context, u *models.Utterance) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO utterances (id, recording_id, participant_id, relative_timestamp_ms, duration_ms,
		                         transcript, words, final, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8, now())`,
		u.ID, u.RecordingID, u.ParticipantID, u.RelativeTimestampMS, u.DurationMS, u.Transcript, u.Words, u.Final)
	if err != nil {
		return fmt.Errorf("failed to insert utterance: %w", err)
	}
	return nil
}

// ListUtterances returns a recording's utterances ordered by
// relative_timestamp_ms, ties broken by participant_id.
func (s *Store) ListUtterances(ctx context.Context, recordingID string) ([]models.Utterance, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, recording_id, participant_id, relative_timestamp_ms, duration_ms, transcript, words, final, created_at
		FROM utterances WHERE recording_id = $1 ORDER BY relative_timestamp_ms, participant_id`, recordingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list utterances: %w", err)
	}
	defer rows.Close()

	var out []models.Utterance
	for rows.Next() {
		var u models.Utterance
		if err := rows.Scan(&u.ID, &u.RecordingID, &u.ParticipantID, &u.RelativeTimestampMS, &u.DurationMS,
			&u.Transcript, &u.Words, &u.Final, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
