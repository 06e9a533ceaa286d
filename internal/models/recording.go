package models

import "time"

// RecordingState is the lifecycle of a Recording artifact.
type RecordingState string

const (
	RecordingStateNotStarted RecordingState = "NOT_STARTED"
	RecordingStateInProgress RecordingState = "IN_PROGRESS"
	RecordingStatePaused     RecordingState = "PAUSED"
	RecordingStateComplete   RecordingState = "COMPLETE"
	RecordingStateFailed     RecordingState = "FAILED"
)

// TranscriptionState tracks the transcription side of a Recording
// independently of the muxed-file state.
type TranscriptionState string

const (
	TranscriptionNotStarted TranscriptionState = "NOT_STARTED"
	TranscriptionInProgress TranscriptionState = "IN_PROGRESS"
	TranscriptionComplete   TranscriptionState = "COMPLETE"
	TranscriptionFailed     TranscriptionState = "FAILED"
)

// Recording is the primary (or per-participant variant) artifact produced
// by a Bot's media pipeline.
type Recording struct {
	ID                 string
	BotID              string
	ParticipantID      *string // nil for the primary/default recording
	State              RecordingState
	TranscriptionState TranscriptionState
	RecordingType      RecordingType
	Format             RecordingFormat
	StorageKey         string
	BytesUploaded      int64
	DurationMS         int64
	FramesDropped      int64
	FailureReason      *string
	TranscriptionFailureData map[string]any
	CreatedAt          time.Time
	CompletedAt        *time.Time
}

// EligibleForComplete reports whether the invariant "COMPLETE only if at least one
// frame was captured and upload succeeded" is satisfiable by
// the current counters; callers still decide FAILED vs COMPLETE explicitly.
func (r *Recording) EligibleForComplete() bool {
	return r.BytesUploaded > 0 && r.DurationMS > 0
}

// Participant is one distinct meeting attendee observed, excluding the bot
// itself.
type Participant struct {
	ID        string
	BotID     string
	UUID      string // platform-assigned
	FullName  string
	UserUUID  *string
	CreatedAt time.Time
}

// ParticipantEventType enumerates the observable participant events.
type ParticipantEventType string

const (
	ParticipantJoin            ParticipantEventType = "JOIN"
	ParticipantLeave           ParticipantEventType = "LEAVE"
	ParticipantSpeechStart     ParticipantEventType = "SPEECH_START"
	ParticipantSpeechStop      ParticipantEventType = "SPEECH_STOP"
	ParticipantScreenshareStart ParticipantEventType = "SCREENSHARE_START"
	ParticipantScreenshareStop  ParticipantEventType = "SCREENSHARE_STOP"
)

// ParticipantEvent is a single observed participant event.
type ParticipantEvent struct {
	ID            string
	ParticipantID string
	BotID         string
	Type          ParticipantEventType
	EventData     map[string]any
	CreatedAt     time.Time
}

// Word is a single word-level timing inside an Utterance's transcript.
type Word struct {
	Word       string  `json:"word"`
	StartMS    int64   `json:"start_ms"`
	EndMS      int64   `json:"end_ms"`
	Confidence float64 `json:"confidence"`
}

// Utterance is a contiguous transcribed speech segment from one
// participant, with per-word timings.
type Utterance struct {
	ID                 string
	RecordingID        string
	ParticipantID       string
	RelativeTimestampMS int64
	DurationMS          int64
	Transcript          string
	Words               []Word
	Final               bool
	CreatedAt           time.Time
}

// ChatMessage is one chat line observed from a participant.
type ChatMessage struct {
	ID            string
	BotID         string
	ParticipantID string
	Text          string
	CreatedAt     time.Time
}
