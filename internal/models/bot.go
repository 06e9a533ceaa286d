// Package models defines the core domain entities shared by the store,
// services, dispatcher, controller, and webhook packages.
package models

import (
	"time"
)

// Platform identifies which Bot Adapter variant a Bot or AppSession uses.
// The set is closed and selected by a pure function of the meeting URL's
// host (see adapter.DetectPlatform).
type Platform string

const (
	PlatformZoomNative Platform = "zoom_native"
	PlatformZoomWeb    Platform = "zoom_web"
	PlatformGoogleMeet Platform = "google_meet"
	PlatformTeams      Platform = "teams"
	PlatformZoomRTMS   Platform = "zoom_rtms"
)

// Kind distinguishes a regular meeting-attendance Bot from an RTMS App
// Session. Both live in the `bots` table, discriminated by Kind, and
// share Recording/Utterance/Participant relations.
type Kind string

const (
	KindBot        Kind = "bot"
	KindAppSession Kind = "app_session"
)

// BotState is the state machine state of a Bot.
type BotState string

const (
	StateScheduled           BotState = "SCHEDULED"
	StateReady               BotState = "READY"
	StateStaged              BotState = "STAGED"
	StateJoining             BotState = "JOINING"
	StateJoinedNotRecording  BotState = "JOINED_NOT_RECORDING"
	StateJoinedRecording     BotState = "JOINED_RECORDING"
	StateLeaving             BotState = "LEAVING"
	StatePostProcessing      BotState = "POST_PROCESSING"
	StateEnded               BotState = "ENDED"
	StateFatalError          BotState = "FATAL_ERROR"
	StatePaused              BotState = "PAUSED"
)

// Terminal reports whether a state has no further outgoing transitions.
func (s BotState) Terminal() bool {
	return s == StateEnded || s == StateFatalError
}

// RecordingFormat selects the muxed output container.
type RecordingFormat string

const (
	FormatMP4     RecordingFormat = "mp4"
	FormatMP3     RecordingFormat = "mp3"
	FormatWebM    RecordingFormat = "webm"
	FormatNone    RecordingFormat = "no_output"
)

// RecordingType mirrors the Recording entity's recording_type attribute.
type RecordingType string

const (
	RecordingAudioVideo RecordingType = "AUDIO_AND_VIDEO"
	RecordingAudioOnly  RecordingType = "AUDIO_ONLY"
	RecordingNone       RecordingType = "NO_RECORDING"
)

// VideoCompositionPolicy selects the compositor layout.
type VideoCompositionPolicy string

const (
	CompositionSpeakerView VideoCompositionPolicy = "speaker_view"
	CompositionGalleryView VideoCompositionPolicy = "gallery_view"
)

// AutoLeaveSettings carries the independently configurable auto-leave
// thresholds in seconds. Zero means "use default".
type AutoLeaveSettings struct {
	OnlyParticipantSeconds int `json:"only_participant_seconds,omitempty"`
	SilenceSeconds         int `json:"silence_seconds,omitempty"`
	MaxDurationSeconds     int `json:"max_duration_seconds,omitempty"`
	WaitingRoomSeconds     int `json:"waiting_room_seconds,omitempty"`
}

// BotSettings is the free-form but typed settings bag a Bot is created
// with: recording format, auto-leave thresholds, transcription provider.
type BotSettings struct {
	RecordingFormat       RecordingFormat         `json:"recording_format,omitempty"`
	RecordingType         RecordingType           `json:"recording_type,omitempty"`
	VideoComposition      VideoCompositionPolicy  `json:"video_composition,omitempty"`
	AutoRecord            bool                    `json:"auto_record"`
	AutoLeave             AutoLeaveSettings       `json:"auto_leave,omitempty"`
	TranscriptionProvider string                  `json:"transcription_provider,omitempty"`
	TranscriptionLanguage string                  `json:"transcription_language,omitempty"`
}

// Bot is one meeting-attendance attempt (or, when Kind == KindAppSession,
// one Zoom RTMS session) and its worker process.
type Bot struct {
	ID               string
	ProjectID        string
	Kind             Kind
	ObjectID         string
	MeetingURL       string
	Platform         Platform
	Name             string
	State            BotState
	SubState         string
	JoinAt           *time.Time
	DeduplicationKey *string
	Settings         BotSettings
	Metadata         map[string]any
	FileName         *string // legacy storage-key override, Open Question 1
	HeartbeatAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsAppSession reports whether this row models an RTMS App Session, which
// has no Admitted/Leave control surface.
func (b *Bot) IsAppSession() bool {
	return b.Kind == KindAppSession
}

// BotEvent is an append-only transition-log row.
type BotEvent struct {
	ID        int64
	BotID     string
	OldState  BotState
	NewState  BotState
	EventType string
	SubType   string
	Metadata  map[string]any
	Sequence  int64
	CreatedAt time.Time
}
