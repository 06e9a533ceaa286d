// Package adapter defines the Bot Adapter contract: the fixed interface
// between a Bot Controller and the platform-specific I/O that joins a
// meeting, receives media, and reports participant activity. Everything
// above this interface (internal/controller, internal/pipeline,
// internal/transcription) is platform-agnostic; everything below it
// (browser automation, native SDK bindings) is not specified here, only
// the contract it must honor.
package adapter

import (
	"context"
	"time"

	"github.com/meetingbot/core/internal/models"
)

// EventType discriminates the Event union delivered on an adapter's event
// stream.
type EventType string

const (
	EventAdmitted     EventType = "admitted"
	EventRejected     EventType = "rejected"
	EventParticipant  EventType = "participant"
	EventAudioFrame   EventType = "audio_frame"
	EventVideoFrame   EventType = "video_frame"
	EventChatMessage  EventType = "chat_message"
	EventMeetingEnded EventType = "meeting_ended"
	EventFatalError   EventType = "fatal_error"
)

// AudioFrame is one participant's PCM audio, already normalized to 48 kHz
// mono signed 16-bit samples, stamped with a meeting-relative timestamp.
type AudioFrame struct {
	ParticipantID string
	PCM           []byte
	TimestampMS   int64
}

// VideoEncoding identifies the payload format of a VideoFrame, which
// varies by platform: some adapters decode to raw RGB, others pass
// through an already-encoded H.264 access unit.
type VideoEncoding string

const (
	VideoEncodingRGB  VideoEncoding = "rgb"
	VideoEncodingH264 VideoEncoding = "h264"
)

// VideoFrame is one participant's video sample.
type VideoFrame struct {
	ParticipantID string
	Encoding      VideoEncoding
	Width         int
	Height        int
	Data          []byte
	TimestampMS   int64
}

// Event is the discriminated union yielded on an Adapter's event stream.
// Only the field named by Type is populated.
type Event struct {
	Type EventType

	// Rejected / FatalError
	Reason string

	Participant *models.ParticipantEvent
	Audio       *AudioFrame
	Video       *VideoFrame
	Chat        *models.ChatMessage
}

// Credentials carries the plaintext secret material an Adapter needs to
// authenticate with the platform, already decrypted by
// services.CredentialService. Plaintext never reaches internal/store.
type Credentials struct {
	Provider models.Provider
	Secret   string
}

// Controls is the control surface a Bot Controller holds once Open
// succeeds, letting it drive recording state and departure without
// touching the event stream.
type Controls interface {
	StartRecording(ctx context.Context) error
	PauseRecording(ctx context.Context) error
	ResumeRecording(ctx context.Context) error

	// Leave asks the adapter to depart the meeting. The adapter must
	// deliver a terminal event (EventMeetingEnded or EventFatalError) on
	// the event stream within LeaveDeadline of Leave returning.
	Leave(ctx context.Context) error
}

// LeaveDeadline is the contractual upper bound between Leave() returning
// and a terminal event appearing on the stream; the controller's shutdown
// sequence uses it as a hard timeout before giving up and finalizing
// anyway.
const LeaveDeadline = 60 * time.Second

// Adapter is the platform-specific I/O layer behind a fixed interface:
// admission handshake, credential refresh, and translating platform
// errors into the event stream are the adapter's responsibility, not the
// controller's.
type Adapter interface {
	// Open joins meetingURL and returns a live event stream plus the
	// control surface for it. The returned channel is closed only after a
	// terminal event (EventMeetingEnded or EventFatalError) has been sent
	// on it, or ctx is canceled.
	Open(ctx context.Context, meetingURL string, creds Credentials, settings models.BotSettings) (<-chan Event, Controls, error)
}
