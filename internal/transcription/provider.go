// Package transcription maintains one streaming ASR session per active
// speaker and appends finalized utterances to a Recording's transcript.
// It is provider-agnostic: DeepgramProvider and GRPCProvider both satisfy
// Provider, and the Coordinator never depends on either concretely.
package transcription

import (
	"context"

	"github.com/meetingbot/core/internal/models"
)

// EventType discriminates a Session's streamed results.
type EventType string

const (
	// EventPartial is an in-progress utterance, optionally exposed to API
	// readers through the Coordinator's read-through cache.
	EventPartial EventType = "partial"
	// EventFinal is a completed utterance, appended to the Recording.
	EventFinal EventType = "final"
	// EventError reports a provider-side failure; audio capture continues
	// and the Coordinator may reopen a session on next speech.
	EventError EventType = "error"
)

// Event is one message from a Session's event stream.
type Event struct {
	Type       EventType
	Transcript string
	Words      []models.Word
	DurationMS int64
	Err        error
}

// Session is one open streaming ASR conversation with a provider, scoped
// to a single participant for as long as they keep speaking.
type Session interface {
	// Send pushes one chunk of 48kHz mono PCM audio.
	Send(ctx context.Context, pcm []byte) error
	// Events yields partial/final utterances and provider errors. Closed
	// once Close returns.
	Events() <-chan Event
	// Close signals end of audio to the provider and tears down the
	// session; it does not wait for a final utterance still in flight.
	Close(ctx context.Context) error
}

// Provider opens streaming ASR sessions against one external transcription
// service.
type Provider interface {
	Open(ctx context.Context, apiKey, language string) (Session, error)
}
