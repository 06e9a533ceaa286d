package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/meetingbot/core/internal/models"
)

// admitFunc performs the platform-specific admission handshake: opening a
// browser-automation session, or calling a native meeting SDK, depending
// on which adapter constructs it. It returns a non-nil rejectReason when
// the platform refuses entry (waiting-room timeout, meeting not started,
// bad credentials) without treating that as a Go error — Rejected is a
// normal adapter outcome, not a bug.
type admitFunc func(ctx context.Context, meetingURL string, creds Credentials) (rejectReason string, err error)

// baseAdapter is the scaffolding shared by every platform adapter: event
// stream plumbing, control-signal wiring, and the Leave/terminal-event
// contract. Each platform supplies only its admission handshake; once
// admitted, frame ingestion is platform SDK/browser-automation work that
// lives below this interface and is out of scope here.
type baseAdapter struct {
	platform models.Platform
	admit    admitFunc
}

func (a *baseAdapter) Open(ctx context.Context, meetingURL string, creds Credentials, settings models.BotSettings) (<-chan Event, Controls, error) {
	events := make(chan Event, 64)
	ctrl := &baseControls{leave: make(chan struct{})}

	go a.run(ctx, meetingURL, creds, events, ctrl)

	return events, ctrl, nil
}

func (a *baseAdapter) run(ctx context.Context, meetingURL string, creds Credentials, events chan<- Event, ctrl *baseControls) {
	defer close(events)

	reason, err := a.admit(ctx, meetingURL, creds)
	if err != nil {
		events <- Event{Type: EventFatalError, Reason: fmt.Sprintf("%s admission handshake: %v", a.platform, err)}
		return
	}
	if reason != "" {
		events <- Event{Type: EventRejected, Reason: reason}
		return
	}
	events <- Event{Type: EventAdmitted}

	select {
	case <-ctrl.leave:
		events <- Event{Type: EventMeetingEnded}
	case <-ctx.Done():
		events <- Event{Type: EventFatalError, Reason: "context canceled before meeting ended"}
	}
}

// baseControls implements Controls for every baseAdapter-derived platform.
// StartRecording/Pause/Resume are no-ops at this layer: they only affect
// how the Bot Controller treats incoming frames, which a platform's
// actual frame pump (not built here) would gate on.
type baseControls struct {
	mu       sync.Mutex
	left     bool
	leave    chan struct{}
}

func (c *baseControls) StartRecording(ctx context.Context) error { return nil }
func (c *baseControls) PauseRecording(ctx context.Context) error { return nil }
func (c *baseControls) ResumeRecording(ctx context.Context) error { return nil }

func (c *baseControls) Leave(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.left {
		return nil
	}
	c.left = true
	close(c.leave)
	return nil
}
