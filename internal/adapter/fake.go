package adapter

import (
	"context"
	"sync"

	"github.com/meetingbot/core/internal/models"
)

// FakeAdapter is a test double for internal/controller's tests: Open
// returns a channel the test owns and can push Events into directly,
// plus a Controls that just records which methods were called instead of
// driving a real platform.
type FakeAdapter struct {
	Events chan Event

	mu       sync.Mutex
	opened   bool
	OpenErr  error
	LastURL  string
	LastSettings models.BotSettings
	Controls *FakeControls
}

// NewFakeAdapter builds a FakeAdapter with a buffered event channel large
// enough for a test's whole script without blocking on a reader.
func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		Events:   make(chan Event, 256),
		Controls: &FakeControls{},
	}
}

func (f *FakeAdapter) Open(ctx context.Context, meetingURL string, creds Credentials, settings models.BotSettings) (<-chan Event, Controls, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenErr != nil {
		return nil, nil, f.OpenErr
	}
	f.opened = true
	f.LastURL = meetingURL
	f.LastSettings = settings
	return f.Events, f.Controls, nil
}

// Close closes the event channel, simulating the real contract that the
// stream only closes after a terminal event has been sent on it. Tests
// should send EventMeetingEnded or EventFatalError before calling Close.
func (f *FakeAdapter) Close() {
	close(f.Events)
}

// FakeControls records calls instead of driving a real adapter.
type FakeControls struct {
	mu sync.Mutex

	StartRecordingCalls  int
	PauseRecordingCalls  int
	ResumeRecordingCalls int
	LeaveCalls           int

	LeaveErr error
}

func (c *FakeControls) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StartRecordingCalls++
	return nil
}

func (c *FakeControls) PauseRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PauseRecordingCalls++
	return nil
}

func (c *FakeControls) ResumeRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ResumeRecordingCalls++
	return nil
}

func (c *FakeControls) Leave(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LeaveCalls++
	return c.LeaveErr
}
