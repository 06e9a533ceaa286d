package transcription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/meetingbot/core/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSession struct {
	mu         sync.Mutex
	events     chan Event
	sendCalls  int
	closeCalls int
	sendErr    error
	closeErr   error
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: make(chan Event, 8)}
}

func (s *fakeSession) Send(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	s.sendCalls++
	s.mu.Unlock()
	return s.sendErr
}

func (s *fakeSession) Events() <-chan Event { return s.events }

func (s *fakeSession) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closeCalls++
	s.mu.Unlock()
	close(s.events)
	return s.closeErr
}

type fakeProvider struct {
	mu       sync.Mutex
	sessions []*fakeSession
	openErr  error
}

func (p *fakeProvider) Open(ctx context.Context, apiKey, language string) (Session, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}
	s := newFakeSession()
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s, nil
}

type utteranceInsert struct {
	participantID       string
	transcript          string
	durationMS          int64
	relativeTimestampMS int64
	words               []models.Word
}

type failureRecord struct {
	recordingID string
	state       models.TranscriptionState
	data        map[string]any
}

type fakeUtteranceStore struct {
	mu         sync.Mutex
	utterances []utteranceInsert
	failures   []failureRecord
}

func (f *fakeUtteranceStore) InsertUtterance(ctx context.Context, u *models.Utterance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.utterances = append(f.utterances, utteranceInsert{
		participantID:       u.ParticipantID,
		transcript:          u.Transcript,
		durationMS:          u.DurationMS,
		relativeTimestampMS: u.RelativeTimestampMS,
		words:               u.Words,
	})
	return nil
}

func (f *fakeUtteranceStore) FinalizeRecordingTranscription(ctx context.Context, recordingID string, state models.TranscriptionState, failureData map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, failureRecord{recordingID: recordingID, state: state, data: failureData})
	return nil
}

func (f *fakeUtteranceStore) utteranceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.utterances)
}

func (f *fakeUtteranceStore) failureCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.failures)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !cond() {
		t.Fatal("condition not met within timeout")
	}
}

// Feed opens a session on first contact and the consume goroutine persists
// a final utterance once the provider emits one, with DurationMS derived
// from the first and last word's timings. The session opens well into the
// meeting (baseTimestampMS far from zero) and the provider's Words carry
// session-relative timestamps starting near zero, the way a long-lived
// Deepgram/gRPC session actually reports them — so this only passes if the
// coordinator rebases each word against the meeting clock instead of
// passing the provider's session-relative timing straight through.
func TestCoordinatorPersistsFinalUtterance(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeUtteranceStore{}
	c := NewCoordinator(provider, store, "rec-1", "key", "en", discardLogger())

	const baseTimestampMS = 5000
	c.Feed(context.Background(), "p1", []byte{1, 2, 3, 4}, baseTimestampMS)

	provider.mu.Lock()
	sess := provider.sessions[0]
	provider.mu.Unlock()

	sess.events <- Event{
		Type:       EventFinal,
		Transcript: "hello world",
		Words: []models.Word{
			{Word: "hello", StartMS: 200, EndMS: 500},
			{Word: "world", StartMS: 500, EndMS: 1000},
		},
	}

	waitUntil(t, time.Second, func() bool { return store.utteranceCount() == 1 })

	got := store.utterances[0]
	if got.participantID != "p1" || got.transcript != "hello world" {
		t.Fatalf("unexpected utterance: %+v", got)
	}
	if got.relativeTimestampMS != baseTimestampMS+200 {
		t.Fatalf("expected relative_timestamp_ms %d (base + first word start), got %d", baseTimestampMS+200, got.relativeTimestampMS)
	}
	if got.durationMS != 800 {
		t.Fatalf("expected duration_ms 800 (1000-200), got %d", got.durationMS)
	}
	if got.words[0].StartMS != baseTimestampMS+200 || got.words[1].EndMS != baseTimestampMS+1000 {
		t.Fatalf("expected words rebased onto the meeting clock, got %+v", got.words)
	}
	if sess.sendCalls != 1 {
		t.Fatalf("expected one Send call, got %d", sess.sendCalls)
	}
}

// A provider that fails to open a session records a transcription failure
// instead of blocking audio ingestion.
func TestCoordinatorRecordsFailureWhenOpenFails(t *testing.T) {
	provider := &fakeProvider{openErr: errors.New("unauthorized")}
	store := &fakeUtteranceStore{}
	c := NewCoordinator(provider, store, "rec-1", "bad-key", "en", discardLogger())

	c.Feed(context.Background(), "p1", []byte{1, 2}, 0)

	if store.failureCount() != 1 {
		t.Fatalf("expected one failure record, got %d", store.failureCount())
	}
	if store.failures[0].state != models.TranscriptionFailed {
		t.Fatalf("expected TranscriptionFailed, got %s", store.failures[0].state)
	}
}

// An EventError on an open session records a failure without tearing down
// audio capture; the coordinator may reopen on the next Feed.
func TestCoordinatorRecordsFailureOnSessionError(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeUtteranceStore{}
	c := NewCoordinator(provider, store, "rec-1", "key", "en", discardLogger())

	c.Feed(context.Background(), "p1", []byte{1, 2}, 0)
	provider.mu.Lock()
	sess := provider.sessions[0]
	provider.mu.Unlock()

	sess.events <- Event{Type: EventError, Err: errors.New("provider disconnected")}

	waitUntil(t, time.Second, func() bool { return store.failureCount() == 1 })
}

// sweepIdle closes sessions idle longer than IdleTimeout and removes them
// from the live session map, without affecting sessions seen recently.
func TestCoordinatorSweepIdleClosesStaleSessions(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeUtteranceStore{}
	c := NewCoordinator(provider, store, "rec-1", "key", "en", discardLogger())

	c.Feed(context.Background(), "stale", []byte{1, 2}, 0)
	c.Feed(context.Background(), "fresh", []byte{1, 2}, 0)

	c.mu.Lock()
	c.sessions["stale"].lastSeen = time.Now().Add(-2 * IdleTimeout)
	staleSess := c.sessions["stale"].session.(*fakeSession)
	c.mu.Unlock()

	c.sweepIdle(context.Background())

	waitUntil(t, time.Second, func() bool {
		staleSess.mu.Lock()
		defer staleSess.mu.Unlock()
		return staleSess.closeCalls == 1
	})

	c.mu.Lock()
	_, staleStillOpen := c.sessions["stale"]
	_, freshStillOpen := c.sessions["fresh"]
	c.mu.Unlock()
	if staleStillOpen {
		t.Fatal("expected the stale session to be removed from the session map")
	}
	if !freshStillOpen {
		t.Fatal("expected the recently-seen session to remain open")
	}
}

// Flush closes every open session and waits for them to finish before
// returning, for the controller's shutdown sequence.
func TestCoordinatorFlushClosesAllSessions(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeUtteranceStore{}
	c := NewCoordinator(provider, store, "rec-1", "key", "en", discardLogger())

	c.Feed(context.Background(), "p1", []byte{1, 2}, 0)
	c.Feed(context.Background(), "p2", []byte{1, 2}, 0)

	c.Flush(time.Second)

	c.mu.Lock()
	remaining := len(c.sessions)
	c.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected no sessions left open after Flush, got %d", remaining)
	}

	provider.mu.Lock()
	defer provider.mu.Unlock()
	for _, s := range provider.sessions {
		s.mu.Lock()
		closed := s.closeCalls
		s.mu.Unlock()
		if closed != 1 {
			t.Fatalf("expected every session to be closed exactly once, got %d", closed)
		}
	}
}
