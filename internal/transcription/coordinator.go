package transcription

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meetingbot/core/internal/models"
)

// IdleTimeout is T_idle: a participant's session closes after this much
// silence and may reopen on their next speech.
const IdleTimeout = 10 * time.Second

// utteranceStore is the narrow slice of internal/store.Store the
// Coordinator needs, so tests can substitute an in-memory fake instead of
// a live Postgres connection.
type utteranceStore interface {
	InsertUtterance(ctx context.Context, u *models.Utterance) error
	FinalizeRecordingTranscription(ctx context.Context, recordingID string, state models.TranscriptionState, failureData map[string]any) error
}

// Coordinator maintains one streaming ASR session per active speaker,
// appends finalized utterances to a Recording, and exposes partials
// through a read-through cache for API readers.
type Coordinator struct {
	provider    Provider
	store       utteranceStore
	recordingID string
	apiKey      string
	language    string
	log         *slog.Logger

	mu       sync.Mutex
	sessions map[string]*participantSession
	partials map[string]string // participantID -> latest partial transcript
}

type participantSession struct {
	session  Session
	lastSeen time.Time
	cancel   context.CancelFunc
}

// NewCoordinator builds a Coordinator for one Bot's primary Recording.
func NewCoordinator(provider Provider, store utteranceStore, recordingID, apiKey, language string, log *slog.Logger) *Coordinator {
	return &Coordinator{
		provider:    provider,
		store:       store,
		recordingID: recordingID,
		apiKey:      apiKey,
		language:    language,
		log:         log,
		sessions:    make(map[string]*participantSession),
		partials:    make(map[string]string),
	}
}

// Feed pushes one participant's audio frame, opening a session for them on
// first contact.
func (c *Coordinator) Feed(ctx context.Context, participantID string, pcm []byte, relativeTimestampMS int64) {
	c.mu.Lock()
	sess, ok := c.sessions[participantID]
	c.mu.Unlock()

	if !ok {
		var err error
		sess, err = c.openSession(ctx, participantID, relativeTimestampMS)
		if err != nil {
			c.log.Error("failed to open transcription session", "participant_id", participantID, "error", err)
			c.recordFailure(ctx, participantID, err)
			return
		}
	}

	c.mu.Lock()
	sess.lastSeen = time.Now()
	c.mu.Unlock()

	if err := sess.session.Send(ctx, pcm); err != nil {
		c.log.Warn("failed to send audio to transcription provider", "participant_id", participantID, "error", err)
	}
}

func (c *Coordinator) openSession(ctx context.Context, participantID string, baseTimestampMS int64) (*participantSession, error) {
	sessCtx, cancel := context.WithCancel(context.Background())
	raw, err := c.provider.Open(sessCtx, c.apiKey, c.language)
	if err != nil {
		cancel()
		return nil, err
	}

	ps := &participantSession{session: raw, lastSeen: time.Now(), cancel: cancel}
	c.mu.Lock()
	c.sessions[participantID] = ps
	c.mu.Unlock()

	go c.consume(sessCtx, participantID, raw, baseTimestampMS)
	return ps, nil
}

// consume drains one session's event stream, appending finals to the
// Recording and updating the partial cache, until the stream closes.
func (c *Coordinator) consume(ctx context.Context, participantID string, sess Session, baseTimestampMS int64) {
	for ev := range sess.Events() {
		switch ev.Type {
		case EventPartial:
			c.mu.Lock()
			c.partials[participantID] = ev.Transcript
			c.mu.Unlock()
		case EventFinal:
			c.mu.Lock()
			delete(c.partials, participantID)
			c.mu.Unlock()
			// Providers report Words[].StartMS/EndMS relative to when the
			// session was opened, not the meeting clock; rebase against
			// baseTimestampMS before persisting, or a long-lived session's
			// later utterances land at the wrong point in the recording.
			words := make([]models.Word, len(ev.Words))
			for i, w := range ev.Words {
				w.StartMS += baseTimestampMS
				w.EndMS += baseTimestampMS
				words[i] = w
			}
			relativeTimestampMS := baseTimestampMS
			if len(words) > 0 {
				relativeTimestampMS = words[0].StartMS
			}
			u := &models.Utterance{
				ID:                  uuid.NewString(),
				RecordingID:         c.recordingID,
				ParticipantID:       participantID,
				RelativeTimestampMS: relativeTimestampMS,
				Transcript:          ev.Transcript,
				Words:               words,
				Final:               true,
			}
			if len(words) > 0 {
				u.DurationMS = words[len(words)-1].EndMS - words[0].StartMS
			}
			if err := c.store.InsertUtterance(ctx, u); err != nil {
				c.log.Error("failed to persist utterance", "participant_id", participantID, "error", err)
			}
		case EventError:
			c.log.Warn("transcription provider session error", "participant_id", participantID, "error", ev.Err)
			c.recordFailure(ctx, participantID, ev.Err)
		}
	}
}

// recordFailure writes a failure_data blob via FinalizeRecordingTranscription
// without tearing down audio capture — the coordinator may reopen a
// session for this participant on their next speech.
func (c *Coordinator) recordFailure(ctx context.Context, participantID string, cause error) {
	data := map[string]any{"participant_id": participantID, "error": cause.Error()}
	if err := c.store.FinalizeRecordingTranscription(ctx, c.recordingID, models.TranscriptionFailed, data); err != nil {
		c.log.Error("failed to record transcription failure", "error", err)
	}
}

// Partial returns a participant's most recent not-yet-final transcript,
// or "" if none is buffered.
func (c *Coordinator) Partial(participantID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.partials[participantID]
}

// sweepIdle closes every session idle longer than IdleTimeout. Intended to
// be called periodically by the Bot Controller's event loop.
func (c *Coordinator) sweepIdle(ctx context.Context) {
	c.mu.Lock()
	var stale []string
	now := time.Now()
	for id, sess := range c.sessions {
		if now.Sub(sess.lastSeen) > IdleTimeout {
			stale = append(stale, id)
		}
	}
	c.mu.Unlock()

	for _, id := range stale {
		c.closeSession(ctx, id)
	}
}

func (c *Coordinator) closeSession(ctx context.Context, participantID string) {
	c.mu.Lock()
	sess, ok := c.sessions[participantID]
	if ok {
		delete(c.sessions, participantID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	if err := sess.session.Close(ctx); err != nil {
		c.log.Warn("failed to close transcription session", "participant_id", participantID, "error", err)
	}
	sess.cancel()
}

// RunIdleSweep ticks sweepIdle every IdleTimeout/2 until ctx is canceled.
func (c *Coordinator) RunIdleSweep(ctx context.Context) {
	ticker := time.NewTicker(IdleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweepIdle(ctx)
		}
	}
}

// Flush closes every open session, bounding the Close calls by
// flushTimeout, for the controller's shutdown sequence. It returns once
// every Close call has returned; finals still in flight at that point are
// not waited for.
func (c *Coordinator) Flush(flushTimeout time.Duration) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			c.closeSession(ctx, id)
		}(id)
	}
	wg.Wait()
}
