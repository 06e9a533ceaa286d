package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meetingbot/core/internal/models"
)

// BackpressureWindow is how long ingest can outrun encoding before the
// Pipeline starts dropping video frames.
const BackpressureWindow = 500 * time.Millisecond

// Pipeline wires together a Clock, Mixer, Compositor, and Muxer into the
// single per-Bot media pipeline the Bot Controller drives: one
// IngestAudio/IngestVideo call per Adapter frame, one background tick
// loop producing mixed/composed output, and a Flush shutdown sequence.
type Pipeline struct {
	clock      *Clock
	mixer      *Mixer
	compositor *Compositor
	muxer      Muxer

	mu            sync.Mutex
	framesDropped int64
	encodeBehind  time.Duration // how far video writes have fallen behind wall-clock ticks

	tickDone chan struct{}
}

// New builds a Pipeline for one Bot, given its recording settings.
func New(settings models.BotSettings, muxer Muxer) *Pipeline {
	mixer := NewMixer(DefaultRingSeconds)
	return &Pipeline{
		clock:      NewClock(),
		mixer:      mixer,
		compositor: NewCompositor(mixer, settings.VideoComposition),
		muxer:      muxer,
		tickDone:   make(chan struct{}),
	}
}

// IngestAudio seeds the clock on first contact and feeds samples into the
// mixer. Audio is never dropped for backpressure: video is the pipeline's
// only relief valve.
func (p *Pipeline) IngestAudio(ts time.Time, participantID string, samples []float32) {
	p.clock.Seed(ts)
	p.mixer.IngestAudio(participantID, samples)
}

// IngestVideo feeds one participant's video frame into the compositor.
func (p *Pipeline) IngestVideo(ts time.Time, participantID string, frame []byte) {
	p.clock.Seed(ts)
	p.compositor.IngestVideo(participantID, frame)
}

// RemoveParticipant drops a departed participant's compositor state.
func (p *Pipeline) RemoveParticipant(participantID string) {
	p.compositor.RemoveParticipant(participantID)
}

// Run drives one mixed audio tick and one composed video tick every
// TickInterval until ctx is canceled, writing both to the muxer. If
// writing falls more than BackpressureWindow behind, that tick's composed
// video frame is dropped (never audio) and FramesDropped is incremented.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.tickDone)
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !p.clock.Seeded() {
				continue
			}
			audio := p.mixer.Tick()
			if err := p.muxer.WriteAudio(audio); err != nil {
				continue // best-effort: encoder errors don't stop ingest
			}

			video := p.compositor.Tick(now)
			p.writeVideoWithBackpressure(video)
		}
	}
}

// writeVideoWithBackpressure times the video write and, once the encoder
// has fallen more than BackpressureWindow behind, starts dropping video
// frames instead of writing them (audio is never dropped). Each dropped
// frame gives the encoder back one tick, and falling behind resets as soon
// as a write completes within the window again.
func (p *Pipeline) writeVideoWithBackpressure(frame ComposedFrame) {
	p.mu.Lock()
	behind := p.encodeBehind
	p.mu.Unlock()

	if behind > BackpressureWindow {
		p.mu.Lock()
		p.framesDropped++
		p.encodeBehind -= TickInterval
		p.mu.Unlock()
		return
	}

	start := time.Now()
	err := p.muxer.WriteVideo(frame)
	elapsed := time.Since(start)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil || elapsed > TickInterval {
		p.encodeBehind += elapsed - TickInterval
	} else {
		p.encodeBehind = 0
	}
}

// FramesDropped returns the running count of video frames dropped for
// backpressure, for the controller to persist onto the Recording.
func (p *Pipeline) FramesDropped() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.framesDropped
}

// Pause tells the muxer to start substituting silence/frozen frames.
func (p *Pipeline) Pause() { p.muxer.Pause() }

// Resume tells the muxer to stop substituting silence/frozen frames.
func (p *Pipeline) Resume() { p.muxer.Resume() }

// Flush stops the tick loop (by cancellation, done by the caller) and
// waits up to flushTimeout for Run to observe ctx.Done, then finalizes
// the muxer.
func (p *Pipeline) Flush(flushTimeout time.Duration) (outputPath, pcmPath string, err error) {
	select {
	case <-p.tickDone:
	case <-time.After(flushTimeout):
		return "", "", fmt.Errorf("timed out after %s waiting for pipeline tick loop to stop", flushTimeout)
	}
	return p.muxer.Finalize()
}
