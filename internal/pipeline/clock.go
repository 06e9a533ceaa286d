// Package pipeline implements the per-Bot media pipeline: a
// meeting-relative clock, a per-participant audio ring buffer and mixer, a
// video compositor, and a muxer that writes the mixed output to a single
// container file alongside a PCM sidecar for transcription. Nothing here
// is platform-specific — it consumes the normalized frames
// internal/adapter emits, regardless of which Adapter produced them.
package pipeline

import (
	"sync"
	"time"
)

// TickInterval is the pipeline's fixed quantization: every frame
// timestamp is rounded down to the nearest TickInterval, and the mixer
// produces exactly one mixed frame per tick.
const TickInterval = 10 * time.Millisecond

// Clock is a meeting-relative clock seeded at the first admitted frame.
// All downstream components (Mixer, Compositor, FileMuxer) quantize
// against it rather than wall-clock time, so a frame's position in the
// output is independent of when it was actually ingested.
type Clock struct {
	mu      sync.Mutex
	seeded  bool
	epoch   time.Time
}

// NewClock builds an unseeded Clock.
func NewClock() *Clock {
	return &Clock{}
}

// Seed fixes the clock's epoch to t if it has not already been seeded.
// Subsequent calls are no-ops: only the first admitted frame seeds the
// clock.
func (c *Clock) Seed(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seeded {
		return
	}
	c.epoch = t
	c.seeded = true
}

// Seeded reports whether Seed has been called yet.
func (c *Clock) Seeded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seeded
}

// RelativeMS returns t's offset from the clock's epoch in milliseconds,
// quantized down to the nearest TickInterval. Returns 0 if the clock has
// not been seeded yet.
func (c *Clock) RelativeMS(t time.Time) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.seeded {
		return 0
	}
	elapsed := t.Sub(c.epoch)
	quantized := elapsed / TickInterval * TickInterval
	return quantized.Milliseconds()
}
