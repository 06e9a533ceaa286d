package pipeline

import (
	"container/ring"
	"sync"
)

// SampleRate is the normalized audio rate every Adapter's PCM frames are
// converted to before they reach the pipeline: 48 kHz mono.
const SampleRate = 48000

// DefaultRingSeconds is a participant's default audio buffer depth.
const DefaultRingSeconds = 2

// RingBuffer holds one participant's most recent audio samples in a
// fixed-capacity circular buffer. There is no audio-mixing or codec
// library anywhere in the retrieved corpus, so this is built directly on
// the standard library's container/ring rather than wrapping a
// third-party DSP package — see DESIGN.md.
type RingBuffer struct {
	mu       sync.Mutex
	buf      *ring.Ring
	capacity int
	filled   int
}

// NewRingBuffer builds a RingBuffer holding seconds worth of samples at
// SampleRate.
func NewRingBuffer(seconds int) *RingBuffer {
	if seconds <= 0 {
		seconds = DefaultRingSeconds
	}
	capacity := seconds * SampleRate
	r := ring.New(capacity)
	for i := 0; i < capacity; i++ {
		r.Value = float32(0)
		r = r.Next()
	}
	return &RingBuffer{buf: r, capacity: capacity}
}

// Push appends samples, overwriting the oldest buffered samples once the
// buffer is full (the ring never blocks — a participant who stops
// producing audio simply loses their oldest silence/noise floor, not new
// speech).
func (b *RingBuffer) Push(samples []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range samples {
		b.buf.Value = s
		b.buf = b.buf.Next()
		if b.filled < b.capacity {
			b.filled++
		}
	}
}

// Drain pops up to n samples in the order they were pushed (oldest
// first), removing them from the buffer. If fewer than n samples are
// buffered, the result is padded with silence so callers can always mix a
// fixed-width tick.
func (b *RingBuffer) Drain(n int) []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]float32, n)
	if b.filled == 0 {
		return out
	}

	start := b.buf.Move(-b.filled)
	take := n
	if take > b.filled {
		take = b.filled
	}
	cur := start
	for i := 0; i < take; i++ {
		out[i] = cur.Value.(float32)
		cur = cur.Next()
	}
	b.filled -= take
	return out
}

// Peek returns the n most recently pushed samples (oldest first within the
// window), without removing them from the buffer. If fewer than n samples
// are buffered, the result is left-padded with silence. Unlike Drain, Peek
// never advances the read position — safe to call repeatedly against a
// buffer another goroutine is concurrently draining for the real mixed
// output.
func (b *RingBuffer) Peek(n int) []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]float32, n)
	if b.filled == 0 {
		return out
	}

	take := n
	if take > b.filled {
		take = b.filled
	}
	cur := b.buf.Move(-take)
	for i := 0; i < take; i++ {
		out[i] = cur.Value.(float32)
		cur = cur.Next()
	}
	return out
}

// Buffered reports how many samples are currently held.
func (b *RingBuffer) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filled
}
