package pipeline

import (
	"math"
	"sync"
	"time"
)

// SamplesPerTick is how many samples one Mixer.Tick consumes from (and
// emits for) each participant's RingBuffer at SampleRate.
const SamplesPerTick = SampleRate * int(TickInterval/time.Millisecond) / 1000

// ClipThreshold is the soft-clipping ceiling applied to the mixed sum,
// as a fraction of full-scale.
const ClipThreshold = 0.95

// Mixer sums every participant's buffered audio into one mixed frame per
// tick, with soft clipping to avoid a harsh digital ceiling when several
// participants speak at once.
type Mixer struct {
	mu     sync.Mutex
	rings  map[string]*RingBuffer
	ringSeconds int
}

// NewMixer builds a Mixer whose per-participant ring buffers hold
// ringSeconds of audio.
func NewMixer(ringSeconds int) *Mixer {
	return &Mixer{rings: make(map[string]*RingBuffer), ringSeconds: ringSeconds}
}

// IngestAudio appends a participant's PCM samples to their ring buffer,
// creating it on first contact.
func (m *Mixer) IngestAudio(participantID string, samples []float32) {
	m.mu.Lock()
	r, ok := m.rings[participantID]
	if !ok {
		r = NewRingBuffer(m.ringSeconds)
		m.rings[participantID] = r
	}
	m.mu.Unlock()
	r.Push(samples)
}

// Tick drains one SamplesPerTick-wide frame from every known participant
// and sums them into a single mixed frame, soft-clipping the result.
func (m *Mixer) Tick() []float32 {
	m.mu.Lock()
	rings := make([]*RingBuffer, 0, len(m.rings))
	for _, r := range m.rings {
		rings = append(rings, r)
	}
	m.mu.Unlock()

	mixed := make([]float32, SamplesPerTick)
	for _, r := range rings {
		frame := r.Drain(SamplesPerTick)
		for i, s := range frame {
			mixed[i] += s
		}
	}
	for i, s := range mixed {
		mixed[i] = softClip(s)
	}
	return mixed
}

// RMS returns the root-mean-square level of a participant's most recently
// ingested audio, used by the Compositor's active-speaker detection.
// Participants with no ring yet are silent. This peeks rather than drains:
// the same RingBuffer is also drained by Mixer.Tick for the actual mixed
// output, so RMS must never disturb its chronological sample order.
func (m *Mixer) RMS(participantID string, window int) float64 {
	m.mu.Lock()
	r, ok := m.rings[participantID]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	samples := r.Peek(window)
	var sumSquares float64
	for _, s := range samples {
		sumSquares += float64(s) * float64(s)
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}

func softClip(s float32) float32 {
	if s > ClipThreshold {
		return ClipThreshold
	}
	if s < -ClipThreshold {
		return -ClipThreshold
	}
	return s
}

