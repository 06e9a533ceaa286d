package pipeline

import (
	"encoding/binary"
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBufferDropsOldestOnOverflow(t *testing.T) {
	r := NewRingBuffer(0) // defaults to DefaultRingSeconds
	capacity := r.capacity

	// Fill past capacity; the earliest samples should be the ones
	// overwritten, so draining the full buffer yields the most recent
	// `capacity` values.
	samples := make([]float32, capacity+100)
	for i := range samples {
		samples[i] = float32(i)
	}
	r.Push(samples)

	got := r.Drain(capacity)
	assert.Equal(t, float32(100), got[0], "oldest surviving sample should be index 100, not 0")
}

// RMS must not disturb the chronological order Tick relies on: pushing a
// ramp, calling RMS repeatedly (as the compositor does every tick), then
// draining for the real mixed output should still yield the samples
// oldest-first and undisturbed.
func TestMixerRMSDoesNotScrambleTickOrder(t *testing.T) {
	m := NewMixer(1)
	rampValue := func(i int) float32 { return float32(i%2000) / 10000 } // stays well under ClipThreshold
	ramp := make([]float32, SamplesPerTick*3)
	for i := range ramp {
		ramp[i] = rampValue(i)
	}
	m.IngestAudio("p1", ramp)

	for i := 0; i < 5; i++ {
		m.RMS("p1", SamplesPerTick)
	}

	for tick := 0; tick < 3; tick++ {
		frame := m.Tick()
		for i, s := range frame {
			want := rampValue(tick*SamplesPerTick + i)
			require.Equal(t, want, s, "tick %d sample %d: RMS peeking should not reorder the drained audio", tick, i)
		}
	}
}

func TestMixerSoftClipsSummedAudio(t *testing.T) {
	m := NewMixer(1)
	loud := make([]float32, SamplesPerTick)
	for i := range loud {
		loud[i] = 0.9
	}
	m.IngestAudio("p1", loud)
	m.IngestAudio("p2", loud)

	mixed := m.Tick()
	for _, s := range mixed {
		assert.LessOrEqual(t, s, float32(ClipThreshold))
	}
}

func TestClockSeedsOnceAndQuantizes(t *testing.T) {
	c := NewClock()
	epoch := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Seed(epoch)
	c.Seed(epoch.Add(time.Hour)) // second Seed must be a no-op

	got := c.RelativeMS(epoch.Add(23 * time.Millisecond))
	assert.Equal(t, int64(20), got, "23ms should quantize down to the 10ms tick boundary")
}

func TestCompositorGalleryCountRoundsUp(t *testing.T) {
	assert.Equal(t, 1, galleryCount(1))
	assert.Equal(t, 4, galleryCount(3))
	assert.Equal(t, 9, galleryCount(5))
	assert.Equal(t, 16, galleryCount(10))
	assert.Equal(t, 16, galleryCount(30))
}

func TestFileMuxerPauseFreezesVideoAndSilencesAudio(t *testing.T) {
	mux, err := NewFileMuxer(t.TempDir(), "bot-object-1")
	require.NoError(t, err)

	loud := []float32{0.5, 0.5, 0.5}
	require.NoError(t, mux.WriteAudio(loud))
	require.NoError(t, mux.WriteVideo(ComposedFrame{Tiles: []Tile{{Frame: []byte{1, 2}}}}))

	mux.Pause()
	require.NoError(t, mux.WriteAudio(loud))
	require.NoError(t, mux.WriteVideo(ComposedFrame{Tiles: []Tile{{Frame: []byte{9, 9}}}}))
	mux.Resume()

	outPath, pcmPath, err := mux.Finalize()
	require.NoError(t, err)
	assert.FileExists(t, outPath)
	assert.FileExists(t, pcmPath)

	pcm, err := os.ReadFile(pcmPath)
	require.NoError(t, err)
	require.Len(t, pcm, 24)
	for i := 0; i < 6; i++ {
		want := float32(0.5)
		if i >= 3 {
			want = 0 // written while paused: silence
		}
		assert.Equal(t, want, math.Float32frombits(binary.LittleEndian.Uint32(pcm[i*4:])), "pcm sample %d", i)
	}

	// Each write pair puts 12 bytes of audio, then the 2-byte tile, in out.
	out, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Len(t, out, 28)
	assert.Equal(t, []byte{1, 2}, out[12:14])
	assert.Equal(t, []byte{1, 2}, out[26:28], "paused video write should repeat the last frame")
}
