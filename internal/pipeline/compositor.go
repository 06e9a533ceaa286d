package pipeline

import (
	"sync"
	"time"

	"github.com/meetingbot/core/internal/models"
)

// ActiveSpeakerWindow is how far back RMS is measured to pick the active
// speaker.
const ActiveSpeakerWindow = 500 * time.Millisecond

// ActiveSpeakerHysteresis is the minimum dwell time before the active
// speaker can change again, to avoid flicker when two participants trade
// off quickly.
const ActiveSpeakerHysteresis = 1 * time.Second

// Tile is one rendered cell of a composed video frame: either a
// participant's video, or a name placeholder when no video is available
// for that participant yet.
type Tile struct {
	ParticipantID string
	Name          string
	Frame         []byte // nil when Placeholder is true
	Placeholder   bool
}

// ComposedFrame is the Compositor's output for one tick.
type ComposedFrame struct {
	Policy models.VideoCompositionPolicy
	Tiles  []Tile
}

// galleryTileCounts is the supported grid sizes, chosen by rounding the
// participant count up to the next supported tile count.
var galleryTileCounts = []int{1, 2, 4, 9, 16}

// Compositor tracks each participant's most recent video frame and the
// current active speaker, and renders one ComposedFrame per tick
// according to the configured policy.
type Compositor struct {
	mixer  *Mixer
	policy models.VideoCompositionPolicy

	mu              sync.Mutex
	names           map[string]string
	lastVideo       map[string][]byte
	activeSpeaker   string
	speakerSince    time.Time
}

// NewCompositor builds a Compositor reading RMS levels from mixer.
func NewCompositor(mixer *Mixer, policy models.VideoCompositionPolicy) *Compositor {
	if policy == "" {
		policy = models.CompositionGalleryView
	}
	return &Compositor{
		mixer:     mixer,
		policy:    policy,
		names:     make(map[string]string),
		lastVideo: make(map[string][]byte),
	}
}

// SetName records a participant's display name, used for placeholder
// tiles when no video is available.
func (c *Compositor) SetName(participantID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[participantID] = name
}

// IngestVideo records a participant's most recent video frame.
func (c *Compositor) IngestVideo(participantID string, frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastVideo[participantID] = frame
}

// RemoveParticipant drops a participant's tracked state on LEAVE.
func (c *Compositor) RemoveParticipant(participantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.names, participantID)
	delete(c.lastVideo, participantID)
	if c.activeSpeaker == participantID {
		c.activeSpeaker = ""
	}
}

// updateActiveSpeaker recomputes the active speaker from RMS, applying
// hysteresis so a momentarily louder participant doesn't immediately
// steal focus.
func (c *Compositor) updateActiveSpeaker(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	windowSamples := int(ActiveSpeakerWindow / time.Second * SampleRate)
	if windowSamples <= 0 {
		windowSamples = SampleRate / 2
	}

	var best string
	var bestRMS float64
	for id := range c.lastVideo {
		rms := c.mixer.RMS(id, windowSamples)
		if rms > bestRMS {
			bestRMS = rms
			best = id
		}
	}
	if best == "" || best == c.activeSpeaker {
		return
	}
	if !c.speakerSince.IsZero() && now.Sub(c.speakerSince) < ActiveSpeakerHysteresis {
		return
	}
	c.activeSpeaker = best
	c.speakerSince = now
}

// Tick renders one ComposedFrame for now according to the configured
// policy.
func (c *Compositor) Tick(now time.Time) ComposedFrame {
	c.updateActiveSpeaker(now)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.policy == models.CompositionSpeakerView {
		id := c.activeSpeaker
		if id == "" {
			for pid := range c.lastVideo {
				id = pid
				break
			}
		}
		return ComposedFrame{Policy: c.policy, Tiles: []Tile{c.tileFor(id)}}
	}

	ids := make([]string, 0, len(c.lastVideo))
	for id := range c.lastVideo {
		ids = append(ids, id)
	}
	target := galleryCount(len(ids))
	tiles := make([]Tile, 0, target)
	for _, id := range ids {
		tiles = append(tiles, c.tileFor(id))
		if len(tiles) == target {
			break
		}
	}
	return ComposedFrame{Policy: c.policy, Tiles: tiles}
}

func (c *Compositor) tileFor(id string) Tile {
	if id == "" {
		return Tile{Placeholder: true}
	}
	if frame, ok := c.lastVideo[id]; ok && frame != nil {
		return Tile{ParticipantID: id, Name: c.names[id], Frame: frame}
	}
	return Tile{ParticipantID: id, Name: c.names[id], Placeholder: true}
}

// galleryCount rounds n up to the next supported gallery grid size.
func galleryCount(n int) int {
	for _, t := range galleryTileCounts {
		if n <= t {
			return t
		}
	}
	return galleryTileCounts[len(galleryTileCounts)-1]
}
