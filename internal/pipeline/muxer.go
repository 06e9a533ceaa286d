package pipeline

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// Muxer consumes mixed audio and composed video frames and writes them to
// a single output artifact, plus a PCM sidecar for transcription. Pause
// intervals buffer silence/frozen frames instead of cutting the file.
type Muxer interface {
	WriteAudio(frame []float32) error
	WriteVideo(frame ComposedFrame) error
	Pause()
	Resume()
	// Finalize flushes and closes the underlying artifact(s), returning
	// the primary output's path and the sidecar PCM's path.
	Finalize() (outputPath, pcmSidecarPath string, err error)
}

// FileMuxer writes to a temp file pair: a raw interleaved-frame container
// stand-in for the muxed output, and a raw PCM sidecar. A production
// encoder (H.264/AAC + MP4 moov/atom finalization) sits below this type;
// what's modeled here is the contract the Bot Controller drives — ordered
// writes, pause-as-silence, and a clean Finalize/fsync — not a codec.
type FileMuxer struct {
	out    *os.File
	pcm    *os.File
	paused bool

	lastVideo ComposedFrame
	hasVideo  bool
}

// NewFileMuxer creates the output and PCM sidecar temp files under dir.
func NewFileMuxer(dir, botObjectID string) (*FileMuxer, error) {
	out, err := os.CreateTemp(dir, botObjectID+"-out-*.bin")
	if err != nil {
		return nil, fmt.Errorf("failed to create muxer output file: %w", err)
	}
	pcm, err := os.CreateTemp(dir, botObjectID+"-pcm-*.raw")
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("failed to create pcm sidecar file: %w", err)
	}
	return &FileMuxer{out: out, pcm: pcm}, nil
}

// WriteAudio appends one mixed frame's samples to both the output
// container and the PCM sidecar. While paused, the frame is replaced with
// silence of the same length so the continuous timeline is preserved.
func (m *FileMuxer) WriteAudio(frame []float32) error {
	if m.paused {
		frame = make([]float32, len(frame))
	}
	buf := make([]byte, len(frame)*4)
	for i, s := range frame {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	if _, err := m.pcm.Write(buf); err != nil {
		return fmt.Errorf("failed to write pcm sidecar: %w", err)
	}
	if _, err := m.out.Write(buf); err != nil {
		return fmt.Errorf("failed to write muxer output audio: %w", err)
	}
	return nil
}

// WriteVideo appends one composed video frame. While paused, the last
// composed frame before the pause is repeated (frozen) instead.
func (m *FileMuxer) WriteVideo(frame ComposedFrame) error {
	if m.paused && m.hasVideo {
		frame = m.lastVideo
	} else {
		m.lastVideo = frame
		m.hasVideo = true
	}
	for _, t := range frame.Tiles {
		if _, err := m.out.Write(t.Frame); err != nil {
			return fmt.Errorf("failed to write muxer output video: %w", err)
		}
	}
	return nil
}

// Pause starts buffering silence/frozen frames instead of cutting the
// output.
func (m *FileMuxer) Pause() { m.paused = true }

// Resume stops substituting silence/frozen frames.
func (m *FileMuxer) Resume() { m.paused = false }

// Finalize fsyncs both files and returns their paths.
func (m *FileMuxer) Finalize() (string, string, error) {
	if err := syncAndClose(m.out); err != nil {
		return "", "", fmt.Errorf("failed to finalize muxer output: %w", err)
	}
	if err := syncAndClose(m.pcm); err != nil {
		return "", "", fmt.Errorf("failed to finalize pcm sidecar: %w", err)
	}
	return m.out.Name(), m.pcm.Name(), nil
}

func syncAndClose(f *os.File) error {
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

