package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/faiface/beep/wav"
)

// ErrNothingRecorded is returned when finalizing a recorder that captured no frames
var ErrNothingRecorded = errors.New("nothing recorded")

// Recorder accumulates the rendered mix while armed and writes it out as a
// 16-bit stereo WAV. Only frames passed to Capture are recorded, so pausing the
// renderer pauses the recording.
type Recorder struct {
	mu         sync.Mutex
	sampleRate int
	frames     [][2]float64
	armed      bool
}

// NewRecorder creates an unarmed recorder
func NewRecorder(sampleRate int) *Recorder {
	return &Recorder{sampleRate: sampleRate}
}

// Arm starts accepting frames
func (r *Recorder) Arm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armed = true
}

// Armed reports whether the recorder accepts frames
func (r *Recorder) Armed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.armed
}

// Capture appends a copy of frames when armed
func (r *Recorder) Capture(frames [][2]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.armed {
		return
	}
	r.frames = append(r.frames, frames...)
}

// Trim drops the last n captured frames
func (r *Recorder) Trim(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 {
		return
	}
	r.frames = r.frames[:max(len(r.frames)-n, 0)]
}

// Len returns the number of captured frames
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Finalize disarms the recorder and writes the captured frames to path.
// The captured frames are released afterwards.
func (r *Recorder) Finalize(path string) error {
	r.mu.Lock()
	frames := r.frames
	r.frames = nil
	r.armed = false
	r.mu.Unlock()

	if len(frames) == 0 {
		return ErrNothingRecorded
	}
	buf := &Buffer{Source: path, SampleRate: r.sampleRate, Channels: 2, Frames: frames}
	return WriteWAV(path, buf)
}

// Discard disarms the recorder and drops anything captured
func (r *Recorder) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
	r.armed = false
}

// WriteWAV encodes a buffer as a 16-bit stereo WAV file
func WriteWAV(path string, b *Buffer) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := wav.Encode(f, b.Streamer(), b.Format()); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to encode wav: %w", err)
	}
	return f.Close()
}
