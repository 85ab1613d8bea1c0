package audio

import (
	"math"
	"sync"
	"time"
)

// NullOutput discards audio. With Realtime set, Write sleeps for the duration of
// the data written so the renderer keeps wall-clock pace without a sound card.
type NullOutput struct {
	Rate     int
	Realtime bool

	mu      sync.Mutex
	written int64
	volume  float64
	paused  bool
	stopped bool
	closed  bool
}

// NewNullOutput creates a stereo discarding output
func NewNullOutput(sampleRate int, realtime bool) *NullOutput {
	return &NullOutput{Rate: sampleRate, Realtime: realtime, volume: 1}
}

// NullFactory returns an OutputFactory producing NullOutputs
func NullFactory(realtime bool) OutputFactory {
	return func(sampleRate int) (Output, error) {
		return NewNullOutput(sampleRate, realtime), nil
	}
}

func (o *NullOutput) Write(data []byte) (int, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return 0, ErrOutputClosed
	}
	if o.stopped {
		o.mu.Unlock()
		return 0, ErrOutputStopped
	}
	o.written += int64(len(data))
	o.mu.Unlock()

	if o.Realtime && o.Rate > 0 {
		frames := len(data) / (defaultChannels * defaultBitDepth)
		time.Sleep(time.Duration(frames) * time.Second / time.Duration(o.Rate))
	}
	return len(data), nil
}

// Written returns the number of bytes accepted so far
func (o *NullOutput) Written() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.written
}

func (o *NullOutput) Pause() {
	o.mu.Lock()
	o.paused = true
	o.mu.Unlock()
}

func (o *NullOutput) Resume() {
	o.mu.Lock()
	o.paused = false
	o.stopped = false
	o.mu.Unlock()
}

func (o *NullOutput) Stop() {
	o.mu.Lock()
	o.paused = false
	o.stopped = true
	o.mu.Unlock()
}

// SetVolume records the playback volume, clamped to 0-1
func (o *NullOutput) SetVolume(v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.volume = math.Max(0, math.Min(1, v))
}

// Volume returns the last volume set
func (o *NullOutput) Volume() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

// Buffered is always 0; nothing is held back
func (o *NullOutput) Buffered() int { return 0 }

func (o *NullOutput) Close() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return nil
}

// Closed reports whether Close was called
func (o *NullOutput) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *NullOutput) SampleRate() int { return o.Rate }

func (o *NullOutput) Channels() int { return defaultChannels }

var _ Output = (*NullOutput)(nil)
