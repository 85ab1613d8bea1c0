package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hajimehoshi/oto/v2"
)

const (
	defaultChannels = 2
	defaultBitDepth = 2 // 16-bit = 2 bytes

	// Maximum buffered audio ahead of the sound card.
	// 100ms at 44100Hz stereo 16-bit = 17640 bytes
	maxBufferSize = 17640
)

// ErrOutputClosed is returned by Write after Close
var ErrOutputClosed = errors.New("audio output closed")

// ErrOutputStopped is returned by Write between Stop and the next Resume
var ErrOutputStopped = errors.New("audio output stopped")

// Output is a sink for interleaved s16le PCM. Stop discards anything not yet
// played and makes Write fail with ErrOutputStopped until Resume.
type Output interface {
	io.WriteCloser
	SampleRate() int
	Channels() int
	Pause()
	Resume()
	Stop()
	SetVolume(v float64)
	// Buffered returns the number of frames written but not yet played
	Buffered() int
}

// OutputFactory opens an output at a sample rate
type OutputFactory func(sampleRate int) (Output, error)

// OtoOutput is an audio output using the Oto library
type OtoOutput struct {
	context    *oto.Context
	player     oto.Player // oto.Player is an interface, not a pointer
	sampleRate int
	channels   int
	maxBuffer  int
	mu         sync.Mutex
	cond       *sync.Cond // Condition variable for pause/resume synchronization
	buffer     *bytes.Buffer
	volume     float64 // 0.0 - 1.0
	paused     bool    // True when explicitly paused - prevents auto-resume on Write
	stopped    bool    // True from Stop until Resume - Write drops data
	closed     bool    // True when output is closed - unblocks waiting goroutines
}

// oto allows one context per process
var (
	otoOnce    sync.Once
	otoContext *oto.Context
	otoRate    int
	otoErr     error
)

// NewOtoOutputWithConfig creates a new Oto-based audio output with custom config
func NewOtoOutputWithConfig(sampleRate, channels, bufferMs int) (*OtoOutput, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(sampleRate, channels, defaultBitDepth)
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		// Wait for context to be ready
		<-ready
		otoContext = ctx
		otoRate = sampleRate
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoRate != sampleRate {
		return nil, fmt.Errorf("oto context already open at %d Hz", otoRate)
	}

	maxBuffer := maxBufferSize
	if bufferMs > 0 {
		maxBuffer = sampleRate * channels * defaultBitDepth * bufferMs / 1000
	}

	output := &OtoOutput{
		context:    otoContext,
		sampleRate: sampleRate,
		channels:   channels,
		maxBuffer:  maxBuffer,
		buffer:     &bytes.Buffer{},
		volume:     1.0,
	}
	output.cond = sync.NewCond(&output.mu)

	// Create player with the buffer as source
	output.player = otoContext.NewPlayer(output)

	return output, nil
}

// OtoFactory returns an OutputFactory opening stereo oto outputs
func OtoFactory(bufferMs int) OutputFactory {
	return func(sampleRate int) (Output, error) {
		return NewOtoOutputWithConfig(sampleRate, defaultChannels, bufferMs)
	}
}

// Read implements io.Reader for the player to read from
func (o *OtoOutput) Read(p []byte) (n int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	// Block while paused and not closed, waiting for Resume() or Close()
	for o.paused && !o.closed {
		o.cond.Wait()
	}

	// If closed, signal EOF to stop the player cleanly
	if o.closed {
		return 0, io.EOF
	}

	// If buffer is empty but not paused, return silence to keep stream alive
	if o.buffer.Len() == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n, err = o.buffer.Read(p)
	if err != nil {
		return n, err
	}

	// Apply volume scaling to 16-bit PCM samples
	if o.volume < 1.0 && n > 0 {
		o.applyVolume(p[:n])
	}

	return n, nil
}

// applyVolume scales 16-bit PCM samples by the current volume
func (o *OtoOutput) applyVolume(data []byte) {
	vol := o.volume
	if vol >= 1.0 {
		return
	}

	// Process 16-bit samples (2 bytes per sample, little-endian)
	for i := 0; i < len(data)-1; i += 2 {
		sample := int16(data[i]) | int16(data[i+1])<<8
		scaled := int16(float64(sample) * vol)
		data[i] = byte(scaled)
		data[i+1] = byte(scaled >> 8)
	}
}

// SetVolume sets the playback volume (0.0 - 1.0)
func (o *OtoOutput) SetVolume(v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	o.volume = v
}

// Write writes PCM audio data to the output buffer.
// Blocks while the buffer is full so the renderer runs at playback speed.
// A blocked Write returns ErrOutputStopped once Stop is called.
func (o *OtoOutput) Write(data []byte) (int, error) {
	for {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return 0, ErrOutputClosed
		}
		if o.stopped {
			o.mu.Unlock()
			return 0, ErrOutputStopped
		}
		if o.buffer.Len() < o.maxBuffer {
			break
		}
		o.mu.Unlock()
		// Buffer full, wait for playback to consume some
		time.Sleep(10 * time.Millisecond)
	}
	defer o.mu.Unlock()

	n, err := o.buffer.Write(data)
	if err != nil {
		return n, err
	}

	// Only auto-start player if not explicitly paused
	if o.player != nil && !o.player.IsPlaying() && !o.paused {
		o.player.Play()
	}

	return n, nil
}

// Pause pauses audio playback
func (o *OtoOutput) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.paused = true // Set flag BEFORE pausing to prevent race with Write
	if o.player != nil && o.player.IsPlaying() {
		o.player.Pause()
	}
}

// Resume resumes audio playback
func (o *OtoOutput) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.paused = false
	o.stopped = false
	o.cond.Broadcast() // Wake up any blocked Read() goroutines
	if o.player != nil && !o.player.IsPlaying() {
		o.player.Play()
	}
}

// Stop stops playback and clears the buffer. Writes fail until Resume.
func (o *OtoOutput) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.paused = false
	o.stopped = true
	o.cond.Broadcast()
	if o.player != nil {
		o.player.Pause()
	}
	// Clear the buffer so old audio doesn't play when we start again
	o.buffer.Reset()
}

// Buffered returns the number of frames waiting to be played
func (o *OtoOutput) Buffered() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buffer.Len() / (o.channels * defaultBitDepth)
}

// Close releases the audio output resources
func (o *OtoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true
	o.cond.Broadcast() // Wake up any blocked Read() goroutines so they can exit

	if o.player != nil {
		if err := o.player.Close(); err != nil {
			return err
		}
	}
	return nil
}

// SampleRate returns the sample rate
func (o *OtoOutput) SampleRate() int {
	return o.sampleRate
}

// Channels returns the number of channels
func (o *OtoOutput) Channels() int {
	return o.channels
}

var (
	_ io.Reader = (*OtoOutput)(nil)
	_ Output    = (*OtoOutput)(nil)
)
