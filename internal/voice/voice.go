// Package voice holds the sound generators of an arrangement: a percussion
// sampler, a monophonic bass synth, a polyphonic pad synth and the vocal
// player, plus the mixer that sums them into one stereo block.
package voice

import (
	"math"
	"sync"
)

// Voice renders audio into a block
type Voice interface {
	// Render adds the voice's next len(buf) frames into buf
	Render(buf [][2]float64)
	// Reset silences every sounding note
	Reset()
	// Dispose releases the voice; it renders nothing afterwards
	Dispose()
	Disposed() bool
}

// DBToGain converts decibels to a linear amplitude factor
func DBToGain(db float64) float64 {
	return math.Pow(10, db/20)
}

// Mixer sums voices into a stereo block
type Mixer struct {
	mu     sync.Mutex
	voices []Voice
}

// NewMixer creates a mixer over voices
func NewMixer(voices ...Voice) *Mixer {
	return &Mixer{voices: voices}
}

// Add appends a voice
func (m *Mixer) Add(v Voice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voices = append(m.voices, v)
}

// Voices returns the mixed voices
func (m *Mixer) Voices() []Voice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Voice(nil), m.voices...)
}

// Render zeroes buf and mixes every live voice into it
func (m *Mixer) Render(buf [][2]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range buf {
		buf[i] = [2]float64{}
	}
	for _, v := range m.voices {
		if !v.Disposed() {
			v.Render(buf)
		}
	}
}

// Reset silences every voice
func (m *Mixer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.voices {
		v.Reset()
	}
}

// Dispose disposes every voice and empties the mixer
func (m *Mixer) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.voices {
		v.Dispose()
	}
	m.voices = nil
}
