package voice

import (
	"math"
	"sync"
)

// maxPolyphony bounds the pad synth's simultaneous notes
const maxPolyphony = 32

// SynthOptions configures a synth voice
type SynthOptions struct {
	Waveform Waveform
	Envelope Envelope
	VolumeDB float64
}

type synthNote struct {
	freq  float64
	phase float64
	t     int
	gate  int
	vel   float64
}

// render adds the note into buf and reports whether it is still sounding
func (n *synthNote) render(buf [][2]float64, opts SynthOptions, sampleRate int, gain float64) bool {
	inc := n.freq / float64(sampleRate)
	for i := range buf {
		level, done := opts.Envelope.Level(n.t, n.gate, sampleRate)
		if done {
			return false
		}
		v := opts.Waveform.Sample(n.phase) * level * n.vel * gain
		buf[i][0] += v
		buf[i][1] += v
		n.phase += inc
		n.phase -= math.Floor(n.phase)
		n.t++
	}
	return true
}

// MonoSynth plays one note at a time; a new note cuts the previous one
type MonoSynth struct {
	mu         sync.Mutex
	sampleRate int
	opts       SynthOptions
	gain       float64
	note       *synthNote
	triggers   int
	disposed   bool
}

// NewMonoSynth creates a monophonic synth
func NewMonoSynth(sampleRate int, opts SynthOptions) *MonoSynth {
	return &MonoSynth{sampleRate: sampleRate, opts: opts, gain: DBToGain(opts.VolumeDB)}
}

// Options returns the synth configuration
func (s *MonoSynth) Options() SynthOptions {
	return s.opts
}

// TriggerAttackRelease plays note for duration frames
func (s *MonoSynth) TriggerAttackRelease(note string, duration int, velocity float64) error {
	freq, err := NoteFrequency(note)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil
	}
	phase := 0.0
	if s.note != nil {
		phase = s.note.phase
	}
	s.note = &synthNote{freq: freq, phase: phase, gate: duration, vel: velocity}
	s.triggers++
	return nil
}

// Triggers returns the number of notes played
func (s *MonoSynth) Triggers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.triggers
}

func (s *MonoSynth) Render(buf [][2]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.note == nil {
		return
	}
	if !s.note.render(buf, s.opts, s.sampleRate, s.gain) {
		s.note = nil
	}
}

func (s *MonoSynth) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.note = nil
}

func (s *MonoSynth) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.note = nil
	s.disposed = true
}

func (s *MonoSynth) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// PolySynth plays overlapping notes, dropping the oldest past maxPolyphony
type PolySynth struct {
	mu         sync.Mutex
	sampleRate int
	opts       SynthOptions
	gain       float64
	notes      []*synthNote
	triggers   int
	disposed   bool
}

// NewPolySynth creates a polyphonic synth
func NewPolySynth(sampleRate int, opts SynthOptions) *PolySynth {
	return &PolySynth{sampleRate: sampleRate, opts: opts, gain: DBToGain(opts.VolumeDB)}
}

// Options returns the synth configuration
func (s *PolySynth) Options() SynthOptions {
	return s.opts
}

// TriggerAttackRelease plays every note of a chord for duration frames
func (s *PolySynth) TriggerAttackRelease(notes []string, duration int, velocity float64) error {
	freqs := make([]float64, 0, len(notes))
	for _, n := range notes {
		f, err := NoteFrequency(n)
		if err != nil {
			return err
		}
		freqs = append(freqs, f)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil
	}
	for _, f := range freqs {
		if len(s.notes) >= maxPolyphony {
			s.notes = s.notes[1:]
		}
		s.notes = append(s.notes, &synthNote{freq: f, gate: duration, vel: velocity})
	}
	s.triggers++
	return nil
}

// Triggers returns the number of chords played
func (s *PolySynth) Triggers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.triggers
}

// Active returns the number of sounding notes
func (s *PolySynth) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notes)
}

func (s *PolySynth) Render(buf [][2]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	live := s.notes[:0]
	for _, n := range s.notes {
		if n.render(buf, s.opts, s.sampleRate, s.gain) {
			live = append(live, n)
		}
	}
	s.notes = live
}

func (s *PolySynth) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = nil
}

func (s *PolySynth) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = nil
	s.disposed = true
}

func (s *PolySynth) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

var (
	_ Voice = (*MonoSynth)(nil)
	_ Voice = (*PolySynth)(nil)
)
