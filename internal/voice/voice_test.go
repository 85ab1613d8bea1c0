package voice

import (
	"errors"
	"math"
	"testing"

	"github.com/austinkregel/local-media/rhythmd/internal/audio"
)

func TestParseNote(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"C4", 60},
		{"A4", 69},
		{"C1", 24},
		{"C2", 36},
		{"F#3", 54},
		{"Bb2", 46},
		{"e1", 28},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNote(tt.name)
			if err != nil {
				t.Fatalf("ParseNote failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}

	for _, bad := range []string{"", "H2", "C", "Cx", "C99"} {
		if _, err := ParseNote(bad); !errors.Is(err, ErrBadNote) {
			t.Errorf("ParseNote(%q): expected ErrBadNote, got %v", bad, err)
		}
	}
}

func TestFrequency(t *testing.T) {
	if f := Frequency(69); f != 440 {
		t.Errorf("Expected A4 = 440Hz, got %f", f)
	}
	if f := Frequency(57); math.Abs(f-220) > 1e-9 {
		t.Errorf("Expected A3 = 220Hz, got %f", f)
	}
}

func TestEnvelope(t *testing.T) {
	// 100Hz makes seconds-to-frames easy: attack 10, decay 10, release 20 frames
	e := Envelope{Attack: 0.1, Decay: 0.1, Sustain: 0.5, Release: 0.2}
	const sr = 100

	tests := []struct {
		t, gate int
		want    float64
		done    bool
	}{
		{0, 100, 0, false},
		{5, 100, 0.5, false},
		{10, 100, 1, false},
		{15, 100, 0.75, false},
		{50, 100, 0.5, false},
		{110, 100, 0.25, false},
		{120, 100, 0, true},
		{5, 5, 0.5, false},  // released during attack
		{15, 5, 0.25, false}, // halfway through release from 0.5
	}

	for _, tt := range tests {
		got, done := e.Level(tt.t, tt.gate, sr)
		if math.Abs(got-tt.want) > 1e-9 || done != tt.done {
			t.Errorf("Level(%d, %d): expected (%f, %v), got (%f, %v)", tt.t, tt.gate, tt.want, tt.done, got, done)
		}
	}
}

func TestWaveforms(t *testing.T) {
	if v := Sawtooth.Sample(0); v != -1 {
		t.Errorf("Expected sawtooth to start at -1, got %f", v)
	}
	if v := Triangle.Sample(0.5); v != -1 {
		t.Errorf("Expected triangle trough at 0.5, got %f", v)
	}
	for _, w := range []Waveform{Sine, Sawtooth, Triangle, Square} {
		for p := 0.0; p < 1; p += 0.01 {
			if v := w.Sample(p); v < -1 || v > 1 {
				t.Errorf("%s(%f) = %f out of range", w, p, v)
			}
		}
	}
}

func oneShot(frames int, v float64) *audio.Buffer {
	b := &audio.Buffer{SampleRate: 1000, Channels: 2, Frames: make([][2]float64, frames)}
	for i := range b.Frames {
		b.Frames[i] = [2]float64{v, v}
	}
	return b
}

func TestSampler(t *testing.T) {
	s := NewSampler(map[string]*audio.Buffer{"C1": oneShot(10, 0.5)}, 0)

	if s.Trigger("D1", 1) {
		t.Error("Expected unmapped note to be rejected")
	}
	if !s.Trigger("C1", 0.8) {
		t.Fatal("Expected mapped note to trigger")
	}

	buf := make([][2]float64, 6)
	s.Render(buf)
	if math.Abs(buf[0][0]-0.4) > 1e-9 {
		t.Errorf("Expected 0.4 (0.5 * velocity 0.8), got %f", buf[0][0])
	}

	// overlapping second hit
	s.Trigger("C1", 1)
	buf = make([][2]float64, 6)
	s.Render(buf)
	if math.Abs(buf[0][0]-0.9) > 1e-9 {
		t.Errorf("Expected overlapping hits to sum to 0.9, got %f", buf[0][0])
	}
	if math.Abs(buf[5][0]-0.5) > 1e-9 {
		t.Errorf("Expected first hit finished by frame 4, got %f at frame 5", buf[5][0])
	}
	if s.Active() != 1 {
		t.Errorf("Expected 1 active hit, got %d", s.Active())
	}

	s.Dispose()
	if !s.Disposed() || s.Trigger("C1", 1) {
		t.Error("Expected disposed sampler to refuse triggers")
	}
}

func TestMonoSynthReleases(t *testing.T) {
	s := NewMonoSynth(1000, SynthOptions{
		Waveform: Square,
		Envelope: Envelope{Attack: 0, Decay: 0, Sustain: 1, Release: 0.01},
		VolumeDB: 0,
	})
	if err := s.TriggerAttackRelease("A4", 20, 1); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if err := s.TriggerAttackRelease("nope", 20, 1); !errors.Is(err, ErrBadNote) {
		t.Errorf("Expected ErrBadNote, got %v", err)
	}

	buf := make([][2]float64, 40)
	s.Render(buf)
	if buf[0][0] != 1 {
		t.Errorf("Expected square wave at full level, got %f", buf[0][0])
	}
	for i := 30; i < 40; i++ {
		if buf[i][0] != 0 {
			t.Errorf("frame %d: expected silence after release, got %f", i, buf[i][0])
		}
	}
	if s.Triggers() != 1 {
		t.Errorf("Expected 1 trigger, got %d", s.Triggers())
	}
}

func TestPolySynthChord(t *testing.T) {
	s := NewPolySynth(1000, SynthOptions{
		Waveform: Triangle,
		Envelope: Envelope{Sustain: 1, Release: 0.01},
		VolumeDB: -6,
	})
	if err := s.TriggerAttackRelease([]string{"C3", "E3", "G3", "C4"}, 100, 1); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if s.Active() != 4 {
		t.Errorf("Expected 4 sounding notes, got %d", s.Active())
	}

	buf := make([][2]float64, 200)
	s.Render(buf)
	if s.Active() != 0 {
		t.Errorf("Expected notes released after 110 frames, got %d active", s.Active())
	}
	// -6dB on four in-phase triangles starting at +1
	if math.Abs(buf[0][0]-4*DBToGain(-6)) > 1e-9 {
		t.Errorf("Expected %f at frame 0, got %f", 4*DBToGain(-6), buf[0][0])
	}

	s.Reset()
	s.Dispose()
	if !s.Disposed() {
		t.Error("Expected disposed synth")
	}
}

func TestPlayer(t *testing.T) {
	p := NewPlayer(oneShot(10, 0.25), 0)

	buf := make([][2]float64, 4)
	p.Render(buf)
	if buf[0][0] != 0 {
		t.Error("Expected silence before Start")
	}

	p.Start()
	for i := 0; i < 3; i++ {
		buf = make([][2]float64, 4)
		p.Render(buf)
	}
	if !p.Done() {
		t.Errorf("Expected player done after 12 frames, position %d", p.Position())
	}
	if buf[1][0] != 0.25 || buf[2][0] != 0 {
		t.Errorf("Expected last block [0.25 0.25 0 0], got %v", buf)
	}

	p.Reset()
	if p.Done() || p.Position() != 0 {
		t.Error("Expected reset player to be rewound and not done")
	}
}

func TestMixer(t *testing.T) {
	a := NewPlayer(oneShot(10, 0.25), 0)
	b := NewPlayer(oneShot(10, 0.5), 0)
	a.Start()
	b.Start()

	m := NewMixer(a, b)
	buf := [][2]float64{{9, 9}, {9, 9}}
	m.Render(buf)
	if buf[0][0] != 0.75 {
		t.Errorf("Expected 0.75, got %f", buf[0][0])
	}

	b.Dispose()
	m.Render(buf)
	if buf[0][0] != 0.25 {
		t.Errorf("Expected disposed voice to be skipped, got %f", buf[0][0])
	}

	m.Dispose()
	if !a.Disposed() || len(m.Voices()) != 0 {
		t.Error("Expected mixer dispose to dispose its voices")
	}
}
