package kits

import (
	"fmt"
	"math"
	"math/rand/v2"
	"path/filepath"

	"github.com/austinkregel/local-media/rhythmd/internal/audio"
)

// Synthesize renders a basic electronic kit: a pitch-swept sine kick, a noisy
// snare and a short noise hi-hat. The noise is seeded so kits are reproducible.
func Synthesize(sampleRate int) map[Slot]*audio.Buffer {
	rng := rand.New(rand.NewPCG(1, 2))
	sr := float64(sampleRate)

	render := func(seconds float64, fn func(t float64) float64) *audio.Buffer {
		n := int(seconds * sr)
		b := &audio.Buffer{SampleRate: sampleRate, Channels: 1, Frames: make([][2]float64, n)}
		for i := range b.Frames {
			v := fn(float64(i) / sr)
			b.Frames[i] = [2]float64{v, v}
		}
		return b
	}

	var kickPhase float64
	kick := render(0.35, func(t float64) float64 {
		freq := 50 + 100*math.Exp(-t*30)
		kickPhase += freq / sr
		return 0.9 * math.Sin(2*math.Pi*kickPhase) * math.Exp(-t*9)
	})
	snare := render(0.2, func(t float64) float64 {
		tone := math.Sin(2 * math.Pi * 190 * t)
		noise := rng.Float64()*2 - 1
		return (0.3*tone + 0.6*noise) * math.Exp(-t*22)
	})
	hihat := render(0.06, func(t float64) float64 {
		return 0.4 * (rng.Float64()*2 - 1) * math.Exp(-t*70)
	})

	return map[Slot]*audio.Buffer{
		SlotKick:  kick,
		SlotSnare: snare,
		SlotHiHat: hihat,
	}
}

// WriteKit writes a synthesized kit for genre under root as WAV files
func WriteKit(root, genre string, sampleRate int) (string, error) {
	dir := Dir(root, genre)
	for slot, buf := range Synthesize(sampleRate) {
		path := filepath.Join(dir, string(slot)+".wav")
		buf.Source = path
		if err := audio.WriteWAV(path, buf); err != nil {
			return "", fmt.Errorf("failed to write %s sample: %w", slot, err)
		}
	}
	return dir, nil
}
