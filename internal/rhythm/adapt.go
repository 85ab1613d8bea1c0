package rhythm

import "math/rand/v2"

// Adapt merges an expanded sequence with a 16-segment intensity profile.
// Step i reads segment i/4; segments past the end of a short profile read as 0.
// Kicks may only be removed (low energy), snares may
// only be added (high energy), and the hi-hat is copied unchanged.
func Adapt(expanded Sequence, intensity []float64, t Tuning, rng *rand.Rand) Sequence {
	if rng == nil {
		rng = NewRand(0)
	}
	level := func(i int) float64 {
		seg := i / StepsPerSegment
		if seg < len(intensity) {
			return intensity[seg]
		}
		return 0
	}

	out := Sequence{
		Kick:  make([]Hit, len(expanded.Kick)),
		Snare: make([]Hit, len(expanded.Snare)),
		HiHat: append([]Hit(nil), expanded.HiHat...),
	}
	for i, h := range expanded.Kick {
		if h != Rest && level(i) < t.KickThinThreshold && rng.Float64() > t.KickThinChance {
			h = Rest
		}
		out.Kick[i] = h
	}
	for i, h := range expanded.Snare {
		if h == Rest && level(i) > t.SnareFillThreshold && rng.Float64() > t.SnareFillChance {
			h = Snare
		}
		out.Snare[i] = h
	}
	return out
}
