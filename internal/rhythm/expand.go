package rhythm

import (
	"math/rand/v2"
)

const (
	// SequenceLength is the number of 16th steps in one arrangement cycle (4 bars of 4/4)
	SequenceLength = 64
	// StepsPerBar is the 16th-note grid size of one bar
	StepsPerBar = 16
	// StepsPerSegment maps a step to its intensity segment
	StepsPerSegment = SequenceLength / 16
)

// Tuning holds the probability and threshold constants of the expander and adapter.
// These are feel tunings; changing them changes the musical character.
type Tuning struct {
	VariationChance    float64 `json:"variationChance"`    // odd tiles: a draw above this mutates the step
	DropChance         float64 `json:"dropChance"`         // a populated step is dropped when a draw exceeds this
	FillChance         float64 `json:"fillChance"`         // a rest is filled when a draw exceeds this
	KickThinThreshold  float64 `json:"kickThinThreshold"`  // kicks thin below this intensity
	KickThinChance     float64 `json:"kickThinChance"`     // a low-energy kick is removed when a draw exceeds this
	SnareFillThreshold float64 `json:"snareFillThreshold"` // snares fill above this intensity
	SnareFillChance    float64 `json:"snareFillChance"`    // a high-energy rest gets a snare when a draw exceeds this
}

// DefaultTuning returns the stock constants
func DefaultTuning() Tuning {
	return Tuning{
		VariationChance:    0.7,
		DropChance:         0.5,
		FillChance:         0.8,
		KickThinThreshold:  0.3,
		KickThinChance:     0.7,
		SnareFillThreshold: 0.8,
		SnareFillChance:    0.85,
	}
}

// NewRand returns a PCG-backed source. A zero seed picks a random one.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Sequence is three parallel step sequences, one per percussion voice
type Sequence struct {
	Kick  []Hit `json:"kick"`
	Snare []Hit `json:"snare"`
	HiHat []Hit `json:"hihat"`
}

// Channel returns the steps for one percussion voice, nil for Rest
func (s Sequence) Channel(track Hit) []Hit {
	switch track {
	case Kick:
		return s.Kick
	case Snare:
		return s.Snare
	case HiHat:
		return s.HiHat
	}
	return nil
}

// Count returns the number of populated steps in one channel
func (s Sequence) Count(track Hit) int {
	n := 0
	for _, h := range s.Channel(track) {
		if h != Rest {
			n++
		}
	}
	return n
}

// Len returns the common channel length, or -1 if the channels disagree
func (s Sequence) Len() int {
	if len(s.Kick) != len(s.Snare) || len(s.Kick) != len(s.HiHat) {
		return -1
	}
	return len(s.Kick)
}

// Expand tiles seed until it covers length steps. Even tiles are verbatim copies;
// on odd tiles each step may be dropped to a rest or, if it was a rest, filled
// with a random element borrowed from the seed.
func Expand(seed []Hit, length int, t Tuning, rng *rand.Rand) []Hit {
	out := make([]Hit, length)
	if len(seed) == 0 || length <= 0 {
		return out
	}
	if rng == nil {
		rng = NewRand(0)
	}

	reps := (length + len(seed) - 1) / len(seed)
	pos := 0
	for rep := 0; rep < reps && pos < length; rep++ {
		for _, step := range seed {
			if pos >= length {
				break
			}
			v := step
			if rep%2 == 1 && rng.Float64() > t.VariationChance {
				switch {
				case step != Rest && rng.Float64() > t.DropChance:
					v = Rest
				case step == Rest && rng.Float64() > t.FillChance:
					v = seed[rng.IntN(len(seed))]
				}
			}
			out[pos] = v
			pos++
		}
	}
	return out
}

// ExpandPattern expands all three channels of p to SequenceLength steps
func ExpandPattern(p Pattern, t Tuning, rng *rand.Rand) Sequence {
	if rng == nil {
		rng = NewRand(0)
	}
	return Sequence{
		Kick:  Expand(p.Kick, SequenceLength, t, rng),
		Snare: Expand(p.Snare, SequenceLength, t, rng),
		HiHat: Expand(p.HiHat, SequenceLength, t, rng),
	}
}
