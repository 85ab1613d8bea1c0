package analysis

import (
	"gonum.org/v1/gonum/floats"
)

// Segments is the number of buckets in an intensity profile
const Segments = 16

// Profile is per-segment RMS normalized by the loudest segment.
// Values only compare within one recording.
type Profile [Segments]float64

// Max returns the largest segment value
func (p Profile) Max() float64 {
	return floats.Max(p[:])
}

// Slice returns the profile as a slice
func (p Profile) Slice() []float64 {
	out := make([]float64, Segments)
	copy(out, p[:])
	return out
}

// IntensityProfile splits samples into 16 equal segments of len/16 samples and
// normalizes each segment's RMS by the maximum. Remainder samples past the last
// full segment are not measured. Silent or too-short input yields all zeros.
func IntensityProfile(samples []float64) Profile {
	var p Profile
	seg := len(samples) / Segments
	if seg == 0 {
		return p
	}

	for i := 0; i < Segments; i++ {
		start := i * seg
		end := min(start+seg, len(samples))
		p[i] = rms(samples[start:end])
	}

	peak := floats.Max(p[:])
	if peak == 0 {
		return Profile{}
	}
	floats.Scale(1/peak, p[:])
	return p
}
