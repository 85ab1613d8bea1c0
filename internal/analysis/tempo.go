// Package analysis extracts the tempo and loudness contour of a vocal take.
package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const (
	// MinBPM and MaxBPM bound an octave-corrected estimate
	MinBPM = 60
	MaxBPM = 200
)

// TempoOptions tunes the onset detector
type TempoOptions struct {
	WindowSeconds   float64 `json:"windowSeconds"`   // energy window, hop is half of it
	ThresholdFactor float64 `json:"thresholdFactor"` // onset threshold as a multiple of mean energy
}

// DefaultTempoOptions returns a 50ms window and a 1.5x mean threshold
func DefaultTempoOptions() TempoOptions {
	return TempoOptions{
		WindowSeconds:   0.05,
		ThresholdFactor: 1.5,
	}
}

// EstimateTempo returns a BPM estimate from onset spacing, or 0 when fewer than
// two onsets are found. A non-zero result always lies in [MinBPM, MaxBPM].
func EstimateTempo(samples []float64, sampleRate int, opts TempoOptions) int {
	onsets := DetectOnsets(samples, sampleRate, opts)
	if len(onsets) < 2 {
		return 0
	}

	intervals := make([]float64, 0, len(onsets)-1)
	for i := 1; i < len(onsets); i++ {
		intervals = append(intervals, onsets[i]-onsets[i-1])
	}
	sort.Float64s(intervals)
	median := intervals[len(intervals)/2]
	if median <= 0 {
		return 0
	}

	return octaveCorrect(int(math.Round(60 / median)))
}

// DetectOnsets returns onset times in seconds. An onset is an energy window
// above the threshold that is strictly louder than both of its neighbours.
func DetectOnsets(samples []float64, sampleRate int, opts TempoOptions) []float64 {
	window := int(float64(sampleRate) * opts.WindowSeconds)
	hop := window / 2
	if hop < 1 {
		return nil
	}

	var energies []float64
	for i := 0; i < len(samples)-window; i += hop {
		energies = append(energies, rms(samples[i:i+window]))
	}
	if len(energies) < 3 {
		return nil
	}

	threshold := stat.Mean(energies, nil) * opts.ThresholdFactor
	var onsets []float64
	for k := 1; k < len(energies)-1; k++ {
		e := energies[k]
		if e > threshold && e > energies[k-1] && e > energies[k+1] {
			onsets = append(onsets, float64(k*hop)/float64(sampleRate))
		}
	}
	return onsets
}

// octaveCorrect doubles slow and halves fast readings until they fit the range
func octaveCorrect(bpm int) int {
	if bpm <= 0 {
		return 0
	}
	for bpm < MinBPM {
		bpm *= 2
	}
	for bpm > MaxBPM {
		bpm /= 2
	}
	return bpm
}

// ResolveBPM picks the detected tempo when there is one, else the fallback
func ResolveBPM(detected, fallback int) int {
	if detected > 0 {
		return detected
	}
	return fallback
}

func rms(frame []float64) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(frame)))
}
