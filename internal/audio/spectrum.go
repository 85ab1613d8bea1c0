package audio

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// SpectrumWindow is the FFT size; one analysis per full window of frames
	SpectrumWindow = 1024

	spectrumFloorDB   = -60.0 // maps to band level 0
	spectrumSmoothing = 0.5
	spectrumSpread    = 0.3
)

// SpectrumCallback receives band levels (0-255) after every analyzed window
type SpectrumCallback func(bands []uint8)

// Spectrum is a level meter over log-spaced frequency bands, fed with rendered
// frames. It is safe for concurrent use.
type Spectrum struct {
	mu sync.Mutex

	fft    *fourier.FFT
	window []float64 // Hann
	ring   []float64 // mono samples
	pos    int

	bandOf   []int // FFT bin -> band, -1 when out of range
	levels   []float64
	counts   []int
	spread   []float64
	smoothed []float64
	scratch  []float64
	coeffs   []complex128

	callback SpectrumCallback
}

// NewSpectrum creates a meter with the given number of bands spanning
// 20 Hz to the lower of 20 kHz and Nyquist
func NewSpectrum(sampleRate, bands int) *Spectrum {
	window := make([]float64, SpectrumWindow)
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(SpectrumWindow-1)))
	}

	maxFreq := math.Min(20000, float64(sampleRate)/2)
	logMin := math.Log10(20)
	logRange := math.Log10(maxFreq) - logMin
	binHz := float64(sampleRate) / SpectrumWindow

	bandOf := make([]int, SpectrumWindow/2)
	for bin := range bandOf {
		freq := float64(bin) * binHz
		if bin == 0 || freq < 20 || freq > maxFreq {
			bandOf[bin] = -1
			continue
		}
		b := int((math.Log10(freq) - logMin) / logRange * float64(bands))
		bandOf[bin] = min(max(b, 0), bands-1)
	}

	return &Spectrum{
		fft:      fourier.NewFFT(SpectrumWindow),
		window:   window,
		ring:     make([]float64, SpectrumWindow),
		bandOf:   bandOf,
		levels:   make([]float64, bands),
		counts:   make([]int, bands),
		spread:   make([]float64, bands),
		smoothed: make([]float64, bands),
		scratch:  make([]float64, SpectrumWindow),
	}
}

// SetCallback registers the function called after each analyzed window
func (s *Spectrum) SetCallback(cb SpectrumCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = cb
}

// Process folds frames to mono and analyzes every completed window.
// The callback runs outside the meter's lock.
func (s *Spectrum) Process(frames [][2]float64) {
	var pending [][]uint8

	s.mu.Lock()
	for _, f := range frames {
		s.ring[s.pos] = (f[0] + f[1]) / 2
		s.pos++
		if s.pos == SpectrumWindow {
			s.pos = 0
			s.analyze()
			if s.callback != nil {
				pending = append(pending, s.bandsLocked())
			}
		}
	}
	cb := s.callback
	s.mu.Unlock()

	for _, bands := range pending {
		cb(bands)
	}
}

func (s *Spectrum) analyze() {
	for i, v := range s.ring {
		s.scratch[i] = v * s.window[i]
	}
	s.coeffs = s.fft.Coefficients(s.coeffs, s.scratch)

	for i := range s.levels {
		s.levels[i] = 0
		s.counts[i] = 0
	}
	for bin, band := range s.bandOf {
		if band < 0 {
			continue
		}
		c := s.coeffs[bin]
		mag := math.Hypot(real(c), imag(c))
		db := 20 * math.Log10(mag/SpectrumWindow+1e-10)
		s.levels[band] += clamp255((db - spectrumFloorDB) / -spectrumFloorDB * 255)
		s.counts[band]++
	}
	for i := range s.levels {
		if s.counts[i] > 0 {
			s.levels[i] /= float64(s.counts[i])
		}
	}

	// Bleed into neighbours so bands without a bin of their own still move
	n := len(s.levels)
	for i, v := range s.levels {
		if i > 0 {
			v += s.levels[i-1] * spectrumSpread
		}
		if i < n-1 {
			v += s.levels[i+1] * spectrumSpread
		}
		s.spread[i] = clamp255(v)
	}
	for i := range s.smoothed {
		s.smoothed[i] = spectrumSmoothing*s.smoothed[i] + (1-spectrumSmoothing)*s.spread[i]
	}
}

func clamp255(v float64) float64 {
	return math.Max(0, math.Min(255, v))
}

func (s *Spectrum) bandsLocked() []uint8 {
	out := make([]uint8, len(s.smoothed))
	for i, v := range s.smoothed {
		out[i] = uint8(clamp255(v))
	}
	return out
}

// Bands returns the current smoothed band levels
func (s *Spectrum) Bands() []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bandsLocked()
}

// Reset clears the window and the smoothed levels
func (s *Spectrum) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = 0
	clear(s.ring)
	clear(s.smoothed)
}
