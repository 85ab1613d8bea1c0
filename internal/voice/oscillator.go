package voice

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrBadNote is returned for note names that cannot be parsed
var ErrBadNote = errors.New("invalid note name")

// Waveform is an oscillator shape
type Waveform int

const (
	Sine Waveform = iota
	Sawtooth
	Triangle
	Square
)

func (w Waveform) String() string {
	switch w {
	case Sawtooth:
		return "sawtooth"
	case Triangle:
		return "triangle"
	case Square:
		return "square"
	default:
		return "sine"
	}
}

// Sample returns the waveform value at phase in [0, 1)
func (w Waveform) Sample(phase float64) float64 {
	switch w {
	case Sawtooth:
		return 2*phase - 1
	case Triangle:
		return 4*math.Abs(phase-0.5) - 1
	case Square:
		if phase < 0.5 {
			return 1
		}
		return -1
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

var semitones = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// ParseNote converts a scientific pitch name ("C2", "F#3", "Bb4") to a MIDI
// note number, with C4 = 60.
func ParseNote(name string) (int, error) {
	s := strings.TrimSpace(name)
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrBadNote, name)
	}
	base, ok := semitones[strings.ToUpper(s[:1])[0]]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrBadNote, name)
	}
	rest := s[1:]
	for len(rest) > 0 && (rest[0] == '#' || rest[0] == 'b') {
		if rest[0] == '#' {
			base++
		} else {
			base--
		}
		rest = rest[1:]
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadNote, name)
	}
	midi := (octave+1)*12 + base
	if midi < 0 || midi > 127 {
		return 0, fmt.Errorf("%w: %q out of range", ErrBadNote, name)
	}
	return midi, nil
}

// Frequency returns the equal-tempered frequency of a MIDI note (A4 = 440Hz)
func Frequency(midi int) float64 {
	return 440 * math.Pow(2, float64(midi-69)/12)
}

// NoteFrequency parses a note name and returns its frequency
func NoteFrequency(name string) (float64, error) {
	m, err := ParseNote(name)
	if err != nil {
		return 0, err
	}
	return Frequency(m), nil
}
