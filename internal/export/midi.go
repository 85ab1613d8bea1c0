// Package export writes a generated arrangement as a Standard MIDI File.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/austinkregel/local-media/rhythmd/internal/rhythm"
	"github.com/austinkregel/local-media/rhythmd/internal/voice"
)

const (
	// TicksPerQuarter is the file resolution
	TicksPerQuarter = 96
	ticksPerStep    = TicksPerQuarter / 4

	drumChannel = 9 // GM percussion, channel 10 one-based
	bassChannel = 0
	padChannel  = 1
)

// GM percussion keys
var drumKeys = map[rhythm.Hit]uint8{
	rhythm.Kick:  36,
	rhythm.Snare: 38,
	rhythm.HiHat: 42,
}

// Velocities per drum voice, matching the live sequencer
var Velocities = map[rhythm.Hit]float64{
	rhythm.Kick:  0.9,
	rhythm.Snare: 0.8,
	rhythm.HiHat: 0.6,
}

// Arrangement is everything needed to write one 4-bar cycle
type Arrangement struct {
	Title       string
	BPM         int
	Drums       rhythm.Sequence
	Progression rhythm.Progression
}

type absEvent struct {
	tick uint32
	off  bool
	msg  midi.Message
}

// track collects absolute-time events and converts them to a delta-time track
type track struct {
	name   string
	events []absEvent
}

func (t *track) note(ch, key, vel uint8, start, length uint32) {
	t.events = append(t.events,
		absEvent{tick: start, msg: midi.NoteOn(ch, key, vel)},
		absEvent{tick: start + length, off: true, msg: midi.NoteOff(ch, key)},
	)
}

func (t *track) build() smf.Track {
	sort.SliceStable(t.events, func(i, j int) bool {
		a, b := t.events[i], t.events[j]
		if a.tick != b.tick {
			return a.tick < b.tick
		}
		return a.off && !b.off
	})

	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName(t.name))
	var last uint32
	for _, ev := range t.events {
		tr.Add(ev.tick-last, ev.msg)
		last = ev.tick
	}
	tr.Close(0)
	return tr
}

func velocity(v float64) uint8 {
	return uint8(v*127 + 0.5)
}

// Build converts an arrangement to an in-memory SMF (format 1)
func Build(a Arrangement) (*smf.SMF, error) {
	if a.BPM <= 0 {
		return nil, fmt.Errorf("invalid tempo %d", a.BPM)
	}

	s := smf.NewSMF1()
	s.TimeFormat = smf.MetricTicks(TicksPerQuarter)

	var meta smf.Track
	meta.Add(0, smf.MetaTrackSequenceName(a.Title))
	meta.Add(0, smf.MetaMeter(4, 4))
	meta.Add(0, smf.MetaTempo(float64(a.BPM)))
	meta.Close(uint32(rhythm.PartLoopSteps * ticksPerStep))
	if err := s.Add(meta); err != nil {
		return nil, err
	}

	drums := &track{name: "Drums"}
	for _, hit := range []rhythm.Hit{rhythm.Kick, rhythm.Snare, rhythm.HiHat} {
		vel := velocity(Velocities[hit])
		for i, h := range a.Drums.Channel(hit) {
			if h == rhythm.Rest {
				continue
			}
			drums.note(drumChannel, drumKeys[hit], vel, uint32(i*ticksPerStep), ticksPerStep/2)
		}
	}

	bass := &track{name: "Bass"}
	for _, n := range a.Progression.Bass {
		key, err := voice.ParseNote(n.Note)
		if err != nil {
			return nil, err
		}
		bass.note(bassChannel, uint8(key), 100, uint32(rhythm.Step(n.Bar)*ticksPerStep), rhythm.BassLengthSteps*ticksPerStep)
	}

	pads := &track{name: "Pads"}
	for _, c := range a.Progression.Chords {
		for _, name := range c.Notes {
			key, err := voice.ParseNote(name)
			if err != nil {
				return nil, err
			}
			pads.note(padChannel, uint8(key), 80, uint32(rhythm.Step(c.Bar)*ticksPerStep), rhythm.ChordLengthSteps*ticksPerStep)
		}
	}

	for _, t := range []*track{drums, bass, pads} {
		if err := s.Add(t.build()); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// WriteMIDI writes the arrangement to path
func WriteMIDI(path string, a Arrangement) error {
	s, err := Build(a)
	if err != nil {
		return fmt.Errorf("failed to build midi: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := s.WriteFile(path); err != nil {
		return fmt.Errorf("failed to write midi: %w", err)
	}
	return nil
}
