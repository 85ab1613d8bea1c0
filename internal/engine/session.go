package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/austinkregel/local-media/rhythmd/internal/analysis"
	"github.com/austinkregel/local-media/rhythmd/internal/audio"
	"github.com/austinkregel/local-media/rhythmd/internal/export"
	"github.com/austinkregel/local-media/rhythmd/internal/kits"
	"github.com/austinkregel/local-media/rhythmd/internal/rhythm"
	"github.com/austinkregel/local-media/rhythmd/internal/transport"
	"github.com/austinkregel/local-media/rhythmd/internal/voice"
)

// Sampler note names for the three kit slots
var slotNotes = map[kits.Slot]string{
	kits.SlotKick:  rhythm.Kick.String(),
	kits.SlotSnare: rhythm.Snare.String(),
	kits.SlotHiHat: rhythm.HiHat.String(),
}

// idleWait is how long the pump sleeps while the clock is not running
const idleWait = 10 * time.Millisecond

// SpectrumBands is the number of bands in the mix level meter
const SpectrumBands = 64

// Session is one generated arrangement: its clock, its voices and its capture.
// At most one session is live per engine.
type Session struct {
	ID          string
	Genre       rhythm.Genre
	BPM         int
	DetectedBPM int
	Intensity   analysis.Profile
	Expanded    rhythm.Sequence
	Adapted     rhythm.Sequence
	Progression rhythm.Progression

	Transport *transport.Transport
	Sampler   *voice.Sampler
	Vocal     *voice.Player
	Bass      *voice.MonoSynth
	Pads      *voice.PolySynth
	Mixer     *voice.Mixer
	Recorder  *audio.Recorder
	Spectrum  *audio.Spectrum

	// MIDIPath is set when the arrangement was exported
	MIDIPath string

	// render serializes the pump's advance+capture with transport controls
	render sync.Mutex

	recordingPath string
	recorded      bool
	endFrame      int64 // auto-stop frame, 0 disables
	ending        atomic.Bool

	pumpCancel context.CancelFunc
	pumpDone   chan struct{}
}

// bassEnvelope returns the bass envelope; bikutsi gets a snappier attack and release
func bassEnvelope(g rhythm.Genre) voice.Envelope {
	env := voice.Envelope{Attack: 0.01, Decay: 0.1, Sustain: 0.9, Release: 0.8}
	if g == rhythm.GenreBikutsi {
		env.Attack = 0.005
		env.Release = 0.3
	}
	return env
}

var padEnvelope = voice.Envelope{Attack: 0.5, Decay: 0.1, Sustain: 0.3, Release: 2}

// newVoices instantiates the session's voices from a loaded kit and the vocal
func (s *Session) newVoices(kit *kits.Kit, vocal *audio.Buffer, sampleRate int) {
	slots := make(map[string]*audio.Buffer, len(kits.Slots))
	for _, slot := range kits.Slots {
		slots[slotNotes[slot]] = kit.Sample(slot)
	}
	s.Sampler = voice.NewSampler(slots, 0)
	s.Vocal = voice.NewPlayer(vocal, 0)
	s.Bass = voice.NewMonoSynth(sampleRate, voice.SynthOptions{
		Waveform: voice.Sawtooth,
		Envelope: bassEnvelope(s.Genre),
		VolumeDB: -8,
	})
	s.Pads = voice.NewPolySynth(sampleRate, voice.SynthOptions{
		Waveform: voice.Triangle,
		Envelope: padEnvelope,
		VolumeDB: -16,
	})
	s.Mixer = voice.NewMixer(s.Vocal, s.Sampler, s.Bass, s.Pads)
	s.Recorder = audio.NewRecorder(sampleRate)
	s.Spectrum = audio.NewSpectrum(sampleRate, SpectrumBands)
}

// drumLoop schedules one drum channel as a 64-step sequence
func (s *Session) drumLoop(hit rhythm.Hit) transport.Loop {
	vel := export.Velocities[hit]
	note := hit.String()
	var events []transport.Event
	for i, h := range s.Adapted.Channel(hit) {
		if h == rhythm.Rest {
			continue
		}
		events = append(events, transport.Event{Step: i, Fire: func(transport.Tick) {
			s.Sampler.Trigger(note, vel)
		}})
	}
	return transport.Loop{Name: hit.String(), Period: rhythm.SequenceLength, Events: events}
}

// arrange schedules drums, bass, pads and the vocal on the session clock
func (s *Session) arrange() error {
	t := s.Transport
	for _, hit := range []rhythm.Hit{rhythm.Kick, rhythm.Snare, rhythm.HiHat} {
		if _, err := t.Schedule(s.drumLoop(hit)); err != nil {
			return err
		}
	}

	bassFrames := int(t.StepFrame(rhythm.BassLengthSteps))
	var bass []transport.Event
	for _, n := range s.Progression.Bass {
		note := n.Note
		bass = append(bass, transport.Event{Step: rhythm.Step(n.Bar), Fire: func(transport.Tick) {
			if err := s.Bass.TriggerAttackRelease(note, bassFrames, 1); err != nil {
				log.Printf("[ENGINE] Bass trigger failed: %v", err)
			}
		}})
	}
	if _, err := t.Schedule(transport.Loop{
		Name:       "bass",
		Period:     rhythm.PartLoopSteps,
		Iterations: rhythm.PartIterations,
		Events:     bass,
	}); err != nil {
		return err
	}

	chordFrames := int(t.StepFrame(rhythm.ChordLengthSteps))
	var pads []transport.Event
	for _, c := range s.Progression.Chords {
		notes := c.Notes
		pads = append(pads, transport.Event{Step: rhythm.Step(c.Bar), Fire: func(transport.Tick) {
			if err := s.Pads.TriggerAttackRelease(notes, chordFrames, 1); err != nil {
				log.Printf("[ENGINE] Pad trigger failed: %v", err)
			}
		}})
	}
	if _, err := t.Schedule(transport.Loop{
		Name:       "pads",
		Period:     rhythm.PartLoopSteps,
		Iterations: rhythm.PartIterations,
		Events:     pads,
	}); err != nil {
		return err
	}

	_, err := t.Schedule(transport.Loop{
		Name:   "vocal",
		Events: []transport.Event{{Step: 0, Fire: func(transport.Tick) { s.Vocal.Start() }}},
	})
	return err
}

// setAutoStop makes the pump stop the take at the first bar line after the vocal ends
func (s *Session) setAutoStop() {
	frames := s.Vocal.Len()
	if frames == 0 {
		return
	}
	per := s.Transport.FramesPerStep()
	steps := int(float64(frames)/per) + 1
	bars := (steps + rhythm.StepsPerBar - 1) / rhythm.StepsPerBar
	s.endFrame = s.Transport.StepFrame(bars * rhythm.StepsPerBar)
}

// Recording returns the finalized capture path, if any
func (s *Session) Recording() string {
	s.render.Lock()
	defer s.render.Unlock()
	return s.recordingPath
}

// startPump runs the render loop if it isn't running yet
func (s *Session) startPump(out audio.Output, block int, onEnd func(*Session)) {
	if s.pumpDone != nil {
		select {
		case <-s.pumpDone:
		default:
			return
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.pumpCancel = cancel
	s.pumpDone = make(chan struct{})
	go s.pump(ctx, out, block, onEnd)
}

// pump renders the mix block by block while the clock runs, feeding the
// output, the recorder and the level meter. A block is captured only once the
// output accepted it, and both happen under the render lock so Stop can trim
// whatever the output still held back.
func (s *Session) pump(ctx context.Context, out audio.Output, block int, onEnd func(*Session)) {
	defer close(s.pumpDone)
	log.Printf("[ENGINE] Render pump started (session %s)", s.ID)

	buf := make([][2]float64, block)
	var pcm []byte
	for {
		select {
		case <-ctx.Done():
			log.Printf("[ENGINE] Render pump exiting (session %s)", s.ID)
			return
		default:
		}

		s.render.Lock()
		n := s.Transport.Advance(block, func(offset, count int) {
			s.Mixer.Render(buf[offset : offset+count])
		})
		var err error
		if n > 0 {
			pcm = audio.EncodeS16LE(buf[:n], pcm[:0])
			if _, err = out.Write(pcm); err == nil {
				s.Recorder.Capture(buf[:n])
			}
		}
		ended := s.endFrame > 0 && s.Transport.Position() >= s.endFrame
		s.render.Unlock()

		switch {
		case errors.Is(err, audio.ErrOutputStopped):
			n = 0
		case err != nil:
			log.Printf("[ENGINE] Output write failed, stopping pump: %v", err)
			return
		}
		if n == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(idleWait):
			}
			continue
		}

		s.Spectrum.Process(buf[:n])
		if ended && s.ending.CompareAndSwap(false, true) {
			log.Printf("[ENGINE] Vocal finished, ending take (session %s)", s.ID)
			go onEnd(s)
		}
	}
}

// stopPump cancels the render loop and waits for it to exit
func (s *Session) stopPump() {
	if s.pumpCancel != nil {
		s.pumpCancel()
	}
	if s.pumpDone != nil {
		<-s.pumpDone
	}
}

// rewind halts the clock at step 0 and silences every voice. The output is
// flushed and the unplayed tail is cut from the capture.
func (s *Session) rewind(out audio.Output) {
	s.render.Lock()
	defer s.render.Unlock()
	s.Transport.Stop()
	if out != nil {
		s.Recorder.Trim(out.Buffered())
		out.Stop()
	}
	s.Mixer.Reset()
	s.Spectrum.Reset()
	s.ending.Store(false)
}

// dispose stops the clock, cancels every scheduled event and releases all voices.
// The session is unusable afterwards.
func (s *Session) dispose() {
	s.stopPump()
	s.render.Lock()
	defer s.render.Unlock()
	if s.Transport != nil {
		s.Transport.Dispose()
	}
	if s.Mixer != nil {
		s.Mixer.Dispose()
	}
	if s.Recorder != nil {
		s.Recorder.Discard()
	}
	log.Printf("[ENGINE] Session %s disposed", s.ID)
}
