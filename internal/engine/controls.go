package engine

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/austinkregel/local-media/rhythmd/internal/audio"
	"github.com/austinkregel/local-media/rhythmd/internal/media"
	"github.com/austinkregel/local-media/rhythmd/internal/types"
)

// snapshot returns the session, phase and output under the state lock
func (e *Engine) snapshot() (*Session, types.Phase, audio.Output) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session, e.status.Phase, e.output
}

func (e *Engine) position(s *Session) time.Duration {
	return framesDuration(int(s.Transport.Position()), s.Transport.SampleRate())
}

// openOutputLocked returns an output at the session rate, opening one if needed.
// Caller holds ctrlMu.
func (e *Engine) openOutputLocked(sampleRate int) (audio.Output, error) {
	_, _, out := e.snapshot()
	if out != nil && out.SampleRate() == sampleRate {
		return out, nil
	}
	if out != nil {
		out.Close()
	}

	out, err := e.factory(sampleRate)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.output = out
	e.mu.Unlock()
	log.Printf("[ENGINE] Audio output opened at %d Hz", sampleRate)
	return out, nil
}

// Play starts or resumes the arrangement. It is a no-op while already playing.
// The first play of a session also starts capturing the mix.
func (e *Engine) Play() error {
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()

	s, phase, _ := e.snapshot()
	if s == nil || !phase.Playable() {
		return ErrNotReady
	}
	if phase == types.PhasePlaying {
		return nil
	}

	out, err := e.openOutputLocked(s.Transport.SampleRate())
	if err != nil {
		log.Printf("[ENGINE] Failed to open audio output: %v", err)
		e.update(0, func(st *types.Status) {
			st.Message = fmt.Sprintf("Error: %v: %v", ErrAudioStart, err)
			st.Error = err.Error()
		})
		return fmt.Errorf("%w: %v", ErrAudioStart, err)
	}
	out.SetVolume(e.Config().Audio.DefaultVolume)
	out.Resume()

	if !s.hasRecording() && !s.Recorder.Armed() {
		s.Recorder.Arm()
		log.Printf("[ENGINE] Capturing session %s", s.ID)
	}
	if !s.Transport.Start() {
		return ErrNoSession
	}
	s.startPump(out, e.Config().Audio.BlockFrames, e.endOfTake)

	e.media.UpdatePlaybackState(media.StatePlaying, e.position(s))
	e.update(0, func(st *types.Status) {
		st.Phase = types.PhasePlaying
		st.Message = fmt.Sprintf("Playing %s (%d BPM)", s.Genre, s.BPM)
		st.Error = ""
	})
	log.Printf("[ENGINE] Playing session %s from %dms", s.ID, e.position(s).Milliseconds())
	return nil
}

// Pause halts the clock and keeps the position. Pausing when not playing is a no-op.
func (e *Engine) Pause() error {
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()

	s, phase, out := e.snapshot()
	if s == nil {
		return ErrNoSession
	}
	if phase != types.PhasePlaying {
		return nil
	}

	s.render.Lock()
	s.Transport.Pause()
	s.render.Unlock()
	if out != nil {
		out.Pause()
	}

	e.media.UpdatePlaybackState(media.StatePaused, e.position(s))
	e.update(0, func(st *types.Status) {
		st.Phase = types.PhasePaused
		st.Message = "Paused"
	})
	log.Printf("[ENGINE] Paused at %dms", e.position(s).Milliseconds())
	return nil
}

// Stop halts the clock, rewinds to the start and finalizes the capture.
// It returns the recording path, or "" when nothing was recorded.
func (e *Engine) Stop() (string, error) {
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()

	s, _, _ := e.snapshot()
	if s == nil {
		return "", ErrNoSession
	}
	return e.stopLocked(s)
}

// stopLocked stops s. Caller holds ctrlMu.
func (e *Engine) stopLocked(s *Session) (string, error) {
	_, phase, out := e.snapshot()
	if phase != types.PhasePlaying && phase != types.PhasePaused {
		return s.Recording(), nil
	}

	s.rewind(out)

	path, err := s.finalize(e.Config().OutputDir)
	if err != nil {
		log.Printf("[ENGINE] Failed to write recording: %v", err)
	}

	e.media.UpdatePlaybackState(media.StateStopped, 0)
	e.update(0, func(st *types.Status) {
		st.Phase = types.PhaseStopped
		st.Message = "Stopped"
		st.RecordingPath = path
		if err != nil {
			st.Message = "Error: " + err.Error()
			st.Error = err.Error()
		}
	})
	if path != "" {
		log.Printf("[ENGINE] Recording saved: %s", path)
	}
	return path, err
}

// endOfTake stops s once the vocal has played through, if it is still live
func (e *Engine) endOfTake(s *Session) {
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()

	if e.Session() != s {
		return
	}
	if _, err := e.stopLocked(s); err != nil {
		log.Printf("[ENGINE] Auto-stop failed: %v", err)
	}
}

// finalize writes the capture to dir/{id}.wav the first time the session stops
func (s *Session) finalize(dir string) (string, error) {
	s.render.Lock()
	defer s.render.Unlock()

	if s.recorded {
		return s.recordingPath, nil
	}
	if !s.Recorder.Armed() {
		return "", nil
	}
	path := filepath.Join(dir, s.ID+".wav")
	if err := s.Recorder.Finalize(path); err != nil {
		if errors.Is(err, audio.ErrNothingRecorded) {
			return "", nil
		}
		return "", fmt.Errorf("failed to finalize recording: %w", err)
	}
	s.recordingPath = path
	s.recorded = true
	return path, nil
}

func (s *Session) hasRecording() bool {
	s.render.Lock()
	defer s.render.Unlock()
	return s.recorded
}

// OnCommand handles media keys
func (e *Engine) OnCommand(cmd media.Command, data interface{}) error {
	log.Printf("[ENGINE] Media command: %s", cmd)

	switch cmd {
	case media.CmdPlay:
		return e.Play()
	case media.CmdPause:
		return e.Pause()
	case media.CmdPlayPause:
		if e.Status().Phase == types.PhasePlaying {
			return e.Pause()
		}
		return e.Play()
	case media.CmdStop:
		_, err := e.Stop()
		if errors.Is(err, ErrNoSession) {
			return nil
		}
		return err
	default:
		return nil
	}
}

var _ media.CommandHandler = (*Engine)(nil)
