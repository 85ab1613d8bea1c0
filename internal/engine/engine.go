// Package engine turns a vocal take into a playable arrangement: it analyzes
// the vocal, builds the genre drum pattern, instantiates the voices, schedules
// them on a per-session clock and exposes play/pause/stop with capture.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/austinkregel/local-media/rhythmd/internal/analysis"
	"github.com/austinkregel/local-media/rhythmd/internal/audio"
	"github.com/austinkregel/local-media/rhythmd/internal/config"
	"github.com/austinkregel/local-media/rhythmd/internal/export"
	"github.com/austinkregel/local-media/rhythmd/internal/kits"
	"github.com/austinkregel/local-media/rhythmd/internal/media"
	"github.com/austinkregel/local-media/rhythmd/internal/rhythm"
	"github.com/austinkregel/local-media/rhythmd/internal/transport"
	"github.com/austinkregel/local-media/rhythmd/internal/types"
)

var (
	// ErrInvalidInput is returned before any work starts when the vocal or genre is missing
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotReady is returned by Play when no arrangement is ready
	ErrNotReady = errors.New("no arrangement ready to play")
	// ErrNoSession is returned by transport controls when nothing was generated
	ErrNoSession = errors.New("no active session")
	// ErrAudioStart is returned when the audio output cannot be opened; retrying Play may succeed
	ErrAudioStart = errors.New("audio output failed to start")
)

// Decoder decodes an uploaded vocal
type Decoder interface {
	Decode(ctx context.Context, source, mimeType string, data []byte) (*audio.Buffer, error)
}

// Options carries the engine's collaborators. Nil fields get production defaults.
type Options struct {
	Decoder Decoder
	Kits    kits.Loader
	Output  audio.OutputFactory
	Media   media.Session
}

// StatusCallback receives every status change
type StatusCallback func(types.Status)

// SpectrumCallback receives mix band levels while playing, with the clock position
type SpectrumCallback func(bands []uint8, position time.Duration)

// Engine owns at most one arrangement session
type Engine struct {
	mu      sync.Mutex
	ctrlMu  sync.Mutex // serializes play/pause/stop and session teardown
	cfg     *config.Config
	decoder Decoder
	kits    kits.Loader
	factory audio.OutputFactory
	media   media.Session

	output   audio.Output
	session  *Session
	status   types.Status
	onStatus StatusCallback
	onSpec   SpectrumCallback

	// generation tracking, newest wins
	genID     uint64
	genCancel context.CancelFunc
	genDone   chan struct{}
}

// New creates an engine
func New(cfg *config.Config, opts Options) *Engine {
	e := &Engine{
		cfg:     cfg.Clone(),
		decoder: opts.Decoder,
		kits:    opts.Kits,
		factory: opts.Output,
		media:   opts.Media,
		status:  types.Status{Phase: types.PhaseIdle, Message: "Idle"},
	}
	if e.decoder == nil {
		e.decoder = audio.NewDecoder(cfg.Audio.SampleRate)
	}
	if e.factory == nil {
		e.factory = audio.OtoFactory(cfg.Audio.BufferSizeMs)
	}
	if e.media == nil {
		e.media = media.NewNoOpSession()
	}
	return e
}

// SetOnStatus sets the callback invoked on every status change
func (e *Engine) SetOnStatus(cb StatusCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onStatus = cb
}

// SetOnSpectrum sets the callback fed from the render loop. It runs on the
// render goroutine and must not block.
func (e *Engine) SetOnSpectrum(cb SpectrumCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onSpec = cb
}

func (e *Engine) emitSpectrum(s *Session, bands []uint8) {
	e.mu.Lock()
	cb := e.onSpec
	e.mu.Unlock()
	if cb != nil {
		cb(bands, e.position(s))
	}
}

// SetConfig replaces the configuration used by subsequent generations.
// The playback volume applies to the open output right away.
func (e *Engine) SetConfig(cfg *config.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg.Clone()
	if e.output != nil {
		e.output.SetVolume(cfg.Audio.DefaultVolume)
	}
}

// Config returns a copy of the active configuration
func (e *Engine) Config() *config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Clone()
}

// Session returns the live session, or nil
func (e *Engine) Session() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Status returns a snapshot of the engine state
func (e *Engine) Status() types.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

func (e *Engine) statusLocked() types.Status {
	st := e.status
	if s := e.session; s != nil {
		st.PositionMs = s.Transport.Position() * 1000 / int64(s.Transport.SampleRate())
	}
	return st
}

// update applies fn to the status and notifies the listener. Updates from a
// superseded generation are dropped.
func (e *Engine) update(genID uint64, fn func(*types.Status)) {
	e.mu.Lock()
	if genID != 0 && genID != e.genID {
		e.mu.Unlock()
		return
	}
	fn(&e.status)
	st := e.statusLocked()
	cb := e.onStatus
	e.mu.Unlock()

	if cb != nil {
		cb(st)
	}
}

func (e *Engine) progress(genID uint64, phase types.Phase, pct int, msg string) {
	log.Printf("[ENGINE] %3d%% %s", pct, msg)
	e.update(genID, func(st *types.Status) {
		st.Phase = phase
		st.Progress = pct
		st.Message = msg
		st.Ready = false
		st.Error = ""
	})
}

func (e *Engine) fail(genID uint64, err error) {
	log.Printf("[ENGINE] Generation failed: %v", err)
	e.update(genID, func(st *types.Status) {
		*st = types.Status{
			Phase:   types.PhaseIdle,
			Message: "Error: " + err.Error(),
			Error:   err.Error(),
		}
	})
}

// Generate analyzes a vocal take and builds a playable arrangement in genre.
// A newer call cancels this one; the previous session is torn down before
// anything new is built.
func (e *Engine) Generate(ctx context.Context, file types.VocalFile, genre string) error {
	if len(file.Data) == 0 {
		return fmt.Errorf("%w: no vocal file", ErrInvalidInput)
	}
	if strings.TrimSpace(genre) == "" {
		return fmt.Errorf("%w: no genre", ErrInvalidInput)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	defer close(done)

	e.mu.Lock()
	if e.genCancel != nil {
		e.genCancel()
	}
	oldDone := e.genDone
	e.genID++
	genID := e.genID
	e.genCancel = cancel
	e.genDone = done
	cfg := e.cfg.Clone()
	e.mu.Unlock()

	// Wait for the superseded generation to exit
	if oldDone != nil {
		<-oldDone
	}

	e.ctrlMu.Lock()
	e.teardownLocked()
	e.ctrlMu.Unlock()

	s, err := e.build(ctx, genID, cfg, file, genre)
	if err != nil {
		if s != nil {
			s.dispose()
		}
		if e.superseded(genID) {
			return err
		}
		e.fail(genID, err)
		return err
	}

	e.mu.Lock()
	if e.genID != genID {
		e.mu.Unlock()
		s.dispose()
		return context.Canceled
	}
	e.session = s
	e.mu.Unlock()

	title := fmt.Sprintf("%s Production", strings.ToUpper(s.Genre.String()[:1])+s.Genre.String()[1:])
	e.media.UpdateMetadata(media.Metadata{
		Title:    title,
		Artist:   "rhythmd",
		Genre:    s.Genre.String(),
		BPM:      s.BPM,
		Duration: framesDuration(s.Vocal.Len(), cfg.Audio.SampleRate),
	})
	e.media.UpdatePlaybackState(media.StateStopped, 0)

	e.update(genID, func(st *types.Status) {
		st.Phase = types.PhaseReadyToPlay
		st.Progress = 100
		st.Ready = true
		st.Message = fmt.Sprintf("%s Production Complete! (%d BPM)", strings.ToUpper(s.Genre.String()), s.BPM)
		st.Genre = s.Genre.String()
		st.BPM = s.BPM
		st.DetectedBPM = s.DetectedBPM
		st.SessionID = s.ID
		st.MIDIPath = s.MIDIPath
		st.RecordingPath = ""
		st.Error = ""
	})
	log.Printf("[ENGINE] Session %s ready: %s at %d BPM", s.ID, s.Genre, s.BPM)
	return nil
}

func (e *Engine) superseded(genID uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.genID != genID
}

// build runs the pipeline up to a fully scheduled session. On error the
// partially built session, if any, is returned for disposal.
func (e *Engine) build(ctx context.Context, genID uint64, cfg *config.Config, file types.VocalFile, genreName string) (*Session, error) {
	genre, known := rhythm.ParseGenre(genreName)
	if !known {
		log.Printf("[ENGINE] Unknown genre %q, using %s", genreName, genre)
	}
	pattern := genre.Pattern()
	sr := cfg.Audio.SampleRate
	gen := cfg.Generation

	e.progress(genID, types.PhaseAnalyzing, 10, fmt.Sprintf("Analyzing vocals for %s production...", genre))

	decodeCtx, cancelDecode := context.WithTimeout(ctx, gen.DecodeTimeout())
	vocal, err := e.decoder.Decode(decodeCtx, file.Name, file.MIMEType, file.Data)
	cancelDecode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode vocal: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.progress(genID, types.PhaseAnalyzing, 25, "Detecting tempo...")
	mono := vocal.Mono()
	detected := analysis.EstimateTempo(mono, vocal.SampleRate, gen.Tempo)
	bpm := analysis.ResolveBPM(detected, pattern.DefaultBPM)
	log.Printf("[ENGINE] Tempo: detected %d, using %d BPM (%s time)", detected, bpm, pattern.TimeSignature)

	e.progress(genID, types.PhaseAnalyzing, 35, "Analyzing vocal intensity...")
	profile := analysis.IntensityProfile(mono)

	e.progress(genID, types.PhasePatterning, 50, fmt.Sprintf("Creating authentic %s rhythm...", genre))
	rng := rhythm.NewRand(gen.Seed)
	expanded := rhythm.ExpandPattern(pattern, gen.Tuning, rng)
	adapted := rhythm.Adapt(expanded, profile.Slice(), gen.Tuning, rng)

	e.progress(genID, types.PhaseInstantiating, 65, "Loading authentic drum sounds...")
	loader := e.kits
	if loader == nil {
		loader = kits.NewDirLoader(cfg.AssetRoot, audio.NewDecoder(sr))
	}
	assetCtx, cancelAssets := context.WithTimeout(ctx, gen.AssetTimeout())
	kit, err := loader.Load(assetCtx, genre.String(), sr)
	cancelAssets()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s drum kit: %w", genre, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &Session{
		ID:          uuid.NewString(),
		Genre:       genre,
		BPM:         bpm,
		DetectedBPM: detected,
		Intensity:   profile,
		Expanded:    expanded,
		Adapted:     adapted,
		Progression: rhythm.LookupProgression(gen.Progression),
		Transport:   transport.New(sr, float64(bpm)),
	}
	s.newVoices(kit, vocal.Resample(sr), sr)
	s.Spectrum.SetCallback(func(bands []uint8) { e.emitSpectrum(s, bands) })

	e.progress(genID, types.PhaseArranging, 80, fmt.Sprintf("Arranging %s track...", genre))
	if err := s.arrange(); err != nil {
		return s, fmt.Errorf("failed to schedule arrangement: %w", err)
	}
	if cfg.Behavior.StopAtVocalEnd {
		s.setAutoStop()
	}

	e.progress(genID, types.PhaseArranging, 95, "Finalizing production...")
	if gen.ExportMIDI {
		path := filepath.Join(cfg.OutputDir, s.ID+".mid")
		err := export.WriteMIDI(path, export.Arrangement{
			Title:       fmt.Sprintf("%s %d BPM", genre, bpm),
			BPM:         bpm,
			Drums:       adapted,
			Progression: s.Progression,
		})
		if err != nil {
			log.Printf("[ENGINE] Warning: MIDI export failed: %v", err)
		} else {
			s.MIDIPath = path
		}
	}
	if err := ctx.Err(); err != nil {
		return s, err
	}
	return s, nil
}

// teardownLocked disposes the live session. Caller holds ctrlMu.
func (e *Engine) teardownLocked() {
	e.mu.Lock()
	s := e.session
	e.session = nil
	out := e.output
	if s != nil {
		e.status = types.Status{Phase: types.PhaseIdle, Message: "Idle"}
	}
	e.mu.Unlock()

	if s == nil {
		return
	}
	// a pump blocked on a full output only returns once the output is stopped
	if out != nil {
		out.Stop()
	}
	s.dispose()
	e.media.UpdatePlaybackState(media.StateStopped, 0)
}

// Close tears down the session and releases the audio output
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.genCancel != nil {
		e.genCancel()
	}
	done := e.genDone
	e.mu.Unlock()
	if done != nil {
		<-done
	}

	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()
	e.teardownLocked()

	e.mu.Lock()
	out := e.output
	e.output = nil
	e.status = types.Status{Phase: types.PhaseIdle, Message: "Idle"}
	e.mu.Unlock()

	if out != nil {
		return out.Close()
	}
	return nil
}

// framesDuration converts a frame count to time
func framesDuration(frames, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}
